package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fandreams/fancoin/internal/app/affiliate"
	"github.com/fandreams/fancoin/internal/app/commitment"
	"github.com/fandreams/fancoin/internal/app/guild"
	"github.com/fandreams/fancoin/internal/app/ledger"
	"github.com/fandreams/fancoin/internal/app/payments"
	"github.com/fandreams/fancoin/internal/app/vesting"
	"github.com/fandreams/fancoin/internal/domain"
	"github.com/fandreams/fancoin/internal/infra/sqlite"
)

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}

	economy := domain.DefaultEconomy()
	led := ledger.New(db, economy)
	vest := vesting.New(db)
	aff := affiliate.New(db, economy)
	gld := guild.New(db)
	com := commitment.New(db)
	pay := payments.New(db, economy, led, vest, aff, gld)

	srv := httptest.NewServer(NewServer(led, vest, aff, gld, com, pay).Handler())
	t.Cleanup(func() {
		srv.Close()
		db.Close()
	})
	return srv, db
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWalletEndpoint(t *testing.T) {
	srv, db := newTestServer(t)
	if _, err := db.ApplyEntry(sqlite.EntryRequest{
		AccountID: "fan-1", Amount: 500, Kind: domain.KindPurchase, ReferenceID: "pay-1",
	}); err != nil {
		t.Fatalf("fund: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/v1/wallet/fan-1")
	if err != nil {
		t.Fatalf("GET wallet: %v", err)
	}
	var body struct {
		Balance      int64 `json:"balance"`
		Withdrawable int64 `json:"withdrawable"`
	}
	decodeBody(t, resp, &body)
	if body.Balance != 500 || body.Withdrawable != 500 {
		t.Errorf("wallet = %+v, want balance 500 withdrawable 500", body)
	}
}

func TestPaymentWebhook(t *testing.T) {
	srv, db := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/payments/completed", map[string]interface{}{
		"id":              "pay-1",
		"payer_user_id":   "fan-1",
		"creator_id":      "creator-1",
		"amount_centavos": 10_000,
		"purpose":         "tip",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	// Replay returns 200 and changes nothing.
	resp = postJSON(t, srv.URL+"/api/v1/payments/completed", map[string]interface{}{
		"id":              "pay-1",
		"payer_user_id":   "fan-1",
		"creator_id":      "creator-1",
		"amount_centavos": 10_000,
		"purpose":         "tip",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("replay status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	w, _ := db.Wallet("creator-1")
	if w.Balance != 8500 {
		t.Errorf("creator balance = %d, want 8500 (10000 minus 15%% fee)", w.Balance)
	}
}

func TestPaymentWebhookRejectsUnknownFields(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/v1/payments/completed", map[string]interface{}{
		"id": "pay-1", "payer_user_id": "fan-1", "amount_centavos": 100,
		"purpose": "purchase", "bogus": true,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCommitmentEndpoints(t *testing.T) {
	srv, db := newTestServer(t)
	if _, err := db.ApplyEntry(sqlite.EntryRequest{
		AccountID: "fan-1", Amount: 2000, Kind: domain.KindPurchase, ReferenceID: "pay-1",
	}); err != nil {
		t.Fatalf("fund: %v", err)
	}

	resp := postJSON(t, srv.URL+"/api/v1/commitments", map[string]interface{}{
		"fan_id": "fan-1", "creator_id": "creator-1", "amount": 1000, "duration_days": 30,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created domain.FanCommitment
	decodeBody(t, resp, &created)

	// A second active commitment to the same creator conflicts.
	resp = postJSON(t, srv.URL+"/api/v1/commitments", map[string]interface{}{
		"fan_id": "fan-1", "creator_id": "creator-1", "amount": 500, "duration_days": 30,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// Insufficient funds maps to 402.
	resp = postJSON(t, srv.URL+"/api/v1/commitments", map[string]interface{}{
		"fan_id": "fan-1", "creator_id": "creator-2", "amount": 900_000, "duration_days": 30,
	})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("overdraw status = %d, want 402", resp.StatusCode)
	}
	resp.Body.Close()

	// Early withdrawal.
	resp = postJSON(t, srv.URL+"/api/v1/commitments/"+created.ID+"/withdraw", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("withdraw status = %d, want 200", resp.StatusCode)
	}
	var withdrawn domain.FanCommitment
	decodeBody(t, resp, &withdrawn)
	if withdrawn.Status != domain.CommitmentWithdrawnEarly {
		t.Errorf("status = %s, want withdrawn_early", withdrawn.Status)
	}

	resp = postJSON(t, srv.URL+"/api/v1/commitments/"+created.ID+"/withdraw", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("double withdraw status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestBonusEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/bonuses", map[string]interface{}{
		"user_id": "creator-1", "type": "creator_welcome", "amount": 500,
		"vesting_rule": "revenue", "vesting_rate": 0.05,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("grant status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	// Missing rule parameters are a 400.
	resp = postJSON(t, srv.URL+"/api/v1/bonuses", map[string]interface{}{
		"user_id": "creator-1", "type": "campaign_prize", "amount": 100, "vesting_rule": "time",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad grant status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/v1/bonuses?user_id=creator-1")
	if err != nil {
		t.Fatalf("GET bonuses: %v", err)
	}
	var body struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &body)
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}

func TestGuildEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/guilds", map[string]interface{}{
		"name": "Creators", "slug": "creators", "leader_id": "creator-1", "contribution_percent": 3,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create guild status = %d, want 201", resp.StatusCode)
	}
	var g domain.Guild
	decodeBody(t, resp, &g)

	resp = postJSON(t, srv.URL+"/api/v1/guilds/"+g.ID+"/members", map[string]interface{}{"user_id": "creator-2"})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("join status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	// Exclusive membership surfaces as 409.
	resp = postJSON(t, srv.URL+"/api/v1/guilds/"+g.ID+"/members", map[string]interface{}{"user_id": "creator-2"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("rejoin status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownWalletIsZero(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/wallet/nobody")
	if err != nil {
		t.Fatalf("GET wallet: %v", err)
	}
	var body struct {
		Balance int64 `json:"balance"`
	}
	decodeBody(t, resp, &body)
	if body.Balance != 0 {
		t.Errorf("balance = %d, want 0", body.Balance)
	}
}
