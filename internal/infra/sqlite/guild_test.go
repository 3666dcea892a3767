package sqlite

import (
	"errors"
	"testing"

	"github.com/fandreams/fancoin/internal/domain"
)

func newTestGuild(t *testing.T, db *DB, leaderID string, pct float64) domain.Guild {
	t.Helper()
	g, err := db.InsertGuild(domain.Guild{
		Name:                        "Test Guild",
		Slug:                        "test-guild",
		LeaderID:                    leaderID,
		TreasuryContributionPercent: pct,
	})
	if err != nil {
		t.Fatalf("InsertGuild: %v", err)
	}
	return g
}

func TestInsertGuildDefaultsContribution(t *testing.T) {
	db := newTestDB(t)
	g := newTestGuild(t, db, "leader-1", 0)
	if g.TreasuryContributionPercent != domain.DefaultTreasuryContributionPct {
		t.Errorf("contribution = %.1f, want default %.1f", g.TreasuryContributionPercent, domain.DefaultTreasuryContributionPct)
	}
	if g.TotalMembers != 1 {
		t.Errorf("members = %d, want 1 (the leader)", g.TotalMembers)
	}
}

func TestInsertGuildRejectsExcessiveContribution(t *testing.T) {
	db := newTestDB(t)
	_, err := db.InsertGuild(domain.Guild{
		Name: "Greedy", Slug: "greedy", LeaderID: "leader-1",
		TreasuryContributionPercent: 15,
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestGuildMembershipExclusive(t *testing.T) {
	db := newTestDB(t)
	g1 := newTestGuild(t, db, "leader-1", 3)
	g2, err := db.InsertGuild(domain.Guild{Name: "Other", Slug: "other", LeaderID: "leader-2"})
	if err != nil {
		t.Fatalf("second guild: %v", err)
	}

	if err := db.AddMember(g1.ID, "creator-1"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := db.AddMember(g2.ID, "creator-1"); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("joining a second guild err = %v, want ErrAlreadyExists", err)
	}

	got, err := db.GuildForMember("creator-1")
	if err != nil {
		t.Fatalf("GuildForMember: %v", err)
	}
	if got.ID != g1.ID {
		t.Errorf("guild = %s, want %s", got.ID, g1.ID)
	}
}

func TestGuildForMemberNone(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GuildForMember("loner"); !errors.Is(err, domain.ErrConfigurationMissing) {
		t.Fatalf("err = %v, want ErrConfigurationMissing", err)
	}
}

func TestApplySkim(t *testing.T) {
	db := newTestDB(t)
	g := newTestGuild(t, db, "creator-1", 3)
	mustCredit(t, db, "creator-1", 1000, domain.KindSubscription, "pay-1")

	res, err := db.ApplySkim(g, "creator-1", g.ContributionFor(1000), "pay-1")
	if err != nil {
		t.Fatalf("ApplySkim: %v", err)
	}
	if res.Contribution != 30 {
		t.Errorf("contribution = %d, want 30 (3%% of 1000)", res.Contribution)
	}
	if res.TreasuryBalance != 30 {
		t.Errorf("treasury balance = %d, want 30", res.TreasuryBalance)
	}

	w, _ := db.Wallet("creator-1")
	if w.Balance != 970 {
		t.Errorf("member balance = %d, want 970", w.Balance)
	}

	// Audit row snapshots the treasury balance.
	history, _ := db.TreasuryHistory(g.ID, 10)
	if len(history) != 1 {
		t.Fatalf("history = %d rows, want 1", len(history))
	}
	if history[0].Amount != 30 || history[0].BalanceAfter != 30 || history[0].UserID != "creator-1" {
		t.Errorf("audit row = %+v, want amount 30 balance 30 from creator-1", history[0])
	}

	// Skim conserves circulation.
	total, _ := db.TotalCoins()
	if total != 1000 {
		t.Errorf("total coins = %d, want 1000", total)
	}
}

func TestApplySkimIdempotent(t *testing.T) {
	db := newTestDB(t)
	g := newTestGuild(t, db, "creator-1", 3)
	mustCredit(t, db, "creator-1", 1000, domain.KindSubscription, "pay-1")

	if _, err := db.ApplySkim(g, "creator-1", 30, "pay-1"); err != nil {
		t.Fatalf("first skim: %v", err)
	}
	res, err := db.ApplySkim(g, "creator-1", 30, "pay-1")
	if err != nil {
		t.Fatalf("second skim: %v", err)
	}
	if !res.Duplicate {
		t.Error("second skim should report Duplicate")
	}
	if res.TreasuryBalance != 30 {
		t.Errorf("treasury balance = %d, want 30", res.TreasuryBalance)
	}
	w, _ := db.Wallet("creator-1")
	if w.Balance != 970 {
		t.Errorf("member balance = %d, want 970 after replay", w.Balance)
	}
}

func TestApplySkimClampsToBalance(t *testing.T) {
	db := newTestDB(t)
	g := newTestGuild(t, db, "creator-1", 3)
	mustCredit(t, db, "creator-1", 10, domain.KindSubscription, "pay-1")

	// The earning was mostly spent before the skim ran; take what is left.
	res, err := db.ApplySkim(g, "creator-1", 30, "pay-1")
	if err != nil {
		t.Fatalf("ApplySkim: %v", err)
	}
	if res.Contribution != 10 {
		t.Errorf("contribution = %d, want clamped 10", res.Contribution)
	}
}

func TestApplySkimNoAccountIsNoop(t *testing.T) {
	db := newTestDB(t)
	g := newTestGuild(t, db, "creator-1", 3)

	res, err := db.ApplySkim(g, "ghost", 30, "pay-1")
	if err != nil {
		t.Fatalf("ApplySkim: %v", err)
	}
	if res.Contribution != 0 {
		t.Errorf("contribution = %d, want 0 for a missing account", res.Contribution)
	}
}
