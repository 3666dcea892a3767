package payments

import (
	"errors"
	"testing"

	"github.com/fandreams/fancoin/internal/app/affiliate"
	"github.com/fandreams/fancoin/internal/app/guild"
	"github.com/fandreams/fancoin/internal/app/ledger"
	"github.com/fandreams/fancoin/internal/app/vesting"
	"github.com/fandreams/fancoin/internal/domain"
	"github.com/fandreams/fancoin/internal/infra/sqlite"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	economy := domain.DefaultEconomy()
	led := ledger.New(db, economy)
	vest := vesting.New(db)
	aff := affiliate.New(db, economy)
	gld := guild.New(db)
	return New(db, economy, led, vest, aff, gld), db
}

func TestOnPaymentCompletedPurchase(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	res, err := o.OnPaymentCompleted(Payment{
		ID: "pay-1", PayerUserID: "fan-1", AmountCentavos: 5000, Purpose: domain.KindPurchase,
	})
	if err != nil {
		t.Fatalf("OnPaymentCompleted: %v", err)
	}
	if res.NetCoins != 5000 || res.PlatformFee != 0 {
		t.Errorf("result = %+v, want 5000 coins to the buyer, no fee", res)
	}
}

func TestOnPaymentCompletedValidates(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	cases := []Payment{
		{PayerUserID: "fan-1", AmountCentavos: 100, Purpose: domain.KindPurchase},
		{ID: "p", AmountCentavos: 100, Purpose: domain.KindPurchase},
		{ID: "p", PayerUserID: "f", AmountCentavos: 0, Purpose: domain.KindPurchase},
		{ID: "p", PayerUserID: "f", AmountCentavos: 100, Purpose: domain.KindCommission},
		{ID: "p", PayerUserID: "f", AmountCentavos: 100, Purpose: domain.KindTip}, // no creator
	}
	for _, p := range cases {
		if _, err := o.OnPaymentCompleted(p); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("payment %+v: err = %v, want ErrInvalidArgument", p, err)
		}
	}
}

// TestPaymentFanOut exercises the full split: affiliate cascade, platform
// fee, guild skim and revenue vesting on a single subscription payment.
func TestPaymentFanOut(t *testing.T) {
	o, db := newTestOrchestrator(t)

	// aff-2 referred aff-1, aff-1 referred fan-1.
	if err := o.affiliate.ConfigureProgram(
		domain.AffiliateProgram{CreatorID: "creator-1", IsActive: true, MaxLevels: 2},
		[]domain.AffiliateLevel{
			{CreatorID: "creator-1", Level: 1, CommissionPercent: 10},
			{CreatorID: "creator-1", Level: 2, CommissionPercent: 5},
		},
	); err != nil {
		t.Fatalf("ConfigureProgram: %v", err)
	}
	parent, err := o.affiliate.CreateLink("aff-2", "creator-1")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if _, err := o.affiliate.RegisterReferral("aff-1", parent.Code); err != nil {
		t.Fatalf("RegisterReferral aff-1: %v", err)
	}
	child, err := o.affiliate.CreateLink("aff-1", "creator-1")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if _, err := o.affiliate.RegisterReferral("fan-1", child.Code); err != nil {
		t.Fatalf("RegisterReferral fan-1: %v", err)
	}

	// creator-1 leads a guild skimming 3%.
	g, err := o.guild.Create("Creators", "creators", "creator-1", 3)
	if err != nil {
		t.Fatalf("guild Create: %v", err)
	}

	// creator-1 holds a revenue-vesting welcome bonus.
	if _, err := o.vesting.Grant(vesting.GrantRequest{
		UserID: "creator-1", Type: domain.GrantCreatorWelcome, Amount: 500,
		VestingRule: domain.VestRevenue, VestingRate: 0.05,
	}); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	// R$ 100.00 subscription.
	res, err := o.OnPaymentCompleted(Payment{
		ID: "pay-1", PayerUserID: "fan-1", CreatorID: "creator-1",
		AmountCentavos: 10_000, Purpose: domain.KindSubscription,
	})
	if err != nil {
		t.Fatalf("OnPaymentCompleted: %v", err)
	}

	// 10,000 gross = 1,500 fee + 1,000 L1 + 500 L2 + 7,000 net.
	if res.GrossCoins != 10_000 || res.PlatformFee != 1500 || res.CommissionCoins != 1500 || res.NetCoins != 7000 {
		t.Errorf("split = %+v, want gross 10000 fee 1500 commissions 1500 net 7000", res)
	}

	// Guild skimmed 3% of the net.
	creator, _ := db.Wallet("creator-1")
	if creator.Balance != 500+7000-210 {
		t.Errorf("creator balance = %d, want 7290 (7000 net - 210 skim + 500 grant)", creator.Balance)
	}
	treasury, _ := db.Wallet(g.TreasuryAccountID())
	if treasury.Balance != 210 {
		t.Errorf("treasury balance = %d, want 210", treasury.Balance)
	}
	platform, _ := db.Wallet(domain.PlatformAccountID)
	if platform.Balance != 1500 {
		t.Errorf("platform balance = %d, want 1500", platform.Balance)
	}
	l1, _ := db.Wallet("aff-1")
	l2, _ := db.Wallet("aff-2")
	if l1.Balance != 1000 || l2.Balance != 500 {
		t.Errorf("affiliates = %d / %d, want 1000 / 500", l1.Balance, l2.Balance)
	}

	// Revenue vesting advanced: R$ 100 at 0.05 coins per BRL unlocks 5.
	if creator.WithdrawableBonus != 5 {
		t.Errorf("withdrawable bonus = %d, want 5", creator.WithdrawableBonus)
	}

	// Conservation: everything minted is the gross plus the grant.
	total, _ := db.TotalCoins()
	if total != 10_500 {
		t.Errorf("total coins = %d, want 10500", total)
	}

	// A retried webhook replays as a no-op.
	replay, err := o.OnPaymentCompleted(Payment{
		ID: "pay-1", PayerUserID: "fan-1", CreatorID: "creator-1",
		AmountCentavos: 10_000, Purpose: domain.KindSubscription,
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Duplicate {
		t.Error("replay should report Duplicate")
	}
	total, _ = db.TotalCoins()
	if total != 10_500 {
		t.Errorf("total coins after replay = %d, want 10500", total)
	}
	creator, _ = db.Wallet("creator-1")
	if creator.Balance != 7290 {
		t.Errorf("creator balance after replay = %d, want 7290", creator.Balance)
	}
}

func TestOnCoinTipSkimsGuild(t *testing.T) {
	o, db := newTestOrchestrator(t)

	if _, err := o.guild.Create("Creators", "creators", "creator-1", 3); err != nil {
		t.Fatalf("guild Create: %v", err)
	}
	if _, err := o.ledger.CreditPurchase("fan-1", "pay-1", 1000); err != nil {
		t.Fatalf("fund fan: %v", err)
	}

	res, err := o.OnCoinTip("fan-1", "creator-1", 1000, "tip-1")
	if err != nil {
		t.Fatalf("OnCoinTip: %v", err)
	}
	if res.PlatformFee != 150 || res.Credit.Amount != 850 {
		t.Errorf("tip split = %+v, want fee 150 net 850", res)
	}

	// 3% of the 850 net went to the treasury.
	creator, _ := db.Wallet("creator-1")
	if creator.Balance != 850-25 {
		t.Errorf("creator balance = %d, want 825", creator.Balance)
	}
}
