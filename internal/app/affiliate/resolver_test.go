package affiliate

import (
	"errors"
	"testing"

	"github.com/fandreams/fancoin/internal/domain"
	"github.com/fandreams/fancoin/internal/infra/sqlite"
)

func newTestResolver(t *testing.T) (*Resolver, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, domain.DefaultEconomy()), db
}

// setupChain wires fan-1 into creator-1's program: aff-2 referred aff-1,
// aff-1 referred fan-1. aff-1 is L1 and aff-2 is L2 on fan-1's payments.
func setupChain(t *testing.T, r *Resolver) {
	t.Helper()
	if err := r.ConfigureProgram(
		domain.AffiliateProgram{CreatorID: "creator-1", IsActive: true, MaxLevels: 2},
		[]domain.AffiliateLevel{
			{CreatorID: "creator-1", Level: 1, CommissionPercent: 10},
			{CreatorID: "creator-1", Level: 2, CommissionPercent: 5},
		},
	); err != nil {
		t.Fatalf("ConfigureProgram: %v", err)
	}

	parent, err := r.CreateLink("aff-2", "creator-1")
	if err != nil {
		t.Fatalf("CreateLink aff-2: %v", err)
	}
	if _, err := r.RegisterReferral("aff-1", parent.Code); err != nil {
		t.Fatalf("register aff-1: %v", err)
	}

	child, err := r.CreateLink("aff-1", "creator-1")
	if err != nil {
		t.Fatalf("CreateLink aff-1: %v", err)
	}
	if _, err := r.RegisterReferral("fan-1", child.Code); err != nil {
		t.Fatalf("register fan-1: %v", err)
	}
}

func TestCreateLinkIsStable(t *testing.T) {
	r, _ := newTestResolver(t)

	first, err := r.CreateLink("aff-1", "creator-1")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if len(first.Code) != codeLength {
		t.Errorf("code %q length = %d, want %d", first.Code, len(first.Code), codeLength)
	}
	second, err := r.CreateLink("aff-1", "creator-1")
	if err != nil {
		t.Fatalf("second CreateLink: %v", err)
	}
	if second.Code != first.Code {
		t.Errorf("second call returned code %q, want existing %q", second.Code, first.Code)
	}
}

func TestCreateLinkRejectsSelf(t *testing.T) {
	r, _ := newTestResolver(t)
	if _, err := r.CreateLink("creator-1", "creator-1"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRegisterReferralFixesL2(t *testing.T) {
	r, _ := newTestResolver(t)
	setupChain(t, r)

	ref, err := r.db.FindReferral("fan-1", "creator-1")
	if err != nil {
		t.Fatalf("FindReferral: %v", err)
	}
	if ref.L1AffiliateID != "aff-1" || ref.L2AffiliateID != "aff-2" {
		t.Errorf("referral L1 = %s L2 = %s, want aff-1 / aff-2", ref.L1AffiliateID, ref.L2AffiliateID)
	}
}

func TestRegisterReferralSelf(t *testing.T) {
	r, _ := newTestResolver(t)
	link, err := r.CreateLink("aff-1", "creator-1")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if _, err := r.RegisterReferral("aff-1", link.Code); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("self referral err = %v, want ErrInvalidArgument", err)
	}
}

func TestResolveTwoLevelCascade(t *testing.T) {
	r, db := newTestResolver(t)
	setupChain(t, r)

	// R$ 100.00 payment: L1 gets 10% (R$ 10 = 1000 coins), L2 gets 5%.
	credited, err := r.Resolve("pay-1", "fan-1", "creator-1", 10_000)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(credited) != 2 {
		t.Fatalf("credited %d commissions, want 2", len(credited))
	}

	l1, _ := db.Wallet("aff-1")
	if l1.Balance != 1000 {
		t.Errorf("L1 balance = %d, want 1000", l1.Balance)
	}
	l2, _ := db.Wallet("aff-2")
	if l2.Balance != 500 {
		t.Errorf("L2 balance = %d, want 500", l2.Balance)
	}

	// Replaying the payment credits nothing more.
	credited, err = r.Resolve("pay-1", "fan-1", "creator-1", 10_000)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	for _, c := range credited {
		if c.Created {
			t.Errorf("replay created commission %+v", c.Commission)
		}
	}
	l1, _ = db.Wallet("aff-1")
	if l1.Balance != 1000 {
		t.Errorf("L1 balance after replay = %d, want 1000", l1.Balance)
	}
}

func TestResolveSkipsWhenNoChain(t *testing.T) {
	r, _ := newTestResolver(t)

	credited, err := r.Resolve("pay-1", "stranger", "creator-1", 10_000)
	if err != nil || credited != nil {
		t.Fatalf("unreferred payer = %v, %v; want nil, nil", credited, err)
	}
}

func TestResolveSkipsInactiveProgram(t *testing.T) {
	r, _ := newTestResolver(t)
	setupChain(t, r)

	if err := r.ConfigureProgram(
		domain.AffiliateProgram{CreatorID: "creator-1", IsActive: false, MaxLevels: 2},
		[]domain.AffiliateLevel{
			{CreatorID: "creator-1", Level: 1, CommissionPercent: 10},
			{CreatorID: "creator-1", Level: 2, CommissionPercent: 5},
		},
	); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	credited, err := r.Resolve("pay-1", "fan-1", "creator-1", 10_000)
	if err != nil || credited != nil {
		t.Fatalf("inactive program = %v, %v; want nil, nil", credited, err)
	}
}

func TestResolveHonorsMaxLevels(t *testing.T) {
	r, db := newTestResolver(t)
	setupChain(t, r)

	// Drop the program to a single level; L2 must not be paid.
	if err := r.ConfigureProgram(
		domain.AffiliateProgram{CreatorID: "creator-1", IsActive: true, MaxLevels: 1},
		[]domain.AffiliateLevel{{CreatorID: "creator-1", Level: 1, CommissionPercent: 10}},
	); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}

	credited, err := r.Resolve("pay-1", "fan-1", "creator-1", 10_000)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(credited) != 1 || credited[0].Commission.Level != 1 {
		t.Fatalf("credited = %+v, want only level 1", credited)
	}
	l2, _ := db.Wallet("aff-2")
	if l2.Balance != 0 {
		t.Errorf("L2 balance = %d, want 0", l2.Balance)
	}
}
