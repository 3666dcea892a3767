package sqlite

import (
	"errors"
	"testing"

	"github.com/fandreams/fancoin/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCredit(t *testing.T, db *DB, userID string, amount int64, kind domain.EntryKind, ref string) domain.LedgerEntry {
	t.Helper()
	applied, err := db.ApplyEntry(EntryRequest{
		AccountID:   userID,
		Amount:      amount,
		Kind:        kind,
		ReferenceID: ref,
	})
	if err != nil {
		t.Fatalf("credit %d to %s: %v", amount, userID, err)
	}
	return applied.Entry
}

func TestApplyEntryCreatesAccountAndBalance(t *testing.T) {
	db := newTestDB(t)

	entry := mustCredit(t, db, "fan-1", 500, domain.KindPurchase, "pay-1")
	if entry.BalanceAfter != 500 {
		t.Errorf("BalanceAfter = %d, want 500", entry.BalanceAfter)
	}

	w, err := db.Wallet("fan-1")
	if err != nil {
		t.Fatalf("Wallet: %v", err)
	}
	if w.Balance != 500 || w.TotalEarned != 500 || w.TotalSpent != 0 {
		t.Errorf("wallet = %+v, want balance 500, earned 500, spent 0", w)
	}
}

func TestApplyEntryIdempotent(t *testing.T) {
	db := newTestDB(t)

	first := mustCredit(t, db, "fan-1", 500, domain.KindPurchase, "pay-1")

	applied, err := db.ApplyEntry(EntryRequest{
		AccountID:   "fan-1",
		Amount:      500,
		Kind:        domain.KindPurchase,
		ReferenceID: "pay-1",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !applied.Duplicate {
		t.Error("replay should report Duplicate")
	}
	if applied.Entry.ID != first.ID {
		t.Errorf("replay returned entry %s, want original %s", applied.Entry.ID, first.ID)
	}

	w, _ := db.Wallet("fan-1")
	if w.Balance != 500 {
		t.Errorf("balance after replay = %d, want 500", w.Balance)
	}
}

func TestApplyEntrySameReferenceDifferentKind(t *testing.T) {
	db := newTestDB(t)

	mustCredit(t, db, "fan-1", 500, domain.KindPurchase, "ref-1")
	mustCredit(t, db, "fan-1", 100, domain.KindTip, "ref-1")

	w, _ := db.Wallet("fan-1")
	if w.Balance != 600 {
		t.Errorf("balance = %d, want 600: same reference with different kind is a distinct entry", w.Balance)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	db := newTestDB(t)
	mustCredit(t, db, "fan-1", 100, domain.KindPurchase, "pay-1")

	_, err := db.ApplyEntry(EntryRequest{
		AccountID:   "fan-1",
		Amount:      -200,
		Kind:        domain.KindTip,
		ReferenceID: "tip-1",
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// The failed debit must leave no trace.
	w, _ := db.Wallet("fan-1")
	if w.Balance != 100 {
		t.Errorf("balance = %d, want 100", w.Balance)
	}
	entries, _ := db.History("fan-1", 10)
	if len(entries) != 1 {
		t.Errorf("history has %d entries, want 1", len(entries))
	}
}

func TestWithdrawalCannotTouchLockedBonus(t *testing.T) {
	db := newTestDB(t)
	mustCredit(t, db, "fan-1", 200, domain.KindPurchase, "pay-1")

	if _, err := db.InsertGrant(domain.BonusGrant{
		UserID:      "fan-1",
		Type:        domain.GrantEngagement,
		TotalAmount: 300,
		VestingRule: domain.VestNever,
		Status:      domain.GrantActive,
	}); err != nil {
		t.Fatalf("insert grant: %v", err)
	}

	// Balance 500, but only 200 is withdrawable.
	if _, err := db.ApplyEntry(EntryRequest{
		AccountID:   "fan-1",
		Amount:      -300,
		Kind:        domain.KindWithdrawal,
		ReferenceID: "wd-1",
	}); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("withdrawal over locked bonus: err = %v, want ErrInsufficientFunds", err)
	}

	applied, err := db.ApplyEntry(EntryRequest{
		AccountID:   "fan-1",
		Amount:      -200,
		Kind:        domain.KindWithdrawal,
		ReferenceID: "wd-2",
	})
	if err != nil {
		t.Fatalf("withdrawal within withdrawable: %v", err)
	}
	if applied.Entry.BalanceAfter != 300 {
		t.Errorf("BalanceAfter = %d, want 300", applied.Entry.BalanceAfter)
	}
}

func TestInternalSpendConsumesLockedBonus(t *testing.T) {
	db := newTestDB(t)
	mustCredit(t, db, "fan-1", 200, domain.KindPurchase, "pay-1")

	if _, err := db.InsertGrant(domain.BonusGrant{
		UserID:      "fan-1",
		Type:        domain.GrantEngagement,
		TotalAmount: 300,
		VestingRule: domain.VestNever,
		Status:      domain.GrantActive,
	}); err != nil {
		t.Fatalf("insert grant: %v", err)
	}

	// A tip may spend the full 500 including the locked 300.
	applied, err := db.ApplyEntry(EntryRequest{
		AccountID:   "fan-1",
		Amount:      -500,
		Kind:        domain.KindTip,
		ReferenceID: "tip-1",
	})
	if err != nil {
		t.Fatalf("tip: %v", err)
	}
	if applied.Entry.BalanceAfter != 0 {
		t.Errorf("BalanceAfter = %d, want 0", applied.Entry.BalanceAfter)
	}

	w, _ := db.Wallet("fan-1")
	if w.LockedBonus != 0 {
		t.Errorf("LockedBonus = %d, want 0 after the grant was consumed", w.LockedBonus)
	}

	grants, _ := db.ListGrants("fan-1")
	if len(grants) != 1 {
		t.Fatalf("grants = %d, want 1", len(grants))
	}
	if grants[0].Status != domain.GrantFullySpent {
		t.Errorf("grant status = %s, want fully_spent", grants[0].Status)
	}
	if grants[0].SpentAmount != 300 {
		t.Errorf("grant spent = %d, want 300", grants[0].SpentAmount)
	}
}

func TestLockedBonusConsumedOldestFirst(t *testing.T) {
	db := newTestDB(t)

	for i, amount := range []int64{100, 200} {
		ref := []string{"g-old", "g-new"}[i]
		if _, err := db.InsertGrant(domain.BonusGrant{
			UserID:      "fan-1",
			Type:        domain.GrantEngagement,
			TotalAmount: amount,
			VestingRule: domain.VestNever,
			Status:      domain.GrantActive,
			ReferenceID: ref,
		}); err != nil {
			t.Fatalf("insert grant: %v", err)
		}
	}

	if _, err := db.ApplyEntry(EntryRequest{
		AccountID:   "fan-1",
		Amount:      -150,
		Kind:        domain.KindPPV,
		ReferenceID: "ppv-1",
	}); err != nil {
		t.Fatalf("spend: %v", err)
	}

	grants, _ := db.ListGrants("fan-1")
	var old, newer domain.BonusGrant
	for _, g := range grants {
		switch g.ReferenceID {
		case "g-old":
			old = g
		case "g-new":
			newer = g
		}
	}
	if old.SpentAmount != 100 || old.Status != domain.GrantFullySpent {
		t.Errorf("oldest grant spent = %d status = %s, want 100 fully_spent", old.SpentAmount, old.Status)
	}
	if newer.SpentAmount != 50 || newer.Status != domain.GrantActive {
		t.Errorf("newer grant spent = %d status = %s, want 50 active", newer.SpentAmount, newer.Status)
	}
}

func TestApplyEntriesAtomicPair(t *testing.T) {
	db := newTestDB(t)
	mustCredit(t, db, "fan-1", 100, domain.KindPurchase, "pay-1")

	// Debit exceeds the balance; the whole pair must roll back.
	_, err := db.ApplyEntries(
		EntryRequest{AccountID: "fan-1", Amount: -500, Kind: domain.KindTip, ReferenceID: "tip-1"},
		EntryRequest{AccountID: "creator-1", Amount: 500, Kind: domain.KindTip, ReferenceID: "tip-1"},
	)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if w, _ := db.Wallet("creator-1"); w.Balance != 0 {
		t.Errorf("creator balance = %d, want 0 after rollback", w.Balance)
	}

	total, err := db.TotalCoins()
	if err != nil {
		t.Fatalf("TotalCoins: %v", err)
	}
	if total != 100 {
		t.Errorf("total coins = %d, want 100", total)
	}
}

func TestTransfersConserveTotalCoins(t *testing.T) {
	db := newTestDB(t)
	mustCredit(t, db, "fan-1", 1000, domain.KindPurchase, "pay-1")

	if _, err := db.ApplyEntries(
		EntryRequest{AccountID: "fan-1", Amount: -400, Kind: domain.KindTip, ReferenceID: "tip-1"},
		EntryRequest{AccountID: "creator-1", Amount: 340, Kind: domain.KindTip, ReferenceID: "tip-1"},
		EntryRequest{AccountID: domain.PlatformAccountID, AccountType: domain.AccountPlatform, Amount: 60, Kind: domain.KindPlatformFee, ReferenceID: "tip-1"},
	); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	total, _ := db.TotalCoins()
	if total != 1000 {
		t.Errorf("total coins = %d, want 1000: transfers must conserve circulation", total)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	db := newTestDB(t)
	mustCredit(t, db, "fan-1", 100, domain.KindPurchase, "pay-1")
	mustCredit(t, db, "fan-1", 200, domain.KindPurchase, "pay-2")
	mustCredit(t, db, "fan-1", 300, domain.KindPurchase, "pay-3")

	entries, err := db.History("fan-1", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ReferenceID != "pay-3" {
		t.Errorf("first entry ref = %s, want pay-3", entries[0].ReferenceID)
	}
}

func TestWalletUnknownUserIsZero(t *testing.T) {
	db := newTestDB(t)
	w, err := db.Wallet("nobody")
	if err != nil {
		t.Fatalf("Wallet: %v", err)
	}
	if w.Balance != 0 || w.LockedBonus != 0 {
		t.Errorf("wallet = %+v, want zero view", w)
	}
}
