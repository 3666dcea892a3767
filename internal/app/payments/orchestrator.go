// Package payments orchestrates the fan-out for completed fiat payments.
//
// One confirmed payment touches several subsystems:
//  1. The affiliate cascade takes its cut of the gross
//  2. The platform fee is split off
//  3. The creator is credited the net (or the buyer, for coin purchases)
//  4. Revenue vesting accrues on the creator's earning
//  5. The guild treasury skims the creator's net
//
// Steps 1-3 are canonical: they commit atomically per participant and are
// idempotent on the payment id, so a retried webhook replays harmlessly.
// Steps 4-5 are enrichments: each runs isolated, a failure is logged and
// counted but never rolls back the canonical credit.
package payments

import (
	"fmt"
	"log"

	"github.com/fandreams/fancoin/internal/app/affiliate"
	"github.com/fandreams/fancoin/internal/app/guild"
	"github.com/fandreams/fancoin/internal/app/ledger"
	"github.com/fandreams/fancoin/internal/app/vesting"
	"github.com/fandreams/fancoin/internal/domain"
	"github.com/fandreams/fancoin/internal/infra/metrics"
	"github.com/fandreams/fancoin/internal/infra/sqlite"
)

// Payment is a confirmed upstream payment event.
type Payment struct {
	ID             string           `json:"id"`
	PayerUserID    string           `json:"payer_user_id"`
	CreatorID      string           `json:"creator_id,omitempty"`
	AmountCentavos int64            `json:"amount_centavos"`
	Purpose        domain.EntryKind `json:"purpose"` // purchase, tip, ppv or subscription
}

// Result reports what one payment produced across the subsystems.
type Result struct {
	GrossCoins      int64                `json:"gross_coins"`
	PlatformFee     int64                `json:"platform_fee"`
	CommissionCoins int64                `json:"commission_coins"`
	NetCoins        int64                `json:"net_coins"`
	Credit          domain.LedgerEntry   `json:"credit"`
	Commissions     []affiliate.Credited `json:"commissions,omitempty"`
	Duplicate       bool                 `json:"duplicate"`
}

// Orchestrator wires the payment fan-out.
type Orchestrator struct {
	db        *sqlite.DB
	economy   domain.Economy
	ledger    *ledger.Service
	vesting   *vesting.Engine
	affiliate *affiliate.Resolver
	guild     *guild.Skimmer
}

// New creates a payment orchestrator over the subsystem services.
func New(db *sqlite.DB, economy domain.Economy, led *ledger.Service, vest *vesting.Engine, aff *affiliate.Resolver, gld *guild.Skimmer) *Orchestrator {
	return &Orchestrator{
		db:        db,
		economy:   economy,
		ledger:    led,
		vesting:   vest,
		affiliate: aff,
		guild:     gld,
	}
}

// OnPaymentCompleted processes one confirmed payment. Safe to call again
// with the same payment id; the canonical credits replay as no-ops.
func (o *Orchestrator) OnPaymentCompleted(p Payment) (Result, error) {
	var res Result
	if p.ID == "" || p.PayerUserID == "" {
		return res, fmt.Errorf("%w: payment id and payer required", domain.ErrInvalidArgument)
	}
	if p.AmountCentavos <= 0 {
		return res, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}

	switch p.Purpose {
	case domain.KindPurchase:
		return o.creditPurchase(p)
	case domain.KindTip, domain.KindPPV, domain.KindSubscription:
		return o.creditEarning(p)
	default:
		return res, fmt.Errorf("%w: unknown payment purpose %q", domain.ErrInvalidArgument, p.Purpose)
	}
}

// creditPurchase handles a fiat coin purchase: coins go to the buyer at the
// current rate. No creator, no fee, no cascade.
func (o *Orchestrator) creditPurchase(p Payment) (Result, error) {
	var res Result
	applied, err := o.ledger.CreditPurchase(p.PayerUserID, p.ID, p.AmountCentavos)
	if err != nil {
		return res, err
	}
	res.GrossCoins = applied.Entry.Amount
	res.NetCoins = applied.Entry.Amount
	res.Credit = applied.Entry
	res.Duplicate = applied.Duplicate
	metrics.PaymentsProcessed.WithLabelValues(string(p.Purpose)).Inc()
	return res, nil
}

// creditEarning handles a fiat payment made directly to a creator.
func (o *Orchestrator) creditEarning(p Payment) (Result, error) {
	var res Result
	if p.CreatorID == "" {
		return res, fmt.Errorf("%w: creator required for %s payments", domain.ErrInvalidArgument, p.Purpose)
	}

	gross := o.economy.CoinsFromCentavos(p.AmountCentavos)
	if gross <= 0 {
		return res, fmt.Errorf("%w: payment of %d centavos yields no coins",
			domain.ErrInvalidArgument, p.AmountCentavos)
	}

	// Affiliate cascade first: commissions come out of the creator's
	// gross, so the net depends on what the chain takes. Idempotent per
	// (payment, affiliate, level), so a replay recomputes the same split.
	commissions, err := o.affiliate.Resolve(p.ID, p.PayerUserID, p.CreatorID, p.AmountCentavos)
	if err != nil {
		return res, fmt.Errorf("affiliate cascade: %w", err)
	}
	var commissionCoins int64
	for _, c := range commissions {
		commissionCoins += c.Commission.CoinsCredited
	}

	fee := o.economy.PlatformFee(gross)
	net := gross - fee - commissionCoins
	if net < 0 {
		net = 0
	}

	reqs := []sqlite.EntryRequest{{
		AccountID:   p.CreatorID,
		AccountType: domain.AccountWallet,
		Amount:      net,
		Kind:        p.Purpose,
		ReferenceID: p.ID,
		Description: fmt.Sprintf("%s from %s", p.Purpose, p.PayerUserID),
	}}
	if fee > 0 {
		reqs = append(reqs, sqlite.EntryRequest{
			AccountID:   domain.PlatformAccountID,
			AccountType: domain.AccountPlatform,
			Amount:      fee,
			Kind:        domain.KindPlatformFee,
			ReferenceID: p.ID,
			Description: fmt.Sprintf("platform fee on %s", p.Purpose),
		})
	}
	applied, err := o.db.ApplyEntries(reqs...)
	if err != nil {
		return res, fmt.Errorf("credit creator: %w", err)
	}

	res.GrossCoins = gross
	res.PlatformFee = fee
	res.CommissionCoins = commissionCoins
	res.NetCoins = net
	res.Credit = applied[0].Entry
	res.Commissions = commissions
	res.Duplicate = applied[0].Duplicate
	metrics.PaymentsProcessed.WithLabelValues(string(p.Purpose)).Inc()

	// Enrichments. Isolated: a failure here is logged and counted but the
	// creator keeps the credit.
	if !res.Duplicate {
		if _, err := o.vesting.RecordRevenue(p.CreatorID, p.AmountCentavos); err != nil {
			metrics.EnrichmentFailures.WithLabelValues("vesting").Inc()
			log.Printf("[payments] payment %s: revenue vesting failed: %v", p.ID, err)
		}
		if _, err := o.guild.Skim(p.CreatorID, net, p.ID); err != nil {
			metrics.EnrichmentFailures.WithLabelValues("guild").Inc()
			log.Printf("[payments] payment %s: guild skim failed: %v", p.ID, err)
		}
	}
	return res, nil
}

// OnCoinTip processes an on-platform tip paid in coins rather than fiat.
// The transfer is canonical; the guild skim on the creator's net is an
// enrichment.
func (o *Orchestrator) OnCoinTip(fromUserID, toCreatorID string, amount int64, referenceID string) (ledger.TransferResult, error) {
	res, err := o.ledger.Transfer(fromUserID, toCreatorID, amount, domain.KindTip, referenceID, "coin tip")
	if err != nil {
		return res, err
	}
	if !res.Duplicate {
		if _, err := o.guild.Skim(toCreatorID, res.Credit.Amount, referenceID); err != nil {
			metrics.EnrichmentFailures.WithLabelValues("guild").Inc()
			log.Printf("[payments] tip %s: guild skim failed: %v", referenceID, err)
		}
	}
	return res, nil
}
