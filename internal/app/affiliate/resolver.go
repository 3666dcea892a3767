// Package affiliate runs the two-level commission cascade.
//
// The chain is resolved at payment time from the referral captured at
// signup: level 1 is the affiliate whose link brought the payer to the
// creator, level 2 is that affiliate's own referrer for the same creator.
// Percents come from the creator's program and are snapshotted into each
// commission record.
package affiliate

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"

	"github.com/fandreams/fancoin/internal/domain"
	"github.com/fandreams/fancoin/internal/infra/metrics"
	"github.com/fandreams/fancoin/internal/infra/sqlite"
)

// Link codes avoid 0/O/1/I/l to stay transcribable.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"
	codeLength   = 8
)

// Resolver resolves and credits affiliate commissions.
type Resolver struct {
	db      *sqlite.DB
	economy domain.Economy
}

// New creates an affiliate resolver.
func New(db *sqlite.DB, economy domain.Economy) *Resolver {
	return &Resolver{db: db, economy: economy}
}

// ConfigureProgram creates or replaces a creator's commission program.
// Level percents must be within platform bounds; historical commission
// snapshots are never rewritten.
func (r *Resolver) ConfigureProgram(program domain.AffiliateProgram, levels []domain.AffiliateLevel) error {
	return r.db.UpsertProgram(program, levels)
}

// CreateLink issues a trackable signup link for an affiliate and creator.
// One link exists per (affiliate, creator) pair; repeated calls return it.
func (r *Resolver) CreateLink(affiliateUserID, creatorID string) (domain.AffiliateLink, error) {
	var zero domain.AffiliateLink
	if affiliateUserID == "" || creatorID == "" {
		return zero, fmt.Errorf("%w: affiliate and creator ids required", domain.ErrInvalidArgument)
	}
	if affiliateUserID == creatorID {
		return zero, fmt.Errorf("%w: creators cannot affiliate for themselves", domain.ErrInvalidArgument)
	}
	code, err := newCode()
	if err != nil {
		return zero, err
	}
	return r.db.InsertLink(domain.AffiliateLink{
		AffiliateUserID: affiliateUserID,
		CreatorID:       creatorID,
		Code:            code,
	})
}

// TrackClick records a click on a link code.
func (r *Resolver) TrackClick(code string) error {
	return r.db.RecordLinkClick(code)
}

// RegisterReferral binds a referred user to a creator's program through a
// link code. The level-2 affiliate is fixed here: the level-1 affiliate's
// own referrer for the same creator, if any. First write wins; a second
// registration for the same (user, creator) pair returns the original.
func (r *Resolver) RegisterReferral(referredUserID, code string) (domain.AffiliateReferral, error) {
	var zero domain.AffiliateReferral
	link, err := r.db.GetLinkByCode(code)
	if err != nil {
		return zero, fmt.Errorf("resolve link %q: %w", code, err)
	}
	if link.AffiliateUserID == referredUserID {
		return zero, fmt.Errorf("%w: self-referral", domain.ErrInvalidArgument)
	}
	if link.CreatorID == referredUserID {
		return zero, fmt.Errorf("%w: creators cannot be referred to themselves", domain.ErrInvalidArgument)
	}

	ref := domain.AffiliateReferral{
		ReferredUserID: referredUserID,
		CreatorID:      link.CreatorID,
		L1AffiliateID:  link.AffiliateUserID,
		LinkID:         link.ID,
	}
	// The L1 affiliate's own referral for this creator, if one exists,
	// fixes the level-2 affiliate.
	if parent, err := r.db.FindReferral(link.AffiliateUserID, link.CreatorID); err == nil {
		ref.L2AffiliateID = parent.L1AffiliateID
	} else if !errors.Is(err, domain.ErrNotFound) {
		return zero, fmt.Errorf("resolve parent referral: %w", err)
	}

	stored, created, err := r.db.InsertReferral(ref)
	if err != nil {
		return zero, fmt.Errorf("register referral: %w", err)
	}
	if created {
		log.Printf("[affiliate] referral %s: %s -> creator %s via %s",
			stored.ID, referredUserID, link.CreatorID, link.AffiliateUserID)
	}
	return stored, nil
}

// Credited describes one commission paid out by Resolve.
type Credited struct {
	Commission domain.AffiliateCommission `json:"commission"`
	Created    bool                       `json:"created"`
}

// Resolve runs the commission cascade for one completed payment.
//
// Skips silently (nil, nil) when the payer was never referred to this
// creator or the creator has no active program — most payments have no
// affiliate chain. Each (payment, affiliate, level) is credited at most
// once, so replaying a payment is safe.
func (r *Resolver) Resolve(paymentID, payerUserID, creatorID string, grossCentavos int64) ([]Credited, error) {
	ref, err := r.db.FindReferral(payerUserID, creatorID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find referral: %w", err)
	}

	program, levels, err := r.db.GetProgram(creatorID)
	if errors.Is(err, domain.ErrConfigurationMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	if !program.IsActive {
		return nil, nil
	}

	percents := make(map[int]float64, len(levels))
	for _, l := range levels {
		percents[l.Level] = l.CommissionPercent
	}

	affiliates := []struct {
		level  int
		userID string
	}{
		{1, ref.L1AffiliateID},
		{2, ref.L2AffiliateID},
	}

	var out []Credited
	for _, a := range affiliates {
		if a.userID == "" || a.level > program.MaxLevels {
			continue
		}
		pct, ok := percents[a.level]
		if !ok {
			continue
		}
		centavos := domain.CommissionCentavos(grossCentavos, pct)
		coins := r.economy.CoinsFromCentavos(centavos)
		if coins <= 0 {
			continue
		}
		c := domain.AffiliateCommission{
			AffiliateUserID:   a.userID,
			CreatorID:         creatorID,
			PaymentID:         paymentID,
			Level:             a.level,
			CommissionPercent: pct,
			AmountCentavos:    centavos,
			CoinsCredited:     coins,
		}
		created, err := r.db.CreditCommission(c)
		if err != nil {
			return out, fmt.Errorf("credit L%d commission: %w", a.level, err)
		}
		if created {
			metrics.CommissionsCredited.WithLabelValues(fmt.Sprintf("%d", a.level)).Inc()
			log.Printf("[affiliate] payment %s: L%d commission %d coins to %s (%.1f%%)",
				paymentID, a.level, coins, a.userID, pct)
		}
		out = append(out, Credited{Commission: c, Created: created})
	}
	return out, nil
}

// Commissions lists an affiliate's payouts, newest first.
func (r *Resolver) Commissions(affiliateUserID string, limit int) ([]domain.AffiliateCommission, error) {
	return r.db.ListCommissions(affiliateUserID, limit)
}

// newCode draws a random link code from the unambiguous alphabet.
func newCode() (string, error) {
	buf := make([]byte, codeLength)
	alpha := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alpha)
		if err != nil {
			return "", fmt.Errorf("generate link code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
