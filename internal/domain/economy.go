package domain

// ─── Economy Parameters ─────────────────────────────────────────────────────
// The coin rate and platform fee are mutable platform configuration. They
// are snapshotted into derived records at creation time; historical entries
// are never recomputed from the current values.

// Economy is the conversion and fee configuration in force.
type Economy struct {
	// CoinsPerBRL converts fiat to FanCoins. The default rate of 100
	// makes one coin worth one centavo.
	CoinsPerBRL int64
	// PlatformFeePercent is skimmed off every fiat earning before the
	// creator is credited.
	PlatformFeePercent float64
}

// DefaultEconomy returns the platform defaults.
func DefaultEconomy() Economy {
	return Economy{CoinsPerBRL: 100, PlatformFeePercent: 15}
}

// CoinsFromCentavos converts a BRL amount in centavos to FanCoins at the
// current rate, rounding down.
func (e Economy) CoinsFromCentavos(centavos int64) int64 {
	if centavos <= 0 {
		return 0
	}
	return centavos * e.CoinsPerBRL / 100
}

// PlatformFee computes the platform's cut of an amount of coins.
func (e Economy) PlatformFee(coins int64) int64 {
	fee := int64(float64(coins) * e.PlatformFeePercent / 100)
	if fee < 0 {
		return 0
	}
	return fee
}
