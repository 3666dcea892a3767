package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Ledger errors
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")

	// State machine errors
	ErrInvalidState = errors.New("invalid state for this transition")

	// Enrichment errors — resolved by silently skipping the enrichment,
	// never by blocking the primary payment.
	ErrConfigurationMissing = errors.New("configuration missing")

	// Lookup / validation errors
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("already exists")
)
