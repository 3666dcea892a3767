// Package api provides the FanCoin HTTP API.
// It exposes the wallet read model, the payment webhook, and the bonus,
// commitment, affiliate and guild operations under /api/v1.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fandreams/fancoin/internal/app/affiliate"
	"github.com/fandreams/fancoin/internal/app/commitment"
	"github.com/fandreams/fancoin/internal/app/guild"
	"github.com/fandreams/fancoin/internal/app/ledger"
	"github.com/fandreams/fancoin/internal/app/payments"
	"github.com/fandreams/fancoin/internal/app/vesting"
	"github.com/fandreams/fancoin/internal/domain"
)

// Server is the FanCoin HTTP API server.
type Server struct {
	ledger         *ledger.Service
	vesting        *vesting.Engine
	affiliate      *affiliate.Resolver
	guild          *guild.Skimmer
	commitments    *commitment.Manager
	payments       *payments.Orchestrator
	metricsEnabled bool
}

// NewServer creates an API server over the application services.
func NewServer(led *ledger.Service, vest *vesting.Engine, aff *affiliate.Resolver, gld *guild.Skimmer, com *commitment.Manager, pay *payments.Orchestrator) *Server {
	return &Server{
		ledger:      led,
		vesting:     vest,
		affiliate:   aff,
		guild:       gld,
		commitments: com,
		payments:    pay,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/wallet/{userID}", s.handleWallet)
		r.Get("/wallet/{userID}/transactions", s.handleTransactions)
		r.Post("/withdrawals", s.handleWithdraw)

		r.Post("/payments/completed", s.handlePaymentCompleted)
		r.Post("/tips", s.handleTip)

		r.Post("/bonuses", s.handleGrantBonus)
		r.Get("/bonuses", s.handleListBonuses)
		r.Post("/bonuses/{grantID}/complete", s.handleCompleteCondition)

		r.Post("/commitments", s.handleCreateCommitment)
		r.Get("/commitments", s.handleListCommitments)
		r.Post("/commitments/{id}/withdraw", s.handleWithdrawCommitment)

		r.Put("/affiliate/programs/{creatorID}", s.handleConfigureProgram)
		r.Post("/affiliate/links", s.handleCreateLink)
		r.Post("/affiliate/links/{code}/click", s.handleTrackClick)
		r.Post("/affiliate/referrals", s.handleRegisterReferral)
		r.Get("/affiliate/{userID}/commissions", s.handleListCommissions)

		r.Post("/guilds", s.handleCreateGuild)
		r.Post("/guilds/{guildID}/members", s.handleJoinGuild)
		r.Get("/guilds/{guildID}/treasury", s.handleTreasuryHistory)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps a service error to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrConfigurationMissing):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
