// Package daemon wires the FanCoin services together and runs them.
//
// The daemon owns the SQLite store, the application services, the HTTP
// server and two background loops: the commitment maturity sweep and the
// time-vesting tick.
package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/fandreams/fancoin/internal/api"
	"github.com/fandreams/fancoin/internal/app/affiliate"
	"github.com/fandreams/fancoin/internal/app/commitment"
	"github.com/fandreams/fancoin/internal/app/guild"
	"github.com/fandreams/fancoin/internal/app/ledger"
	"github.com/fandreams/fancoin/internal/app/payments"
	"github.com/fandreams/fancoin/internal/app/vesting"
	"github.com/fandreams/fancoin/internal/domain"
	"github.com/fandreams/fancoin/internal/infra/sqlite"
)

// Daemon is the assembled FanCoin node.
type Daemon struct {
	cfg Config
	db  *sqlite.DB

	Ledger      *ledger.Service
	Vesting     *vesting.Engine
	Affiliate   *affiliate.Resolver
	Guild       *guild.Skimmer
	Commitments *commitment.Manager
	Payments    *payments.Orchestrator

	server *http.Server
}

// New opens the store and wires the services.
func New(cfg Config) (*Daemon, error) {
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sqlite.Open(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	economy := domain.Economy{
		CoinsPerBRL:        cfg.Economy.CoinsPerBRL,
		PlatformFeePercent: cfg.Economy.PlatformFeePercent,
	}

	d := &Daemon{cfg: cfg, db: db}
	d.Ledger = ledger.New(db, economy)
	d.Vesting = vesting.New(db)
	d.Affiliate = affiliate.New(db, economy)
	d.Guild = guild.New(db)
	d.Commitments = commitment.New(db)
	d.Payments = payments.New(db, economy, d.Ledger, d.Vesting, d.Affiliate, d.Guild)
	return d, nil
}

// DB exposes the store for CLI commands that read it directly.
func (d *Daemon) DB() *sqlite.DB { return d.db }

// Run starts the HTTP server and the background loops, blocking until the
// context is cancelled, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	srv := api.NewServer(d.Ledger, d.Vesting, d.Affiliate, d.Guild, d.Commitments, d.Payments)
	if d.cfg.API.MetricsEnabled {
		srv.EnableMetrics()
	}

	addr := fmt.Sprintf("%s:%d", d.cfg.API.Host, d.cfg.API.Port)
	d.server = &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on %s", addr)
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go d.sweepLoop(ctx)
	go d.vestingLoop(ctx)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[daemon] shutdown: %v", err)
	}
	return d.db.Close()
}

// sweepLoop completes matured commitments on a fixed interval.
func (d *Daemon) sweepLoop(ctx context.Context) {
	interval := parseInterval(d.cfg.Jobs.SweepInterval, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := d.Commitments.MaturitySweep(now)
			if err != nil {
				log.Printf("[daemon] maturity sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[daemon] maturity sweep completed %d commitments", n)
			}
		}
	}
}

// vestingLoop unlocks due time-vesting grants on a fixed interval.
func (d *Daemon) vestingLoop(ctx context.Context) {
	interval := parseInterval(d.cfg.Jobs.VestingTickInterval, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := d.Vesting.Tick(now)
			if err != nil {
				log.Printf("[daemon] vesting tick: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[daemon] vesting tick unlocked %d grants", n)
			}
		}
	}
}

// parseInterval parses a duration string, falling back on bad input.
func parseInterval(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
