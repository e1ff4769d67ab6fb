package daemon

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/vitalgate/vitalgate/internal/api"
	"github.com/vitalgate/vitalgate/internal/app/sweep"
	"github.com/vitalgate/vitalgate/internal/infra/docstore"
	"github.com/vitalgate/vitalgate/internal/vitals"
)

// Daemon holds the wired gateway components.
type Daemon struct {
	cfg     Config
	db      *docstore.DB
	engine  *vitals.Engine
	sweeper *sweep.Sweeper
	server  *api.Server
}

// New opens the store and wires the engine, sweeper, and API server.
func New(cfg Config) (*Daemon, error) {
	db, err := docstore.Open(cfg.Store.Dir)
	if err != nil {
		return nil, err
	}

	engine := vitals.New(db, db)
	sweeper := sweep.New(db, db, engine)
	server := api.NewServer(engine, sweeper, db, db)
	if cfg.Metrics.Enabled {
		server.EnableMetrics()
	}

	return &Daemon{cfg: cfg, db: db, engine: engine, sweeper: sweeper, server: server}, nil
}

// Engine exposes the recompute engine for CLI one-shot commands.
func (d *Daemon) Engine() *vitals.Engine { return d.engine }

// Sweeper exposes the lock sweep for CLI one-shot commands.
func (d *Daemon) Sweeper() *sweep.Sweeper { return d.sweeper }

// Store exposes the document store for CLI one-shot commands.
func (d *Daemon) Store() *docstore.DB { return d.db }

// Close releases the store.
func (d *Daemon) Close() error { return d.db.Close() }

// Run serves the HTTP API until ctx is cancelled, running the optional
// periodic recompute poll alongside.
func (d *Daemon) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    d.cfg.API.Addr(),
		Handler: d.server.Handler(),
	}

	if every := d.cfg.Engine.PollEvery(); every > 0 && len(d.cfg.Engine.PollPlayers) > 0 {
		go d.pollLoop(ctx, every)
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("vitalgate listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// pollLoop recomputes the configured players on a fixed interval. Each
// pass sweeps first so ghost-expired pendings lock before the snapshot
// refreshes.
func (d *Daemon) pollLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, player := range d.cfg.Engine.PollPlayers {
				if _, _, err := d.sweeper.Run(ctx, player); err != nil {
					log.Printf("poll: recompute %s: %v", player, err)
				}
			}
		}
	}
}
