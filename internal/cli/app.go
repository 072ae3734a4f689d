// Package cli is the interactive admin console: a small REPL over the
// sync, encryption, roster and audit services.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openpos/companysync/internal/audit"
	"github.com/openpos/companysync/internal/company"
	"github.com/openpos/companysync/internal/config"
	"github.com/openpos/companysync/internal/identity"
	"github.com/openpos/companysync/internal/keyring"
	"github.com/openpos/companysync/internal/logging"
	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/relay"
	"github.com/openpos/companysync/internal/staff"
	"github.com/openpos/companysync/internal/store"
	"github.com/openpos/companysync/internal/store/metadata"
	"github.com/openpos/companysync/internal/syncer"
)

// App wires the services behind the interactive console.
type App struct {
	config *config.Config
	log    logging.Logger

	db    *sql.DB
	repos *store.Repositories
	pool  *relay.Pool

	keyring  keyring.Service
	identity identity.Service
	company  company.Registry
	staff    staff.Service
	audit    audit.Service
	sync     syncer.Orchestrator

	reader      *bufio.Reader
	unsubscribe []func()
}

// NewApp opens the local database and constructs the service graph.
func NewApp(cfg *config.Config, log logging.Logger) (*App, error) {
	ctx := context.Background()

	db, repos, err := store.InitDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	pool := relay.NewPool(relay.WebsocketDialer{}, log)
	if raw, err := repos.Metadata.Get(ctx, metadata.KeyRelays); err == nil {
		var saved []models.RelayConnection
		if json.Unmarshal(raw, &saved) == nil {
			for _, rc := range saved {
				pool.AddRelay(rc.URL, rc.Roles)
				if rc.IsPrimary {
					_ = pool.SetPrimary(rc.URL)
				}
			}
		}
	}
	if len(pool.Snapshot()) == 0 {
		for _, url := range cfg.Relays {
			pool.AddRelay(url, models.RelayRoles{Read: true, Write: true})
		}
	}

	orch := syncer.NewOrchestrator(pool, repos.Metadata, repos.Staff, repos.Audit, repos.Seen, log)
	auditSvc := audit.NewService(repos.Audit, orch, log)
	identitySvc := identity.NewService(repos.Metadata, repos.Invites, auditSvc, cfg.JoinBaseURL)
	companyReg := company.NewRegistry(repos.Metadata, pool, auditSvc, log)
	keyringSvc := keyring.NewService(repos.Metadata, repos.Keys, pool, identitySvc, auditSvc, log)
	staffSvc := staff.NewService(repos.Staff, orch, identitySvc, auditSvc)

	return &App{
		config:   cfg,
		log:      log,
		db:       db,
		repos:    repos,
		pool:     pool,
		keyring:  keyringSvc,
		identity: identitySvc,
		company:  companyReg,
		staff:    staffSvc,
		audit:    auditSvc,
		sync:     orch,
		reader:   bufio.NewReader(os.Stdin),
	}, nil
}

// Run provisions the device key, starts the background sync machinery and
// enters the REPL until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.identity.EnsureDeviceKey(ctx); err != nil {
		return err
	}

	a.startSync(ctx)
	go a.watchNotifications(ctx)
	go a.periodicSync(ctx, a.config.SyncInterval)

	a.Root(ctx)
	return nil
}

// startSync opens live subscriptions for every domain. A device without a
// company code yet simply stays local; the subscriptions are retried
// after the code is bound.
func (a *App) startSync(ctx context.Context) {
	if len(a.unsubscribe) > 0 {
		return
	}
	for _, d := range models.Domains() {
		stop, err := a.sync.SubscribeToUpdates(ctx, d)
		if err != nil {
			a.log.Debug("live sync not started", "domain", d, "err", err)
			a.unsubscribe = nil
			return
		}
		a.unsubscribe = append(a.unsubscribe, stop)
	}
}

func (a *App) watchNotifications(ctx context.Context) {
	for {
		select {
		case n := <-a.sync.Events():
			switch n.Type {
			case syncer.NotifyConflictDetected:
				printlnFn("! conflict:", n.Detail)
			case syncer.NotifyDomainUpdated:
				a.log.Info("domain updated", "domain", n.Domain)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) periodicSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			syncCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if _, err := a.sync.SyncAll(syncCtx); err != nil {
				a.log.Warn("background sync failed", "err", err)
			}
			cancel()
			a.startSync(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the live subscriptions, the relay pool and the database.
func (a *App) Close() {
	for _, stop := range a.unsubscribe {
		stop()
	}
	a.pool.Close()
	_ = a.db.Close()
}
