// Package ledger assembles the campus association ledger: event weight
// registries, cost-splitting settlement, and member account movements.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"campus-ledger/config"
	"campus-ledger/internal/locker"
	"campus-ledger/internal/notify"
	"campus-ledger/internal/services"
	"campus-ledger/internal/store"
	"campus-ledger/internal/store/memstore"
	"campus-ledger/internal/store/sqlstore"
	"campus-ledger/monitoring"
	"campus-ledger/utils"
)

// Ledger bundles the wired services. Embedders construct one with Open and
// call the services directly.
type Ledger struct {
	Store      store.Store
	Events     *services.EventService
	Weights    *services.WeightService
	Accounts   *services.AccountService
	Settlement *services.SettlementService
	Monitor    *monitoring.Monitor

	metricsAddr string
	redis       *redis.Client
	closers     []func() error
}

// Open wires a Ledger from configuration. The "memory" driver keeps
// everything in process; "sqlite" and "postgres" persist through the SQL
// store. Redis-backed locking and PubNub notifications are enabled by their
// respective settings.
func Open(cfg *config.Config) (*Ledger, error) {
	l := &Ledger{}

	switch cfg.DBDriver {
	case "memory":
		l.Store = memstore.New()
	default:
		st, err := sqlstore.Open(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		l.Store = st
		l.closers = append(l.closers, st.Close)
	}

	var locks locker.Locker = locker.NewKeyedMutex()
	if cfg.UseRedisLocks {
		client, err := utils.NewRedisClient(cfg.RedisURL)
		if err != nil {
			l.Close()
			return nil, err
		}
		l.redis = client
		l.closers = append(l.closers, client.Close)
		locks = locker.NewRedisLocker(client, cfg.SettlementLockTTL)
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		notifier = notify.NewPubNubNotifier(notify.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			UserID:       cfg.PubNubUserID,
		})
	}

	l.Weights = services.NewWeightService(l.Store, locks)
	l.Events = services.NewEventService(l.Store, locks, l.Weights)
	l.Accounts = services.NewAccountService(l.Store, locks)
	l.Settlement = services.NewSettlementService(l.Store, locks, cfg.HouseAccountID, notifier)
	if cfg.EnableMetrics {
		l.Monitor = monitoring.NewMonitor(l.Store, cfg.MonitorInterval)
		l.metricsAddr = ":" + cfg.MetricsPort
	}

	slog.Info("ledger initialized",
		"environment", cfg.Environment,
		"driver", cfg.DBDriver,
		"redis_locks", cfg.UseRedisLocks,
		"metrics", cfg.EnableMetrics)
	return l, nil
}

// Run starts the background workers (the metrics monitor and its scrape
// endpoint) and blocks until ctx is done. Optional; the services work
// without it.
func (l *Ledger) Run(ctx context.Context) {
	if l.Monitor == nil {
		<-ctx.Done()
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: l.metricsAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "addr", l.metricsAddr, "error", err)
		}
	}()

	l.Monitor.Run(ctx)
}

// Healthy reports whether the ledger's external collaborators respond.
func (l *Ledger) Healthy() error {
	if l.redis != nil {
		if err := utils.RedisHealthCheck(l.redis); err != nil {
			return fmt.Errorf("ledger health: %w", err)
		}
	}
	return nil
}

// Close releases the store and any Redis connection.
func (l *Ledger) Close() error {
	var first error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
