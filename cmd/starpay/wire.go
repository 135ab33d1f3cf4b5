package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/alerthook"
	audithook "github.com/xraph/starpay/audit_hook"
	"github.com/xraph/starpay/config"
	"github.com/xraph/starpay/internal/logging"
	"github.com/xraph/starpay/invoice"
	"github.com/xraph/starpay/keylock"
	"github.com/xraph/starpay/observability"
	"github.com/xraph/starpay/plan"
	"github.com/xraph/starpay/reference"
	"github.com/xraph/starpay/store"
	"github.com/xraph/starpay/store/bolt"
	"github.com/xraph/starpay/store/memory"
	"github.com/xraph/starpay/store/mongo"
	"github.com/xraph/starpay/store/postgres"
	"github.com/xraph/starpay/store/sqlite"
	"github.com/xraph/starpay/subscription"
)

// errOffline is returned by the channel used for operator commands, which
// never talk to Telegram.
var errOffline = errors.New("starpay: payment channel not available in this command")

var offlineChannel = invoice.ChannelFunc(func(context.Context, *invoice.Invoice) error {
	return errOffline
})

// runtime holds everything built from a Config.
type runtime struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    store.Store
	subs     *subscription.Service
	engine   *starpay.Engine
	registry *prometheus.Registry
	redis    *redis.Client
}

func (r *runtime) Close(ctx context.Context) {
	if r.engine != nil {
		if err := r.engine.Stop(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("engine stop")
		}
	} else if r.store != nil {
		_ = r.store.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "starpay",
	})
	return cfg, logger, nil
}

// openStore opens the backend named by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreSQLite:
		return sqlite.Open(ctx, cfg.StoreDSN)
	case config.StorePostgres:
		return postgres.Open(ctx, cfg.StoreDSN)
	case config.StoreMongo:
		return mongo.Open(ctx, cfg.StoreDSN, cfg.MongoDatabase)
	case config.StoreBolt:
		return bolt.Open(cfg.StoreDSN)
	default:
		return nil, fmt.Errorf("config: unknown store %q", cfg.Store)
	}
}

func loadCatalog(path string) (*plan.Catalog, error) {
	if path == "" {
		return plan.DefaultCatalog(), nil
	}
	return plan.LoadFile(path)
}

// build opens the store and assembles the engine around ch. The store is
// migrated before build returns.
func build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, ch invoice.Channel) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	catalog, err := loadCatalog(cfg.PlansFile)
	if err != nil {
		return nil, err
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.store = s
	if !cfg.Durable() {
		logger.Warn().Msg("memory store selected: the charge ledger will not survive a restart")
	}

	var locker keylock.Locker = keylock.NewLocal()
	if cfg.RedisAddr != "" {
		rt.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("redis: %w", err)
		}
		locker = keylock.NewRedis(rt.redis)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis charge locks")
	}

	rt.subs = subscription.NewService(s,
		subscription.WithLocker(locker),
		subscription.WithLogger(logger.With().Str("component", "subscription").Logger()),
	)

	opts := []starpay.Option{
		starpay.WithLogger(logger),
		starpay.WithLocker(locker),
		starpay.WithPreCheckoutDeadline(cfg.PreCheckoutDeadline),
		starpay.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(rt.registry))),
		starpay.WithPlugin(audithook.New(auditLog(logger), audithook.WithLogger(logger))),
	}
	if cfg.ReferenceKey != "" {
		opts = append(opts, starpay.WithCodec(reference.NewCodec([]byte(cfg.ReferenceKey))))
	}
	if cfg.SlackWebhookURL != "" {
		opts = append(opts, starpay.WithPlugin(alerthook.New(cfg.SlackWebhookURL,
			alerthook.WithChannel(cfg.SlackChannel),
			alerthook.WithLogger(logger),
		)))
	}

	eng, err := starpay.New(catalog, s, ch, rt.subs, opts...)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.engine = eng

	if err := eng.Start(ctx); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

// auditLog writes audit events to the structured log.
func auditLog(logger zerolog.Logger) audithook.RecorderFunc {
	l := logger.With().Str("component", "audit").Logger()
	return func(_ context.Context, ev *audithook.AuditEvent) error {
		l.Info().
			Str("action", ev.Action).
			Str("resource", ev.Resource).
			Str("resource_id", ev.ResourceID).
			Str("outcome", ev.Outcome).
			Str("severity", ev.Severity).
			Str("reason", ev.Reason).
			Fields(ev.Metadata).
			Msg("audit")
		return nil
	}
}
