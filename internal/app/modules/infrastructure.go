package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/config"
	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/governance/audit"
	"halcyon.studio/cinema/internal/infrastructure"
	"halcyon.studio/cinema/internal/messaging"
	"halcyon.studio/cinema/internal/notification"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/pkg/worker"
	"halcyon.studio/cinema/internal/ratelimit"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
//
// DB, Redis and NATS are optional. Without a database every store is in
// memory and async runs execute on the generation pool.
type Infrastructure struct {
	Config      *config.Config
	DB          *infrastructure.DatabaseClients
	Pool        *pgxpool.Pool
	RiverClient *river.Client[pgx.Tx]
	Pools       *worker.Pools
	Redis       *redis.Client
	NATS        *nats.Conn
	Bus         *messaging.Bus
	Events      *domain.EventDispatcher
	AuditLogger *audit.Logger
	Notifier    *notification.Triggers
	Limiter     *ratelimit.Limiter
}

// NewInfrastructure connects the configured backends and builds the
// shared services. On error everything opened so far is closed.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (_ *Infrastructure, err error) {
	infra := &Infrastructure{Config: cfg}
	defer func() {
		if err != nil {
			infra.Close()
		}
	}()

	if cfg.Database.Enabled {
		db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		infra.DB = db
		infra.Pool = db.Pool

		// Dev-mode: apply schema + River queue tables on boot.
		if cfg.Database.AutoMigrate {
			if err := db.AutoMigrate(ctx); err != nil {
				return nil, fmt.Errorf("auto-migrate: %w", err)
			}
		}
	} else {
		logger.Warn("Database disabled; credits and production runs are kept in memory")
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:    cfg.Worker.GeneralPoolSize,
		GenerationPoolSize: cfg.Worker.GenerationPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}
	infra.Pools = pools

	if infra.Redis, err = infrastructure.ConnectRedis(ctx, cfg.Redis); err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	if infra.NATS, err = infrastructure.ConnectNATS(cfg.NATS); err != nil {
		return nil, fmt.Errorf("init nats: %w", err)
	}

	infra.Events = domain.NewEventDispatcher()
	if infra.NATS != nil {
		infra.Bus = messaging.NewBus(infra.NATS)
		infra.Events.Register(messaging.EventHandler(infra.Bus),
			domain.EventProductionRequested,
			domain.EventProductionCompleted,
			domain.EventProductionFailed,
			domain.EventCreditsDeducted,
			domain.EventCreditsDeferred,
			domain.EventCreditsGranted,
		)
	}

	var sender notification.Sender = notification.LogSender{}
	if infra.Pool != nil {
		infra.AuditLogger = audit.NewLogger(infra.Pool)
		sender = notification.NewInboxSender(infra.Pool)
	} else {
		infra.AuditLogger = audit.NewLogger(nil)
	}
	infra.Notifier = notification.NewTriggers(sender)

	store, err := limiterStore(cfg.RateLimit.Store, infra.Redis)
	if err != nil {
		return nil, err
	}
	infra.Limiter = ratelimit.New(store)

	logger.Info("Infrastructure initialized",
		zap.Bool("database", infra.DB != nil),
		zap.Bool("redis", infra.Redis != nil),
		zap.Bool("nats", infra.NATS != nil),
		zap.String("ratelimit_store", cfg.RateLimit.Store),
	)
	return infra, nil
}

func limiterStore(kind string, rdb *redis.Client) (ratelimit.Store, error) {
	switch kind {
	case "", "memory":
		return ratelimit.NewMemoryStore(), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("ratelimit store redis: redis is not configured")
		}
		return ratelimit.NewRedisStore(rdb, "halcyon:ratelimit:"), nil
	default:
		return nil, fmt.Errorf("unknown ratelimit store %q", kind)
	}
}

// InitRiver initializes the River client on top of a prepared worker
// registry. Without a database there is no queue and this is a no-op.
func (i *Infrastructure) InitRiver(workers *river.Workers, periodic []*river.PeriodicJob) error {
	if i == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if i.DB == nil {
		return nil
	}
	if err := i.DB.InitRiverClient(workers, periodic, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.NATS != nil {
		if err := i.NATS.Drain(); err != nil {
			logger.Warn("NATS drain failed", zap.Error(err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
