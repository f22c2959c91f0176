package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/achievehub/achievehub/internal/achievement"
	"github.com/achievehub/achievehub/internal/approval"
	"github.com/achievehub/achievehub/internal/audit"
	"github.com/achievehub/achievehub/internal/auth"
	"github.com/achievehub/achievehub/internal/evaluation"
	"github.com/achievehub/achievehub/internal/observability"
	"github.com/achievehub/achievehub/internal/platform/cache"
	"github.com/achievehub/achievehub/internal/platform/db"
	"github.com/achievehub/achievehub/internal/platform/lock"
	"github.com/achievehub/achievehub/internal/rbac"
	"github.com/achievehub/achievehub/internal/stats"
	"github.com/achievehub/achievehub/internal/store/memory"
	"github.com/achievehub/achievehub/internal/store/postgres"
)

// Backend is the persistence surface shared by the services.
type Backend interface {
	achievement.Repository
	approval.ReviewStore
	rbac.OwnerLookup
}

// Container owns the long-lived services of one process.
type Container struct {
	Config       *Config
	Logger       *slog.Logger
	Pool         *pgxpool.Pool
	Redis        *redis.Client
	Backend      Backend
	Records      audit.RecordStore
	Ratings      evaluation.Repository
	Users        auth.Repository
	Evaluator    *rbac.Evaluator
	RBAC         rbac.Middleware
	Locker       lock.Locker
	Trail        *audit.Trail
	Stats        *stats.View
	Workflow     *approval.Workflow
	Achievements *achievement.Service
	Evaluations  *evaluation.Service
	Sessions     *auth.SessionStore
	Auth         *auth.Service
	Metrics      *observability.Metrics
}

// Dependencies lets callers inject pre-built infrastructure. Nil fields are
// built from Config.
type Dependencies struct {
	Redis   *redis.Client
	Pool    *pgxpool.Pool
	Metrics *observability.Metrics
}

// Build wires every service from cfg.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger, deps Dependencies) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{Config: cfg, Logger: logger, Redis: deps.Redis, Pool: deps.Pool, Metrics: deps.Metrics}
	if c.Metrics == nil {
		c.Metrics = observability.NewMetrics()
	}

	if c.Redis == nil {
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, fmt.Errorf("app: connect redis: %w", err)
		}
		c.Redis = client
	}

	if err := c.buildBackend(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.Evaluator = rbac.NewEvaluator(rbac.DefaultCatalog(), c.Backend)
	c.RBAC = rbac.Middleware{Evaluator: c.Evaluator, Logger: logger}

	keyed := lock.NewKeyedMutex()
	c.Locker = keyed
	if cfg.ApprovalDistributedLock {
		c.Locker = lock.Chain{keyed, lock.NewRedisLocker(c.Redis, cfg.ApprovalLockTTL, cfg.ApprovalLockWait)}
	}

	c.Trail = audit.NewTrail(c.Records, audit.WithLocation(cfg.StatsLocation()))
	c.Stats = stats.NewView(c.Backend, c.Trail,
		stats.WithCache(stats.NewRedisCache(c.Redis, cfg.StatsCacheTTL)),
		stats.WithLogger(logger))

	c.Workflow = approval.NewWorkflow(c.Backend, c.Trail,
		approval.WithLocker(c.Locker),
		approval.WithLogger(logger),
		approval.WithMetrics(c.Metrics),
		approval.OnTransition(func(ctx context.Context, t approval.Transition) {
			c.Stats.Invalidate(ctx)
		}))
	c.Achievements = achievement.NewService(c.Backend, c.Evaluator,
		achievement.WithLocker(c.Locker),
		achievement.WithLogger(logger),
		achievement.OnChange(c.Stats.Invalidate))
	c.Evaluations = evaluation.NewService(c.Ratings, c.Achievements, c.Evaluator,
		evaluation.WithLogger(logger))

	c.Sessions = auth.NewSessionStore(c.Redis, cfg.SessionTTL)
	c.Auth = auth.NewService(c.Users, c.Sessions)
	return c, nil
}

func (c *Container) buildBackend(ctx context.Context) error {
	switch c.Config.StoreDriver {
	case StoreMemory:
		store := memory.New(nil)
		c.Backend = store
		c.Records = store.Records()
		c.Ratings = memory.NewEvaluationStore()
		users := auth.NewMemoryRepository()
		if c.Config.BootstrapAdminEmail != "" {
			hash, err := auth.HashPassword(c.Config.BootstrapAdminPassword)
			if err != nil {
				return fmt.Errorf("app: hash bootstrap password: %w", err)
			}
			users.Add(auth.User{
				ID:           1,
				Email:        c.Config.BootstrapAdminEmail,
				PasswordHash: hash,
				Authorities:  []string{rbac.RoleAdministrator.Authority()},
				IsActive:     true,
			})
		}
		c.Users = users
		c.Logger.Warn("using in-memory store, data is lost on restart")
	case StorePostgres:
		if c.Pool == nil {
			pool, err := db.New(ctx, db.Options{DSN: c.Config.PGDSN, MaxConns: c.Config.PGMaxConns})
			if err != nil {
				return fmt.Errorf("app: connect postgres: %w", err)
			}
			c.Pool = pool
		}
		store := postgres.New(c.Pool)
		c.Backend = store
		c.Records = store
		c.Ratings = postgres.NewEvaluationStore(c.Pool)
		c.Users = auth.NewRepository(c.Pool)
	default:
		return fmt.Errorf("app: unknown store driver %q", c.Config.StoreDriver)
	}
	return nil
}

// Close releases pooled connections.
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("close redis", slog.Any("error", err))
		}
	}
}
