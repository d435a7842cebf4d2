// Package bootstrap assembles the job tracker from configuration. Both the
// API daemon and the CLI run the same graph.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/adapter/repo"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/assets"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/events"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra/credentials"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/jobstore"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/lifecycle"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/monitor"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/providers/storageapi"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/providers/workerpool"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/realtime"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/storage"
)

// Runtime holds the assembled components.
type Runtime struct {
	Config *infra.Config
	Logger infra.Logger

	DB      *pgxpool.Pool
	SQL     *infra.SQLRunner
	JobRepo *repo.JobRepositoryPG

	Jobs   *lifecycle.Manager
	Assets *assets.Resolver
	Bus    *events.Bus
	Hub    *realtime.Hub
	// Files is set only for the local storage backend.
	Files *storage.FileStore

	listener *realtime.PQListener
	redis    *redis.Client
}

// New connects to Postgres (and Redis when configured), builds every
// component and binds the manager to cfg.SessionID. It does not recover the
// persisted job; callers decide when to call Jobs.Recover.
func New(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}
	if err := rt.build(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context) error {
	cfg, logger := rt.Config, rt.Logger
	var err error
	if rt.DB, err = infra.NewDBPool(ctx, cfg); err != nil {
		return err
	}
	rt.SQL = infra.NewSQLRunner(rt.DB, infra.Component(logger, "sql"))
	rt.JobRepo = repo.NewJobRepository(rt.SQL)
	creds := credentials.NewStore(rt.SQL)

	poolKey, err := creds.Resolve(ctx, credentials.ProviderWorkerPool, cfg.WorkerPoolAPIKey)
	if err != nil {
		return fmt.Errorf("bootstrap: worker pool credentials: %w", err)
	}
	pool, err := workerpool.NewClient(workerpool.Options{
		BaseURL: cfg.WorkerPoolBaseURL,
		APIKey:  poolKey,
		Logger:  infra.Component(logger, "workerpool"),
	})
	if err != nil {
		return err
	}

	var status domain.StatusSource = rt.JobRepo
	if cfg.StatusSource == infra.StatusSourceHTTP {
		status = pool
	}

	store, err := rt.jobStore(ctx)
	if err != nil {
		return err
	}
	objects, err := rt.objectStore(ctx, creds)
	if err != nil {
		return err
	}

	var limiter *rate.Limiter
	if cfg.SignRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SignRatePerSecond), max(1, int(cfg.SignRatePerSecond)))
	}
	rt.Assets, err = assets.NewResolver(assets.Options{
		Repo:            repo.NewAssetRepository(rt.SQL),
		Store:           objects,
		SignedURLTTL:    cfg.SignedURLTTL,
		BucketFallbacks: cfg.BucketFallbacks,
		Limiter:         limiter,
		Logger:          infra.Component(logger, "assets"),
	})
	if err != nil {
		return err
	}

	rt.Hub = realtime.NewHub()
	monOpts := monitor.Options{
		Source:       status,
		PollInterval: cfg.PollInterval,
		Logger:       infra.Component(logger, "monitor"),
	}
	if listener, lerr := realtime.NewPQListener(cfg.DatabaseURL, rt.Hub, infra.Component(logger, "realtime")); lerr != nil {
		logger.Warn().Err(lerr).Msg("push notifications unavailable; status will be polled only")
	} else {
		rt.listener = listener
		monOpts.Subscriber = rt.Hub
	}

	rt.Bus = events.NewBus(infra.Component(logger, "events"))
	rt.Jobs, err = lifecycle.NewManager(lifecycle.Options{
		Pool:     pool,
		Status:   status,
		Store:    store,
		Monitor:  monitor.New(monOpts),
		Assets:   rt.Assets,
		Notifier: rt.Bus,
		Timeout:  cfg.GenerationTimeout,
		Locale:   cfg.DefaultLocale,
		Logger:   infra.Component(logger, "lifecycle"),
	})
	if err != nil {
		return err
	}
	return rt.Jobs.Initialize(ctx, cfg.SessionID)
}

func (rt *Runtime) jobStore(ctx context.Context) (domain.JobStore, error) {
	switch rt.Config.JobStore {
	case infra.JobStoreRedis:
		client, err := infra.NewRedisClient(ctx, rt.Config)
		if err != nil {
			return nil, err
		}
		rt.redis = client
		return jobstore.NewRedisStore(client, rt.Config.GenerationTimeout), nil
	case infra.JobStoreMemory:
		return jobstore.NewMemoryStore(), nil
	default:
		return jobstore.NewFileStore(rt.Config.JobStoreDir)
	}
}

func (rt *Runtime) objectStore(ctx context.Context, creds *credentials.Store) (domain.ObjectStore, error) {
	if rt.Config.StorageBackend == infra.StorageRemote {
		key, err := creds.Resolve(ctx, credentials.ProviderStorageAPI, rt.Config.StorageAPIKey)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: storage credentials: %w", err)
		}
		return storageapi.NewClient(storageapi.Options{
			BaseURL: rt.Config.StorageAPIBaseURL,
			APIKey:  key,
			Logger:  infra.Component(rt.Logger, "storageapi"),
		})
	}
	files, err := storage.NewFileStore(storage.Options{
		BasePath:   rt.Config.StoragePath,
		BaseURL:    rt.Config.StorageBaseURL,
		SigningKey: rt.Config.StorageSigningKey,
	})
	if err != nil {
		return nil, err
	}
	rt.Files = files
	return files, nil
}

// Listen relays push notifications until ctx is done. It returns at once
// when push is unavailable.
func (rt *Runtime) Listen(ctx context.Context) error {
	if rt.listener == nil {
		return nil
	}
	return rt.listener.Run(ctx)
}

// Close stops tracking (the persisted record survives) and releases
// connections.
func (rt *Runtime) Close() {
	if rt.Jobs != nil {
		rt.Jobs.Close()
	}
	if rt.listener != nil {
		rt.listener.Close()
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			rt.Logger.Warn().Err(err).Msg("close redis")
		}
	}
	if rt.DB != nil {
		rt.DB.Close()
	}
}
