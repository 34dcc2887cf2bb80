package container

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"postsync/internal/config"
	postHandler "postsync/internal/domains/post/handler"
	postRepo "postsync/internal/domains/post/repository"
	postService "postsync/internal/domains/post/service"
	replHandler "postsync/internal/domains/replication/handler"
	replModel "postsync/internal/domains/replication/model"
	"postsync/internal/domains/replication/remote"
	replRepo "postsync/internal/domains/replication/repository"
	replService "postsync/internal/domains/replication/service"
	infraCache "postsync/internal/infrastructure/cache"
	"postsync/internal/infrastructure/database"
	"postsync/internal/infrastructure/queue"
	"postsync/pkg/cache"
	"postsync/pkg/jwt"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container holds every dependency of the process. Optional parts are
// nil when the configuration does not need them.
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================
	Config      *config.Config
	DB          *database.PostgresDB    // STORE_BACKEND=postgres
	Redis       *infraCache.RedisClient // worker or redis checkpoints
	Cache       cache.Cache
	JWTManager  *jwt.Manager
	AsynqClient *queue.Client // WORKER_ENABLED

	// ========================================
	// REPOSITORY LAYER
	// ========================================
	Store       *postRepo.Store
	Checkpoints replRepo.CheckpointStore

	// ========================================
	// SERVICE LAYER
	// ========================================
	QueryService    postService.QueryService
	MutationService postService.MutationService
	Projection      *postService.Projection
	Replication     *replService.Manager // nil unless replicating

	// ========================================
	// HANDLER LAYER
	// ========================================
	PostHandler        *postHandler.PostHandler
	PeerHandler        *replHandler.PeerHandler
	ReplicationHandler *replHandler.ReplicationHandler // nil unless replicating

	stopBackground context.CancelFunc
}

// ========================================
// CONSTRUCTOR: BUILD CONTAINER
// ========================================

// NewContainer builds the dependency graph in order:
// config, infrastructure, repositories, services, handlers.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	log.Info().Str("role", cfg.App.Role).Msg("Initializing DI container")

	c := &Container{Config: cfg}

	// ========================================
	// STEP 1: INFRASTRUCTURE
	// ========================================
	if err := c.initInfrastructure(ctx); err != nil {
		c.Cleanup()
		return nil, err
	}

	// ========================================
	// STEP 2: REPOSITORIES
	// ========================================
	if err := c.initRepositories(ctx); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	log.Info().Str("backend", cfg.Store.Backend).Msg("✅ Repositories initialized")

	// ========================================
	// STEP 3: SERVICES
	// ========================================
	if err := c.initServices(); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}
	log.Info().Bool("replication", c.Replication != nil).Msg("✅ Services initialized")

	// ========================================
	// STEP 4: HANDLERS
	// ========================================
	c.initHandlers()
	log.Info().Msg("✅ Handlers initialized")

	return c, nil
}

func (c *Container) initInfrastructure(ctx context.Context) error {
	cfg := c.Config

	if cfg.Store.Backend == config.BackendPostgres {
		dbConfig, err := config.LoadDatabaseConfig()
		if err != nil {
			return fmt.Errorf("failed to load database config: %w", err)
		}

		db := database.NewPostgresDB(dbConfig)
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := db.Connect(connectCtx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.HealthCheck(ctx); err != nil {
			db.Close()
			return fmt.Errorf("database health check failed: %w", err)
		}
		c.DB = db
		log.Info().Msg("✅ Database connected")
	}

	if cfg.UsesRedis() {
		redis := infraCache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
		if err := redis.Connect(ctx); err != nil {
			redis.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.Redis = redis
		c.Cache = infraCache.NewRedisCache(redis.Client, cfg.App.Name+":")
	}

	if cfg.Worker.Enabled {
		c.AsynqClient = queue.NewClient(c.RedisConnOpt())
	}

	c.JWTManager = jwt.NewManager(cfg.Peer.Secret, cfg.Peer.TokenTTL)
	return nil
}

// RedisConnOpt is the asynq connection to the configured Redis.
func (c *Container) RedisConnOpt() asynq.RedisConnOpt {
	return asynq.RedisClientOpt{
		Addr:     c.Config.Redis.Host,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	}
}

// ========================================
// PRIVATE INITIALIZATION METHODS
// ========================================

func (c *Container) initRepositories(ctx context.Context) error {
	// ----------------------------------------
	// DOCUMENT STORE
	// ----------------------------------------
	var persister postRepo.Persister
	switch c.Config.Store.Backend {
	case config.BackendPostgres:
		pg := postRepo.NewPostgresPersister(c.DB.Pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		persister = pg
	default:
		persister = postRepo.NewMemoryPersister()
	}

	store, err := postRepo.Open(ctx, persister)
	if err != nil {
		return err
	}
	c.Store = store

	// ----------------------------------------
	// CHECKPOINTS
	// ----------------------------------------
	if c.Config.Replication.CheckpointBackend == config.BackendRedis {
		c.Checkpoints = replRepo.NewCacheCheckpointStore(c.Cache)
	} else {
		c.Checkpoints = replRepo.NewMemoryCheckpointStore()
	}
	return nil
}

func (c *Container) initServices() error {
	// ----------------------------------------
	// POST SERVICES
	// ----------------------------------------
	c.QueryService = postService.NewQueryService(c.Store)
	c.Projection = postService.NewProjection(c.Store, c.QueryService)
	c.MutationService = postService.NewMutationService(c.Store, c.Projection)

	// ----------------------------------------
	// REPLICATION MANAGER
	// ----------------------------------------
	if !c.Config.Replicates() {
		return nil
	}

	rc := c.Config.Replication
	peer, err := remote.NewHTTPPeer(
		rc.RemoteURL,
		rc.RequestTimeout,
		jwt.NewPeerTokenSource(c.JWTManager, rc.ReplicaID),
	)
	if err != nil {
		return err
	}
	mode, err := replModel.ParseMode(rc.InitialMode)
	if err != nil {
		return err
	}

	c.Replication = replService.NewManager(c.Store, peer, c.Checkpoints, c.Projection, replService.Config{
		ReplicaID:   rc.ReplicaID,
		InitialMode: mode,
		BatchSize:   rc.BatchSize,
		RetryMin:    rc.RetryMin,
		RetryMax:    rc.RetryMax,
	})
	return nil
}

func (c *Container) initHandlers() {
	var seeder postHandler.SeedEnqueuer
	if c.AsynqClient != nil {
		seeder = c.AsynqClient
	}
	c.PostHandler = postHandler.NewPostHandler(c.MutationService, c.QueryService, c.Projection, seeder)
	c.PeerHandler = replHandler.NewPeerHandler(remote.NewLocalPeer(c.Store))
	if c.Replication != nil {
		c.ReplicationHandler = replHandler.NewReplicationHandler(c.Replication)
	}
}

// ========================================
// LIFECYCLE
// ========================================

// Start refreshes the view, starts the change-feed watcher and enters the
// initial replication mode.
func (c *Container) Start(ctx context.Context) error {
	if err := c.Projection.Refresh(ctx); err != nil {
		return fmt.Errorf("initial view refresh failed: %w", err)
	}

	bg, cancel := context.WithCancel(context.Background())
	c.stopBackground = cancel
	go func() {
		if err := c.Projection.Watch(bg); err != nil {
			log.Error().Err(err).Msg("View projection watcher stopped")
		}
	}()

	if c.Replication != nil {
		if err := c.Replication.Start(ctx); err != nil {
			return fmt.Errorf("failed to start replication: %w", err)
		}
	}
	return nil
}

// Cleanup releases everything in reverse order. Safe on a partly built container.
func (c *Container) Cleanup() {
	log.Info().Msg("Cleaning up container resources")

	if c.Replication != nil {
		c.Replication.Close()
	}
	if c.stopBackground != nil {
		c.stopBackground()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close document store")
		}
	}
	if c.AsynqClient != nil {
		if err := c.AsynqClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close asynq client")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis")
		}
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}

	log.Info().Msg("✅ Container cleanup completed")
}
