package bootstrap

import (
	"context"
	"os"
	"time"

	"sentinel_server/adapter/out/messaging"
	"sentinel_server/adapter/out/mongodb"
	"sentinel_server/adapter/out/persistence"
	"sentinel_server/adapter/out/provider"
	"sentinel_server/adapter/out/realtime"
	"sentinel_server/config"
	"sentinel_server/core/domain"
	"sentinel_server/core/llm"
	"sentinel_server/core/port/out"
	"sentinel_server/core/service/alert"
	"sentinel_server/core/service/detection"
	"sentinel_server/core/service/dispatch"
	"sentinel_server/core/service/pipeline"
	"sentinel_server/infra/database"
	"sentinel_server/pkg/logger"
	"sentinel_server/pkg/resilience"
	"sentinel_server/pkg/snowflake"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

// Dependencies holds every wired component. Optional backends (Mongo,
// Redis, providers) degrade to nil and the services treat a nil port
// as that concern being disabled.
type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	AlertRepo domain.AlertRepository
	AuditRepo domain.DetectionAuditRepository

	// Outbound ports
	Dedup       out.DedupPort
	DigestQueue out.DigestQueuePort
	PushSender  out.PushSenderPort
	EmailSender out.EmailSenderPort
	SMSSender   out.SMSSenderPort

	// Realtime
	RealtimeAdapter *realtime.SSEAdapter
	SSEHub          *realtime.SSEHub

	// Services
	Lexicon         *detection.Lexicon
	Scanner         *detection.Scanner
	AlertService    *alert.Service
	Dispatcher      *dispatch.Dispatcher
	DigestService   *dispatch.DigestService
	PipelineService *pipeline.Service
}

// NewDependencies wires the full dependency graph. The returned
// cleanup closes every backend connection.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Snowflake IDs
	if err := snowflake.Init(cfg.NodeID); err != nil {
		return nil, nil, err
	}
	ids, err := snowflake.NewGenerator(cfg.NodeID)
	if err != nil {
		return nil, nil, err
	}

	// PostgreSQL
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.DB = pool
		cleanups = append(cleanups, pool.Close)

		sqlDB, err := database.NewSQLxDB(cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.SQLDB = sqlDB
		cleanups = append(cleanups, func() { sqlDB.Close() })

		deps.AlertRepo = persistence.NewAlertAdapter(sqlDB)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory alert store")
		deps.AlertRepo = persistence.NewMemoryAlertRepository()
	}

	// Redis: dedup windows and the digest queue
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { redisClient.Close() })

		deps.Dedup = messaging.NewRedisDedup(redisClient)
		deps.DigestQueue = messaging.NewRedisDigestQueue(redisClient)
	} else {
		logger.Warn("REDIS_URL not set, dedup and digest queue disabled")
	}

	// MongoDB: scan audit trail
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.MongoDB = mongoClient
		cleanups = append(cleanups, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongoClient.Disconnect(ctx)
		})

		auditAdapter := mongodb.NewAuditAdapter(mongoClient.Database(cfg.MongoDBName))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := auditAdapter.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("failed to ensure audit indexes")
		}
		cancel()
		deps.AuditRepo = auditAdapter
	} else {
		logger.Warn("MONGODB_URL not set, scan audit trail disabled")
	}

	// Notification providers
	if cfg.FCMServerKey != "" {
		deps.PushSender = provider.NewFCMPushAdapter(cfg.FCMProjectID, cfg.FCMServerKey)
	}
	if cfg.SendGridAPIKey != "" {
		deps.EmailSender = provider.NewSendGridEmailAdapter(cfg.SendGridAPIKey, cfg.EmailFrom)
	}
	if cfg.TwilioAccountSID != "" {
		deps.SMSSender = provider.NewTwilioSMSAdapter(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	}

	// Realtime (SSE)
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	deps.RealtimeAdapter = realtime.NewSSEAdapter(zlog)
	deps.SSEHub = realtime.NewSSEHub(deps.RealtimeAdapter, zlog)

	// LLM second-opinion reviewer (advisory, off by default)
	var reviewer out.ReviewerPort
	if cfg.ReviewEnabled && cfg.OpenAIAPIKey != "" {
		reviewer = llm.NewClientWithConfig(llm.ClientConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		})
	}

	// Detection engine
	deps.Lexicon = detection.NewLexicon()
	deps.Scanner = detection.NewScanner(deps.Lexicon, detection.Options{
		FuzzyThreshold: cfg.FuzzyThreshold,
		NegationWindow: cfg.NegationWindow,
		MaxExcerptLen:  cfg.MaxExcerptLen,
	})

	// Alert lifecycle
	deps.AlertService = alert.NewService(
		deps.AlertRepo,
		deps.AuditRepo,
		deps.Dedup,
		deps.RealtimeAdapter,
		reviewer,
		ids,
		alert.Config{DedupCooldown: cfg.DedupCooldown},
	)

	// Notification dispatch
	breakers := resilience.NewRegistry(nil)
	deps.Dispatcher = dispatch.NewDispatcher(
		deps.PushSender,
		deps.EmailSender,
		deps.SMSSender,
		deps.DigestQueue,
		deps.AlertService,
		breakers,
		dispatch.Config{
			ChannelTimeout:     cfg.ChannelTimeout,
			CriticalAckTimeout: cfg.CriticalAckTimeout,
			HighAckTimeout:     cfg.HighAckTimeout,
			ModerateAckTimeout: cfg.ModerateAckTimeout,
			CareTeamUserID:     cfg.CareTeamUserID,
			CareTeamEmail:      cfg.CareTeamEmail,
			CareTeamPhone:      cfg.CareTeamPhone,
		},
	)

	if deps.DigestQueue != nil && deps.EmailSender != nil {
		deps.DigestService = dispatch.NewDigestService(deps.DigestQueue, deps.EmailSender, cfg.CareTeamEmail)
	}

	// Full pipeline
	deps.PipelineService = pipeline.NewService(deps.Scanner, deps.AlertService, deps.Dispatcher)

	return deps, cleanup, nil
}

// HealthCheck pings every configured backend.
func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if d.DB != nil {
		if err := d.DB.Ping(ctx); err != nil {
			return err
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	if d.MongoDB != nil {
		if err := d.MongoDB.Ping(ctx, nil); err != nil {
			return err
		}
	}
	return nil
}
