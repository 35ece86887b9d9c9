package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/groupguard/groupguard/automod"
	"github.com/groupguard/groupguard/automod/cachestore"
	"github.com/groupguard/groupguard/automod/classify"
	"github.com/groupguard/groupguard/automod/consumer"
	"github.com/groupguard/groupguard/automod/countstore"
	"github.com/groupguard/groupguard/automod/engine"
	"github.com/groupguard/groupguard/automod/flagstore"
	"github.com/groupguard/groupguard/automod/setstore"
	"github.com/groupguard/groupguard/automod/telegram"
	"github.com/groupguard/groupguard/automod/truststore"
	"github.com/groupguard/groupguard/util"
	"github.com/groupguard/groupguard/util/cliutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Server struct {
	logger   *slog.Logger
	engine   *automod.Engine
	consumer *consumer.TelegramConsumer
	admin    *AdminServer
	stores   *Stores
	nats     *engine.NatsNotifier
}

type StoreConfig struct {
	DatabaseURL      string
	MaxDBConnections int
	RedisURL         string
	CacheTTL         time.Duration
	DBTracing        bool
}

type Config struct {
	Logger          *slog.Logger
	BotToken        string
	AdminID         int64
	Stores          StoreConfig
	SetsFileJSON    string
	FlaggedLangs    []string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiRateLimit float64
	SlackWebhookURL string
	NatsURL         string
	NatsSubject     string
	Engine          engine.EngineConfig
	AdminBind       string
	AdminToken      string
}

// Storage backends shared by the daemon and the admin CLI commands.
type Stores struct {
	Trust    truststore.TrustStore
	Counters countstore.CountStore
	Cache    cachestore.CacheStore
	Flags    flagstore.FlagStore
	// generic client, for cursor state. nil if redis is not configured
	Redis *redis.Client
}

// Member records go to the SQL database if configured, otherwise redis, otherwise memory. Counters, flags, and
// the cache go to redis if configured, otherwise memory.
func OpenStores(ctx context.Context, config StoreConfig, logger *slog.Logger) (*Stores, error) {
	var s Stores
	if config.CacheTTL == 0 {
		config.CacheTTL = 10 * time.Minute
	}

	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		s.Redis = redis.NewClient(opt)
		// check redis connection
		if _, err := s.Redis.Ping(ctx).Result(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}

		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		s.Counters = cnt

		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, config.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		s.Cache = csh

		flg, err := flagstore.NewRedisFlagStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis flagstore: %v", err)
		}
		s.Flags = flg
	} else {
		s.Counters = countstore.NewMemCountStore()
		s.Cache = cachestore.NewMemCacheStore(5_000, config.CacheTTL)
		s.Flags = flagstore.NewMemFlagStore()
	}

	switch {
	case config.DatabaseURL != "":
		db, err := cliutil.SetupDatabase(config.DatabaseURL, config.MaxDBConnections, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if config.DBTracing {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return nil, err
			}
		}
		ts, err := truststore.NewGormTrustStore(db)
		if err != nil {
			return nil, err
		}
		s.Trust = ts
		logger.Info("using SQL trust store")
	case config.RedisURL != "":
		ts, err := truststore.NewRedisTrustStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis truststore: %v", err)
		}
		s.Trust = ts
		logger.Info("using redis trust store")
	default:
		s.Trust = truststore.NewMemTrustStore()
		logger.Warn("using in-memory trust store; member records will be lost on restart")
	}
	return &s, nil
}

// Engine with storage wired up, but no platform or classifiers.
func newEngine(stores *Stores, sets setstore.SetStore, engineConfig engine.EngineConfig, logger *slog.Logger) *automod.Engine {
	return &automod.Engine{
		Logger:   logger,
		Trust:    stores.Trust,
		Counters: stores.Counters,
		Sets:     sets,
		Cache:    stores.Cache,
		Flags:    stores.Flags,
		Config:   engineConfig,
	}
}

func NewServer(ctx context.Context, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	if config.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	sets := setstore.NewMemSetStore()
	sets.Add(setstore.FlaggedLanguages, config.FlaggedLangs...)
	if config.SetsFileJSON != "" {
		if err := sets.LoadFromFileJSON(config.SetsFileJSON); err != nil {
			return nil, fmt.Errorf("initializing in-process setstore: %v", err)
		} else {
			logger.Info("loaded set config from JSON", "path", config.SetsFileJSON)
		}
	}

	stores, err := OpenStores(ctx, config.Stores, logger)
	if err != nil {
		return nil, err
	}

	eng := newEngine(stores, sets, config.Engine, logger)
	eng.Language = classify.NewWhatlangClassifier()

	if config.GeminiAPIKey != "" {
		logger.Info("configuring Gemini risk classifier", "model", config.GeminiModel)
		gc := classify.NewGeminiClassifier(config.GeminiAPIKey, config.GeminiModel, config.GeminiRateLimit)
		gc.Logger = logger.With("classifier", "gemini")
		eng.Risk = classify.NewCachedRiskClassifier(gc, stores.Cache)
	} else {
		logger.Warn("no Gemini API key configured; only language moderation is active")
	}

	srv := &Server{
		logger: logger,
		engine: eng,
		stores: stores,
	}

	if config.SlackWebhookURL != "" {
		eng.Notifiers = append(eng.Notifiers, &engine.SlackNotifier{
			SlackWebhookURL: config.SlackWebhookURL,
			Client:          util.RobustHTTPClient(),
		})
	}
	if config.NatsURL != "" {
		nn, err := engine.NewNatsNotifier(config.NatsURL, config.NatsSubject)
		if err != nil {
			return nil, err
		}
		logger.Info("publishing action notices to nats", "subject", nn.Subject)
		eng.Notifiers = append(eng.Notifiers, nn)
		srv.nats = nn
	}

	srv.consumer = &consumer.TelegramConsumer{
		Logger:      logger.With("system", "consumer"),
		RedisClient: stores.Redis,
		Engine:      eng,
		AdminID:     config.AdminID,
	}
	b, err := srv.consumer.Connect(ctx, config.BotToken)
	if err != nil {
		return nil, err
	}
	eng.Platform = telegram.NewClient(b, logger)

	if config.AdminBind != "" {
		srv.admin = NewAdminServer(eng, logger, config.AdminBind, config.AdminToken, prometheus.DefaultRegisterer)
	}
	return srv, nil
}

// Runs the update consumer, cursor persistence, and admin API until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.consumer.Run(ctx)
	})
	g.Go(func() error {
		return s.consumer.RunPersistCursor(ctx)
	})
	if s.admin != nil {
		g.Go(func() error {
			return s.admin.Run()
		})
		g.Go(func() error {
			<-ctx.Done()
			return s.admin.Shutdown()
		})
	}

	err := g.Wait()
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			s.logger.Error("failed to drain nats connection", "err", err)
		}
	}
	return err
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	err := http.ListenAndServe(listen, nil)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
