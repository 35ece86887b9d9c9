package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groupguard/groupguard/automod"
	"github.com/groupguard/groupguard/automod/classify"
	"github.com/groupguard/groupguard/automod/engine"
	"github.com/groupguard/groupguard/automod/setstore"
	"github.com/groupguard/groupguard/automod/truststore"
	"github.com/groupguard/groupguard/util/cliutil"

	"github.com/araddon/dateparse"
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "groupguard",
		Usage:   "telegram group moderation bot",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database for member trust records (sqlite or postgres); empty to use redis or memory",
			Value:   "sqlite://data/groupguard/groupguard.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   20,
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL, for counters, flags, caching, and cursor state",
			EnvVars: []string{"GROUPGUARD_REDIS_URL", "REDIS_URL"},
		},
		&cli.DurationFlag{
			Name:    "cache-ttl",
			Usage:   "how long classifier verdicts and chat admin lookups are cached",
			Value:   10 * time.Minute,
			EnvVars: []string{"GROUPGUARD_CACHE_TTL"},
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "trace SQL queries with OpenTelemetry",
			EnvVars: []string{"GROUPGUARD_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"GROUPGUARD_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		memberCmd,
		threadsCmd,
		statsCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{LogLevel: cctx.String("log-level")})
}

func storeConfig(cctx *cli.Context) StoreConfig {
	return StoreConfig{
		DatabaseURL:      cctx.String("database-url"),
		MaxDBConnections: cctx.Int("max-db-connections"),
		RedisURL:         cctx.String("redis-url"),
		CacheTTL:         cctx.Duration("cache-ttl"),
		DBTracing:        cctx.Bool("db-tracing"),
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the bot",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "telegram-bot-token",
			Usage:    "Telegram Bot API token",
			Required: true,
			EnvVars:  []string{"TELEGRAM_BOT_TOKEN"},
		},
		&cli.Int64Flag{
			Name:    "admin-id",
			Usage:   "Telegram user ID allowed to run admin bot commands",
			EnvVars: []string{"ADMIN_ID"},
		},
		&cli.StringFlag{
			Name:    "gemini-api-key",
			Usage:   "API key for the Gemini risk classifier; without one, only language moderation is active",
			EnvVars: []string{"GEMINI_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "gemini-model",
			Value:   classify.DefaultGeminiModel,
			EnvVars: []string{"GEMINI_MODEL"},
		},
		&cli.Float64Flag{
			Name:    "gemini-rate-limit",
			Usage:   "max Gemini requests per second",
			Value:   5,
			EnvVars: []string{"GEMINI_RATE_LIMIT"},
		},
		&cli.StringSliceFlag{
			Name:    "flagged-languages",
			Usage:   "ISO 639-1 codes of languages which new members are warned about",
			Value:   cli.NewStringSlice("ru"),
			EnvVars: []string{"FLAGGED_LANGUAGES"},
		},
		&cli.StringFlag{
			Name:    "sets-json-path",
			Usage:   "file path of JSON file containing static sets",
			EnvVars: []string{"GROUPGUARD_SETS_JSON_PATH"},
		},
		&cli.Float64Flag{
			Name:    "scam-threshold",
			Usage:   "risk scores above this result in a ban",
			Value:   engine.DefaultEngineConfig().ScamThreshold,
			EnvVars: []string{"SCAM_THRESHOLD"},
		},
		&cli.DurationFlag{
			Name:    "new-member-threshold",
			Usage:   "how long members are considered new after joining",
			Value:   engine.DefaultEngineConfig().NewMemberThreshold,
			EnvVars: []string{"NEW_MEMBER_THRESHOLD"},
		},
		&cli.Int64Flag{
			Name:    "trust-message-threshold",
			Usage:   "number of clean messages after which non-flagged messages are no longer inspected",
			Value:   engine.DefaultEngineConfig().TrustMessageThreshold,
			EnvVars: []string{"TRUST_MESSAGE_THRESHOLD"},
		},
		&cli.IntFlag{
			Name:    "ban-quota-day",
			Usage:   "circuit breaker: max bans per day across all chats (0 for no limit)",
			EnvVars: []string{"BAN_QUOTA_DAY"},
		},
		&cli.StringFlag{
			Name:    "warning-text",
			Usage:   "reply sent when a message is deleted for language",
			Value:   engine.DefaultWarningText,
			EnvVars: []string{"WARNING_TEXT"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL, to publish action notices",
			EnvVars: []string{"NATS_URL"},
		},
		&cli.StringFlag{
			Name:    "nats-subject",
			Value:   engine.DefaultNatsSubject,
			EnvVars: []string{"NATS_SUBJECT"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the admin HTTP API",
			Value:   ":3999",
			EnvVars: []string{"GROUPGUARD_BIND"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token for the admin HTTP API",
			EnvVars: []string{"GROUPGUARD_ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"GROUPGUARD_METRICS_LISTEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}

		shutdownOTEL, err := configOTEL(ctx, "groupguard")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		engineConfig := engine.EngineConfig{
			NewMemberThreshold:    cctx.Duration("new-member-threshold"),
			TrustMessageThreshold: cctx.Int64("trust-message-threshold"),
			ScamThreshold:         cctx.Float64("scam-threshold"),
			BanQuotaDay:           cctx.Int("ban-quota-day"),
			WarningText:           cctx.String("warning-text"),
		}

		srv, err := NewServer(ctx, Config{
			Logger:          logger,
			BotToken:        cctx.String("telegram-bot-token"),
			AdminID:         cctx.Int64("admin-id"),
			Stores:          storeConfig(cctx),
			SetsFileJSON:    cctx.String("sets-json-path"),
			FlaggedLangs:    cctx.StringSlice("flagged-languages"),
			GeminiAPIKey:    cctx.String("gemini-api-key"),
			GeminiModel:     cctx.String("gemini-model"),
			GeminiRateLimit: cctx.Float64("gemini-rate-limit"),
			SlackWebhookURL: cctx.String("slack-webhook-url"),
			NatsURL:         cctx.String("nats-url"),
			NatsSubject:     cctx.String("nats-subject"),
			Engine:          engineConfig,
			AdminBind:       cctx.String("bind"),
			AdminToken:      cctx.String("admin-token"),
		})
		if err != nil {
			return fmt.Errorf("failed to construct server: %v", err)
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run groupguard service: %w", err)
		}
		logger.Info("graceful shutdown complete")
		return nil
	},
}

// Engine for one-off admin commands, operating directly on the configured stores. There is no platform, so
// commands which touch Telegram are not available here.
func configEngine(cctx *cli.Context) (*automod.Engine, error) {
	logger, err := configLogger(cctx)
	if err != nil {
		return nil, err
	}
	config := storeConfig(cctx)
	if config.DatabaseURL == "" && config.RedisURL == "" {
		return nil, fmt.Errorf("admin commands need a persistent store (--database-url or --redis-url)")
	}
	stores, err := OpenStores(cctx.Context, config, logger)
	if err != nil {
		return nil, err
	}
	return newEngine(stores, setstore.NewMemSetStore(), engine.DefaultEngineConfig(), logger), nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

var chatFlag = &cli.Int64Flag{
	Name:     "chat",
	Usage:    "Telegram chat ID",
	Required: true,
}

var memberFlag = &cli.Int64Flag{
	Name:     "member",
	Usage:    "Telegram user ID",
	Required: true,
}

var memberCmd = &cli.Command{
	Name:  "member",
	Usage: "inspect or edit member trust records",
	Subcommands: []*cli.Command{
		{
			Name:  "status",
			Usage: "show a member's trust record and flags",
			Flags: []cli.Flag{chatFlag, memberFlag},
			Action: func(cctx *cli.Context) error {
				eng, err := configEngine(cctx)
				if err != nil {
					return err
				}
				status, err := eng.MemberStatus(cctx.Context, cctx.Int64("member"), cctx.Int64("chat"))
				if err != nil {
					return err
				}
				return printJSON(status)
			},
		},
		{
			Name:  "set",
			Usage: "write a member's trust record",
			Flags: []cli.Flag{
				chatFlag,
				memberFlag,
				&cli.BoolFlag{
					Name:  "trusted",
					Usage: "mark the member as trusted",
				},
				&cli.StringFlag{
					Name:  "joined",
					Usage: "join time, in any reasonable format (default: now)",
				},
				&cli.Int64Flag{
					Name:  "messages",
					Usage: "count of inspected, allowed messages",
				},
			},
			Action: func(cctx *cli.Context) error {
				eng, err := configEngine(cctx)
				if err != nil {
					return err
				}
				m := truststore.Member{
					MemberID:     cctx.Int64("member"),
					ChatID:       cctx.Int64("chat"),
					Trusted:      cctx.Bool("trusted"),
					MessageCount: cctx.Int64("messages"),
				}
				if s := cctx.String("joined"); s != "" {
					joined, err := dateparse.ParseAny(s)
					if err != nil {
						return fmt.Errorf("parsing join time: %w", err)
					}
					joined = joined.UTC()
					m.JoinTime = &joined
				}
				if err := eng.PutMember(cctx.Context, m); err != nil {
					return err
				}
				status, err := eng.MemberStatus(cctx.Context, m.MemberID, m.ChatID)
				if err != nil {
					return err
				}
				return printJSON(status)
			},
		},
		{
			Name:  "trust",
			Usage: "override a member's trust, keeping the rest of the record",
			Flags: []cli.Flag{
				chatFlag,
				memberFlag,
				&cli.BoolFlag{
					Name:  "untrust",
					Usage: "revoke trust instead, restarting the new-member period",
				},
			},
			Action: func(cctx *cli.Context) error {
				eng, err := configEngine(cctx)
				if err != nil {
					return err
				}
				return eng.OverrideTrust(cctx.Context, cctx.Int64("member"), cctx.Int64("chat"), !cctx.Bool("untrust"))
			},
		},
	},
}

var threadsCmd = &cli.Command{
	Name:  "threads",
	Usage: "manage forum topics which are never moderated",
	Subcommands: []*cli.Command{
		{
			Name:  "exclude",
			Usage: "replace the set of excluded threads for a chat (no --thread clears it)",
			Flags: []cli.Flag{
				chatFlag,
				&cli.IntSliceFlag{
					Name:  "thread",
					Usage: "thread (topic) ID; may be repeated",
				},
			},
			Action: func(cctx *cli.Context) error {
				eng, err := configEngine(cctx)
				if err != nil {
					return err
				}
				chatID := cctx.Int64("chat")
				if err := eng.ExcludeThreads(cctx.Context, chatID, cctx.IntSlice("thread")); err != nil {
					return err
				}
				agg, err := eng.ChatStats(cctx.Context, chatID)
				if err != nil {
					return err
				}
				return printJSON(agg)
			},
		},
	},
}

var statsCmd = &cli.Command{
	Name:  "stats",
	Usage: "print moderation statistics, globally or for a single chat",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:  "chat",
			Usage: "Telegram chat ID",
		},
	},
	Action: func(cctx *cli.Context) error {
		eng, err := configEngine(cctx)
		if err != nil {
			return err
		}
		ctx := cctx.Context
		if chatID := cctx.Int64("chat"); chatID != 0 {
			agg, err := eng.ChatStats(ctx, chatID)
			if err != nil {
				return err
			}
			return printJSON(agg)
		}
		stats, err := eng.GlobalStats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}
