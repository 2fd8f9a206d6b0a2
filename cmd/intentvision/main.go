// IntentVision CLI - SaaS Metric Ingestion and Forecast Routing
//
// Usage:
//   intentvision serve
//   intentvision migrate
//   intentvision ingest --file request.json
//   intentvision route --org org-1 --plan pro --backend nixtla --history-points 1000 --horizon-days 100
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/intent-solutions/intentvision/api"
	"github.com/intent-solutions/intentvision/db/clickhouse"
	"github.com/intent-solutions/intentvision/db/postgres"
	"github.com/intent-solutions/intentvision/internal/deadletter"
	"github.com/intent-solutions/intentvision/internal/docstore"
	"github.com/intent-solutions/intentvision/internal/forecast"
	"github.com/intent-solutions/intentvision/internal/idempotency"
	"github.com/intent-solutions/intentvision/internal/ingest"
	"github.com/intent-solutions/intentvision/internal/ingest/parser"
	"github.com/intent-solutions/intentvision/internal/policy"
	"github.com/intent-solutions/intentvision/internal/routing"
	"github.com/intent-solutions/intentvision/internal/usage"
	v1 "github.com/intent-solutions/intentvision/pkg/api"
	"github.com/intent-solutions/intentvision/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "intentvision",
		Usage:   "SaaS Metric Ingestion and Forecast Routing Platform",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "storage",
				Value:   "memory",
				Usage:   "Storage mode (memory, persistent)",
				EnvVars: []string{"INTENTVISION_STORAGE"},
			},
			&cli.StringFlag{
				Name:    "postgres-dsn",
				Value:   postgres.DefaultConfig().DSN,
				Usage:   "PostgreSQL DSN for idempotency and usage state",
				EnvVars: []string{"POSTGRES_DSN"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "intentvision",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "plans-file",
				Usage:   "JSON file overriding the built-in plan table",
				EnvVars: []string{"INTENTVISION_PLANS_FILE"},
			},
			&cli.DurationFlag{
				Name:    "idempotency-ttl",
				Value:   idempotency.DefaultTTL,
				Usage:   "Retention window for cached ingestion responses",
				EnvVars: []string{"INTENTVISION_IDEMPOTENCY_TTL"},
			},
			&cli.StringFlag{
				Name:    "nixtla-url",
				Usage:   "Nixtla forecast API base URL",
				EnvVars: []string{"NIXTLA_API_URL"},
			},
			&cli.StringFlag{
				Name:    "nixtla-api-key",
				Usage:   "Nixtla forecast API key",
				EnvVars: []string{"NIXTLA_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "llm-url",
				Usage:   "LLM forecast API base URL",
				EnvVars: []string{"LLM_API_URL"},
			},
			&cli.StringFlag{
				Name:    "llm-api-key",
				Usage:   "LLM forecast API key",
				EnvVars: []string{"LLM_API_KEY"},
			},
		},

		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			ingestCommand(),
			routeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// STACK WIRING
// =============================================================================

type stack struct {
	coordinator *ingest.Coordinator
	forecasts   *forecast.Service
	plans       *policy.Table
	counter     *usage.Counter
	letters     deadletter.Sink
	series      api.SeriesStore
	pinger      api.Pinger
	close       func()
}

func buildStack(ctx context.Context, c *cli.Context, log zerolog.Logger) (*stack, error) {
	plans, err := loadPlans(c)
	if err != nil {
		return nil, err
	}

	var (
		docs    docstore.Store
		letters deadletter.Sink
		metrics ingest.MetricStore
		series  api.SeriesStore
		pinger  api.Pinger
		closers []func()
	)

	switch c.String("storage") {
	case "memory":
		docs = docstore.NewMemory()
		sink := deadletter.NewMemorySink()
		letters = sink
		metrics = ingest.NewMemoryMetricStore()
	case "persistent":
		pg, err := postgres.NewStore(ctx, &postgres.Config{
			DSN:          c.String("postgres-dsn"),
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		closers = append(closers, func() { pg.Close() })

		ch, err := clickhouse.NewStore(&clickhouse.Config{
			Host:     c.String("clickhouse-host"),
			Port:     c.Int("clickhouse-port"),
			Database: c.String("clickhouse-database"),
			Username: c.String("clickhouse-user"),
			Password: c.String("clickhouse-password"),
		})
		if err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		closers = append(closers, func() { ch.Close() })

		docs = pg
		letters = ch
		metrics = ch
		series = ch
		pinger = pg
	default:
		return nil, fmt.Errorf("unknown storage mode: %s", c.String("storage"))
	}

	idem := idempotency.NewStore(docs, c.Duration("idempotency-ttl"))
	coordinator := ingest.NewCoordinator(idem, letters, metrics, parser.DefaultRegistry(), log)

	counter := usage.NewCounter(docs)
	router := routing.NewRouter(plans, counter)

	backends := []forecast.Backend{forecast.NewStatistical()}
	if url := c.String("nixtla-url"); url != "" {
		backends = append(backends, forecast.NewNixtla(forecast.RemoteConfig{
			BaseURL: url,
			APIKey:  c.String("nixtla-api-key"),
			Timeout: 30 * time.Second,
		}))
	}
	if url := c.String("llm-url"); url != "" {
		backends = append(backends, forecast.NewLLM(forecast.RemoteConfig{
			BaseURL: url,
			APIKey:  c.String("llm-api-key"),
			Timeout: 60 * time.Second,
		}))
	}

	forecasts, err := forecast.NewService(router, counter, backends, log)
	if err != nil {
		for _, fn := range closers {
			fn()
		}
		return nil, err
	}

	return &stack{
		coordinator: coordinator,
		forecasts:   forecasts,
		plans:       plans,
		counter:     counter,
		letters:     letters,
		series:      series,
		pinger:      pinger,
		close: func() {
			for _, fn := range closers {
				fn()
			}
		},
	}, nil
}

func loadPlans(c *cli.Context) (*policy.Table, error) {
	if path := c.String("plans-file"); path != "" {
		table, err := policy.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load plan table: %w", err)
		}
		return table, nil
	}
	return policy.DefaultTable(), nil
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "HTTP listen port",
				EnvVars: []string{"PORT"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	log := platform.InitLogger("intentvision-api")

	st, err := buildStack(c.Context, c, log)
	if err != nil {
		return err
	}
	defer st.close()

	cfg := api.DefaultConfig()
	cfg.Port = c.Int("port")

	srv, err := api.NewServer(api.Deps{
		Coordinator: st.coordinator,
		Forecasts:   st.forecasts,
		Plans:       st.plans,
		Counter:     st.counter,
		Letters:     st.letters,
		Series:      st.series,
		Pinger:      st.pinger,
	}, cfg, log)
	if err != nil {
		return err
	}

	return srv.StartWithGracefulShutdown()
}

// =============================================================================
// MIGRATE COMMAND
// =============================================================================

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create database tables",
		Action: func(c *cli.Context) error {
			ctx := c.Context

			pg, err := postgres.NewStore(ctx, &postgres.Config{
				DSN:          c.String("postgres-dsn"),
				MaxOpenConns: 5,
				MaxIdleConns: 2,
			})
			if err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			defer pg.Close()
			if err := pg.Migrate(ctx); err != nil {
				return err
			}

			ch, err := clickhouse.NewStore(&clickhouse.Config{
				Host:     c.String("clickhouse-host"),
				Port:     c.Int("clickhouse-port"),
				Database: c.String("clickhouse-database"),
				Username: c.String("clickhouse-user"),
				Password: c.String("clickhouse-password"),
			})
			if err != nil {
				return fmt.Errorf("failed to connect to ClickHouse: %w", err)
			}
			defer ch.Close()
			if err := ch.Migrate(ctx); err != nil {
				return err
			}

			fmt.Println("Migrations applied")
			return nil
		},
	}
}

// =============================================================================
// INGEST COMMAND
// =============================================================================

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Run one ingestion request from a JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to an ingestion request JSON file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "skip-cache",
				Usage: "Bypass the idempotency cache (replay mode)",
			},
		},
		Action: runIngest,
	}
}

func runIngest(c *cli.Context) error {
	log := platform.InitLogger("intentvision-cli")

	raw, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read request file: %w", err)
	}

	var req v1.IngestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("failed to parse request file: %w", err)
	}
	if c.Bool("skip-cache") {
		req.Options = &v1.IngestOptions{SkipCache: true}
	}

	st, err := buildStack(c.Context, c, log)
	if err != nil {
		return err
	}
	defer st.close()

	resp, err := st.coordinator.Ingest(c.Context, req)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// =============================================================================
// ROUTE COMMAND
// =============================================================================

func routeCommand() *cli.Command {
	return &cli.Command{
		Name:  "route",
		Usage: "Show the routing decision for a forecast request without running it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "org",
				Usage:    "Organization id",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "plan",
				Value: "free",
				Usage: "Plan tier (free, starter, pro, enterprise)",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Requested backend (statistical, nixtla, llm); empty = plan default",
			},
			&cli.IntFlag{
				Name:  "history-points",
				Value: 100,
				Usage: "Number of history points",
			},
			&cli.IntFlag{
				Name:  "horizon-days",
				Value: 7,
				Usage: "Forecast horizon in days",
			},
		},
		Action: runRoute,
	}
}

func runRoute(c *cli.Context) error {
	log := platform.InitLogger("intentvision-cli")

	st, err := buildStack(c.Context, c, log)
	if err != nil {
		return err
	}
	defer st.close()

	router := routing.NewRouter(st.plans, st.counter)
	sel, err := router.SelectBackend(c.Context, routing.Selection{
		OrgID:            c.String("org"),
		Plan:             c.String("plan"),
		RequestedBackend: v1.Backend(c.String("backend")),
		HistoryPoints:    c.Int("history-points"),
		HorizonDays:      c.Int("horizon-days"),
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sel)
}
