// Package main provides the IntentVision API server. Environment-driven
// bootstrap for container deployments; the CLI binary carries the same
// server behind flags.
package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

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
	"github.com/intent-solutions/intentvision/pkg/platform"
)

func main() {
	logger := platform.InitLogger("intentvision-api")
	ctx := context.Background()

	plans := policy.DefaultTable()
	if path := platform.GetEnv("INTENTVISION_PLANS_FILE", ""); path != "" {
		loaded, err := policy.LoadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to load plan table")
		}
		plans = loaded
	}

	var (
		docs    docstore.Store
		letters deadletter.Sink
		metrics ingest.MetricStore
		series  api.SeriesStore
		pinger  api.Pinger
	)

	if platform.GetEnv("INTENTVISION_STORAGE", "memory") == "persistent" {
		pg, err := postgres.NewStore(ctx, &postgres.Config{
			DSN:          platform.GetEnv("POSTGRES_DSN", postgres.DefaultConfig().DSN),
			MaxOpenConns: platform.GetEnvInt("POSTGRES_MAX_OPEN_CONNS", 20),
			MaxIdleConns: platform.GetEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to postgres")
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate postgres")
		}

		ch, err := clickhouse.NewStore(&clickhouse.Config{
			Host:     platform.GetEnv("CLICKHOUSE_HOST", "localhost"),
			Port:     platform.GetEnvInt("CLICKHOUSE_PORT", 9000),
			Database: platform.GetEnv("CLICKHOUSE_DATABASE", "intentvision"),
			Username: platform.GetEnv("CLICKHOUSE_USER", "default"),
			Password: platform.GetEnv("CLICKHOUSE_PASSWORD", ""),
			Debug:    platform.GetEnvBool("CLICKHOUSE_DEBUG", false),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
		}
		defer ch.Close()
		if err := ch.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate ClickHouse")
		}

		docs = pg
		letters = ch
		metrics = ch
		series = ch
		pinger = pg
	} else {
		docs = docstore.NewMemory()
		letters = deadletter.NewMemorySink()
		metrics = ingest.NewMemoryMetricStore()
	}

	ttl := platform.GetEnvDuration("INTENTVISION_IDEMPOTENCY_TTL", idempotency.DefaultTTL)
	idem := idempotency.NewStore(docs, ttl)
	coordinator := ingest.NewCoordinator(idem, letters, metrics, parser.DefaultRegistry(), logger)

	counter := usage.NewCounter(docs)
	router := routing.NewRouter(plans, counter)

	backends := []forecast.Backend{forecast.NewStatistical()}
	if url := platform.GetEnv("NIXTLA_API_URL", ""); url != "" {
		backends = append(backends, forecast.NewNixtla(forecast.RemoteConfig{
			BaseURL: url,
			APIKey:  platform.GetEnv("NIXTLA_API_KEY", ""),
			Timeout: 30 * time.Second,
		}))
	}
	if url := platform.GetEnv("LLM_API_URL", ""); url != "" {
		backends = append(backends, forecast.NewLLM(forecast.RemoteConfig{
			BaseURL: url,
			APIKey:  platform.GetEnv("LLM_API_KEY", ""),
			Timeout: 60 * time.Second,
		}))
	}

	forecasts, err := forecast.NewService(router, counter, backends, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build forecast service")
	}

	cfg := api.DefaultConfig()
	cfg.Port = platform.GetEnvInt("PORT", 8080)

	srv, err := api.NewServer(api.Deps{
		Coordinator: coordinator,
		Forecasts:   forecasts,
		Plans:       plans,
		Counter:     counter,
		Letters:     letters,
		Series:      series,
		Pinger:      pinger,
	}, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build server")
	}

	if err := srv.StartWithGracefulShutdown(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
