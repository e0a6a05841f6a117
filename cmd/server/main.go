package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/org/whisper/internal/api"
	"github.com/org/whisper/internal/ledger"
	"github.com/org/whisper/internal/notify"
	"github.com/org/whisper/internal/service"
	"github.com/org/whisper/internal/storage"
	"github.com/org/whisper/internal/whisper"
	"github.com/org/whisper/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type config struct {
	ListenAddr     string   `yaml:"listen_addr"`
	TLSCertFile    string   `yaml:"tls_cert"`
	TLSKeyFile     string   `yaml:"tls_key"`
	StoreType      string   `yaml:"store_type"` // postgres, redis, memory
	DBUrl          string   `yaml:"db_url"`
	RedisAddr      string   `yaml:"redis_addr"`
	RedisPassword  string   `yaml:"redis_password"`
	RedisDB        int      `yaml:"redis_db"`
	MigrationsDir  string   `yaml:"migrations_dir"`
	LogLevel       string   `yaml:"log_level"`
	AllowList      []string `yaml:"allow_list"`
	SweepInterval  string   `yaml:"sweep_interval"`
	RateLimitRPS   int      `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	SeedSends      int      `yaml:"seed_sends"` // memory store only
	SeedReads      int      `yaml:"seed_reads"`
}

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	cfgFile := "config.yaml"
	if v := os.Getenv("WHISPER_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg := config{
		ListenAddr:    ":8090",
		StoreType:     "memory",
		MigrationsDir: "migrations",
		LogLevel:      "info",
		SweepInterval: "10m",
		SeedSends:     3,
		SeedReads:     3,
	}

	if data, err := os.ReadFile(cfgFile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to parse config")
		}
	} else {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	// Env overrides
	if v := os.Getenv("WHISPER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("WHISPER_STORE_TYPE"); v != "" {
		cfg.StoreType = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DBUrl = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if len(cfg.AllowList) == 0 {
		log.Fatal().Msg("allow_list must contain at least one card id")
	}

	ctx := context.Background()

	// Connect to the backing store
	var backend storage.Backend
	var events notify.Publisher = notify.NoopPublisher{}

	switch cfg.StoreType {
	case "postgres":
		if cfg.DBUrl == "" {
			log.Fatal().Msg("db_url must be configured (or DATABASE_URL env var)")
		}
		pg, err := storage.NewPostgresBackend(ctx, cfg.DBUrl)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := storage.RunMigrations(cfg.DBUrl, cfg.MigrationsDir); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Msg("migrations applied")
		backend = pg
	case "redis":
		if cfg.RedisAddr == "" {
			log.Fatal().Msg("redis_addr must be configured (or REDIS_ADDR env var)")
		}
		rb, err := storage.NewRedisBackend(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		backend = rb
		events = notify.NewRedisPublisher(rb.Client())
	case "memory":
		mem := storage.NewMemoryBackend()
		now := time.Now().UTC()
		for _, id := range cfg.AllowList {
			mem.SeedCard(&models.Card{
				ID:          id,
				SendCredits: cfg.SeedSends,
				ReadCredits: cfg.SeedReads,
				Active:      true,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		log.Info().Int("cards", len(cfg.AllowList)).Msg("memory store seeded")
		backend = mem
	default:
		log.Fatal().Str("store_type", cfg.StoreType).Msg("unknown store type")
	}
	defer backend.Close()

	// Wire the core
	ldg := ledger.NewLedger(backend, cfg.AllowList)
	store := whisper.NewStore(backend)
	svc := service.NewService(ldg, store, events)

	srv := api.NewServer(svc, backend, api.Config{
		ListenAddr:     cfg.ListenAddr,
		TLSCertFile:    cfg.TLSCertFile,
		TLSKeyFile:     cfg.TLSKeyFile,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	// Background loops: expiry sweep and metrics gauges
	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	sweepEvery, err := time.ParseDuration(cfg.SweepInterval)
	if err != nil || sweepEvery <= 0 {
		sweepEvery = 10 * time.Minute
	}
	go whisper.NewSweeper(backend, sweepEvery).Run(loopCtx)
	go srv.RunStatsLoop(loopCtx, 30*time.Second)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		// Start returns http.ErrServerClosed once Shutdown begins
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Str("store", cfg.StoreType).Msg("server started")
	<-quit

	log.Info().Msg("shutting down...")
	cancelLoops()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
