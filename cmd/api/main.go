package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/vactrail/backend/internal/api"
	"github.com/vactrail/backend/internal/audit"
	"github.com/vactrail/backend/internal/calendar"
	"github.com/vactrail/backend/internal/clock"
	"github.com/vactrail/backend/internal/config"
	"github.com/vactrail/backend/internal/export"
	"github.com/vactrail/backend/internal/identity"
	"github.com/vactrail/backend/internal/notify"
	"github.com/vactrail/backend/internal/password"
	"github.com/vactrail/backend/internal/ratelimit"
	"github.com/vactrail/backend/internal/requests"
	"github.com/vactrail/backend/internal/tokens"
	"github.com/vactrail/backend/pkg/logger"
)

func main() {
	// We mask errors because in production these files might not exist and
	// we rely on system env vars instead.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("config: " + err.Error())
	}

	log := logger.Setup(cfg.Env)
	log.Info("application_startup", "env", cfg.Env)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 1.0,
			Environment:      cfg.Env,
		}); err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			log.Info("sentry_initialized")
		}
	} else {
		log.Warn("sentry_dsn_missing", "details", "skipping_init")
	}

	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Error("database_url_parse_failed", "error", err)
		os.Exit(1)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Error("database_pool_create_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Error("database_ping_failed", "error", err)
		os.Exit(1)
	}
	log.Info("database_connected")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("redis_url_parse_failed", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis_ping_failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	log.Info("redis_connected")

	clk := clock.Real{}
	hasher := password.NewHasher(password.Params{
		MemoryKiB:   cfg.ArgonMemoryKiB,
		Iterations:  cfg.ArgonIterations,
		Parallelism: cfg.ArgonParallelism,
		SaltLen:     cfg.ArgonSaltLen,
		KeyLen:      cfg.ArgonKeyLen,
	})

	codec, err := tokens.NewCodec(cfg.TokenSigningKeyPEM, cfg.AccessTokenTTL, "vactrail")
	if err != nil {
		log.Error("token_codec_init_failed", "error", err)
		os.Exit(1)
	}

	idStore := identity.NewStore(pool, hasher, clk)
	cal := calendar.NewCalendar(pool, clk)
	auditSink := audit.NewSink()
	reqEngine := requests.NewEngine(pool, cal, auditSink, clk, requests.Config{
		AllowAllocationOverdraw: cfg.AllowAllocationOverdraw,
	})
	gate := ratelimit.NewGate(rdb, ratelimit.DefaultLimits())
	exportProjector := export.NewProjector(pool, gate)

	mailer := notify.NewMailer(cfg, pool, log)

	server := api.NewServer(pool, idStore, cal, reqEngine, exportProjector, auditSink, gate, codec, mailer, cfg, log)
	ipThrottle := ratelimit.NewIPThrottle(50, 100)
	defer ipThrottle.Stop()

	router := api.NewRouter(server, ipThrottle)

	srv := &http.Server{
		Addr:         ":" + intToPort(cfg.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server_listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			if err := srv.Close(); err != nil {
				log.Error("server_force_close_failed", "error", err)
			}
		}

		log.Info("server_shutdown_complete")
	}
}

func intToPort(p int) string {
	if p <= 0 {
		return "8080"
	}
	return strconv.Itoa(p)
}
