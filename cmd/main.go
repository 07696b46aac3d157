/**
 * @description
 * This is the main entry point for the licensing-service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, message broker, Redis, the repository, the core
 * application service, the scheduler, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, log/slog, net/http: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Optional .env loading for local development.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adforge/licensing-service/internal/api"
	"github.com/adforge/licensing-service/internal/app"
	"github.com/adforge/licensing-service/internal/config"
	"github.com/adforge/licensing-service/internal/store"
	rmrabbit "github.com/adforge/licensing-service/pkg/rabbitmq"
)

func main() {
	// Load an optional .env file for local development before config binding.
	if err := godotenv.Load(); err == nil {
		log.Println("level=info component=bootstrap msg=\".env file loaded\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if cfg.JVZooSecretKey == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"JVZoo secret must be configured\" env=JVZOO_SECRET_KEY")
	}
	if cfg.LicenseSecretKey == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"license secret must be configured\" env=LICENSE_SECRET_KEY")
	}
	if cfg.ServiceJWTSecret == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"service JWT secret must be configured\" env=SERVICE_JWT_SECRET")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	log.Printf("level=info component=bootstrap msg=\"starting licensing-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish email and lifecycle events.
	// A broker outage degrades to skipped events rather than blocking boot.
	var producer rmrabbit.Publisher
	eventProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Redis backs the public endpoint rate limiter; limiting is disabled when
	// Redis is absent or unreachable.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool, cfg.LicenseSecretKey)

	// Initialize the core application service.
	licensingService := app.NewService(repository, cfg.JVZooSecretKey)

	// Scheduled jobs: monthly credit reset sweep and lapsed license sweep.
	jobs := app.NewJobs(repository, producer, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()
	defer scheduler.Stop()

	var limiter api.RateLimiter
	if redisClient != nil {
		limiter = app.NewRedisLicenseRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	// Initialize the API handlers and router.
	handler := api.NewHandler(licensingService, producer, limiter, cfg.ValidateRateLimitPerMinute, cfg.ActivateRateLimitPerMinute)
	router := api.NewRouter(handler, cfg.ServiceJWTSecret)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
