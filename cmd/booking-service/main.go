package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	bookingapi "ms-booking/internal/booking/api"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/notify"
	"ms-booking/internal/settlement"
	settlementapi "ms-booking/internal/settlement/api"
	settlementstore "ms-booking/internal/settlement/store"
	"ms-booking/internal/sweeper"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/worklock"
)

func connectPostgres(cfg *config.Config, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))
	return client
}

func main() {
	log := logger.NewLogger("booking-service")
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx, cancelWorkers := context.WithCancel(context.Background())

	bunDB := connectPostgres(cfg, log)
	defer bunDB.Close()

	redisClient := connectRedis(ctx, cfg, log)
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.AllTopics()); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		defer producer.Close()
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
	}

	settlement.InitStripe(cfg.Stripe.SecretKey)

	queue := notify.NewQueue(bunDB)
	enqueuer := notify.NewEnqueuer(queue, cfg.Notify.MaxAttempts)
	lock := worklock.New(redisClient)

	db := &bookingdb.DB{Bun: bunDB}
	store := settlementstore.New(bunDB)

	var publisher booking.Publisher
	var settlementPublisher settlement.Publisher
	if producer != nil {
		publisher = producer
		settlementPublisher = producer
	}

	settlementService := settlement.NewService(store, db, enqueuer, settlementPublisher, log)
	settlementService.Currency = os.Getenv("PAYMENT_CURRENCY")
	if settlementService.Currency == "" {
		settlementService.Currency = "usd"
	}

	qrGen := qr.NewGenerator(os.Getenv("QR_SECRET"))
	bookingService := booking.NewService(db, publisher, settlementService, queue, qrGen, log, cfg.Booking.ReservationTTL)

	bookingHandler := bookingapi.NewHandler(bookingService, log)
	settlementHandler := settlementapi.NewHandler(settlementService, log, cfg.Stripe.WebhookSecret)

	senders := map[models.NotificationChannel]notify.Sender{
		models.ChannelEmail: notify.NewEmailSender(cfg.Email),
		models.ChannelPush:  notify.NewPushSender(cfg.Push),
	}
	dispatcher := notify.NewDispatcher(queue, senders, lock, log, cfg.Notify.PollInterval, cfg.Notify.BatchSize)
	sweep := sweeper.New(db, lock, log, cfg.Booking.SweepInterval)

	go dispatcher.Run(ctx)
	go sweep.Run(ctx)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// Webhook stays public: Stripe has its own signature check.
	r.Post("/api/webhooks/stripe", settlementHandler.StripeWebhook)

	r.Group(func(r chi.Router) {
		if os.Getenv("OIDC_ISSUER") != "" {
			verifier, err := auth.NewVerifier()
			if err != nil {
				log.Fatal("AUTH", fmt.Sprintf("Failed to set up OIDC verifier: %v", err))
			}
			r.Use(auth.Middleware(verifier))
			log.Info("AUTH", "OIDC middleware applied to protected API routes")
		} else {
			log.Warn("AUTH", "OIDC_ISSUER not set, API routes are unauthenticated")
		}

		r.Route("/api", func(r chi.Router) {
			bookingHandler.Routes(r)
			r.Post("/bookings/{bookingId}/payment-intent", settlementHandler.CreatePaymentIntent)
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancelWorkers()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Booking Service shutdown complete")
	}
}
