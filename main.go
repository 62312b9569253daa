package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	"ms-activity/internal/analytics"
	"ms-activity/internal/api"
	"ms-activity/internal/billing"
	billingdb "ms-activity/internal/billing/db"
	"ms-activity/internal/booking"
	bookingdb "ms-activity/internal/booking/db"
	"ms-activity/internal/config"
	"ms-activity/internal/database"
	"ms-activity/internal/database/migrations"
	"ms-activity/internal/jobs"
	"ms-activity/internal/kafka"
	"ms-activity/internal/lock"
	"ms-activity/internal/logger"
	"ms-activity/internal/matching"
	"ms-activity/internal/models"
)

func newLocker(ctx context.Context, cfg *config.Config, bunDB *bun.DB, log *logger.Logger) (lock.Locker, func()) {
	registry := lock.NewRegistry(cfg.Lock.Strict)
	if cfg.Lock.Backend == "postgres" {
		log.Info("LOCK", "Using PostgreSQL advisory locks")
		return lock.NewPostgresLocker(bunDB, registry, log), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))
	return lock.NewRedisLocker(client, registry, cfg.Lock.TTL, log), func() { client.Close() }
}

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.LogDir, cfg.LogLevel)
	defer log.Close()
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	log.Info("APP", "Starting activity service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.Options{Dir: cfg.Database.MigrationsDir, AutoMigrate: true}, log)
		if err := runner.Run(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		runner.Close()
	}

	locker, closeLocker := newLocker(ctx, cfg, bunDB, log)
	defer closeLocker()

	var publisher booking.EventPublisher = kafka.Discard{}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, models.Topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		publisher = producer
		log.Info("KAFKA", "Kafka producer initialized")
	} else {
		log.Warn("KAFKA", "Kafka disabled, domain events are dropped")
	}

	scoring, err := matching.ParseScoring(cfg.Matching.Scoring)
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	bookingService := booking.NewService(bookingdb.New(bunDB), publisher, log, cfg.Booking.MaxStars)
	matchingService := matching.NewService(bookingdb.New(bunDB), publisher, log)
	matchingService.Scoring = scoring
	matchingService.EnforceMinimum = cfg.Matching.EnforceMinimum
	billingService := billing.NewService(billingdb.New(bunDB), publisher, log, billing.NewReferencer(cfg.Billing.ESRPrefix), billing.Settings{
		Currency:       cfg.Billing.Currency,
		CreditorName:   cfg.Billing.CreditorName,
		CreditorIBAN:   cfg.Billing.CreditorIBAN,
		Schemes:        cfg.ReferenceSchemes(),
		QRCodeSize:     cfg.Billing.QRCodeSize,
		BookingGroup:   cfg.Billing.BookingGroup,
		InclusiveLabel: cfg.Billing.InclusiveLabel,
	})
	aggregates := analytics.NewSQL(bunDB)
	analyticsService := analytics.NewService(aggregates, aggregates)

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, models.TopicPaymentReceived, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		go consumer.Start(ctx, billingService.HandlePayment)
	}

	if cfg.Scheduler.Enabled {
		scheduler := jobs.NewScheduler(locker, log, cfg.Scheduler.Interval)
		scheduler.Add("archive-periods", jobs.ArchivePeriods(bookingService, log))
		go scheduler.Start(ctx)
	}

	handler := api.NewHandler(bookingService, matchingService, billingService, analyticsService, locker, log, cfg.Auth.AdminRole)
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Activity service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Activity service shutdown complete")
	}
}
