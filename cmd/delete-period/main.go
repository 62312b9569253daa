// Command delete-period removes a period with all its occasions, bookings
// and invoices. It holds the period lock, so it fails instead of racing a
// running matching or invoice run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"ms-activity/internal/booking"
	bookingdb "ms-activity/internal/booking/db"
	"ms-activity/internal/config"
	"ms-activity/internal/database"
	"ms-activity/internal/kafka"
	"ms-activity/internal/lock"
	"ms-activity/internal/logger"
	"ms-activity/internal/models"
)

func main() {
	periodID := flag.String("period", "", "id of the period to delete")
	yes := flag.Bool("yes", false, "confirm the deletion")
	flag.Parse()

	if *periodID == "" {
		fmt.Fprintln(os.Stderr, "usage: delete-period -period <id> -yes")
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.NewLogger(cfg.LogDir, cfg.LogLevel)
	defer log.Close()

	ctx := context.Background()
	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	svc := booking.NewService(bookingdb.New(bunDB), kafka.Discard{}, log, cfg.Booking.MaxStars)
	p, err := svc.GetPeriod(ctx, *periodID)
	if err != nil {
		log.Fatal("PERIOD", err.Error())
	}
	if !*yes {
		fmt.Printf("Would delete period %s (%s). Run again with -yes.\n", p.ID, p.Title)
		return
	}

	registry := lock.NewRegistry(cfg.Lock.Strict)
	var locker lock.Locker = lock.NewPostgresLocker(bunDB, registry, log)
	if cfg.Lock.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer client.Close()
		locker = lock.NewRedisLocker(client, registry, cfg.Lock.TTL, log)
	}

	err = lock.WithLock(ctx, locker, lock.NamespacePeriod, p.ID, func(ctx context.Context) error {
		return svc.DeletePeriod(ctx, p.ID)
	})
	switch {
	case errors.Is(err, lock.ErrAlreadyLocked):
		log.Fatal("PERIOD", fmt.Sprintf("Period %s is busy, try again later", p.ID))
	case errors.Is(err, models.ErrNotFound):
		log.Fatal("PERIOD", fmt.Sprintf("Period %s not found", p.ID))
	case err != nil:
		log.Fatal("PERIOD", err.Error())
	}
	log.Info("PERIOD", fmt.Sprintf("Deleted period %s (%s)", p.ID, p.Title))
}
