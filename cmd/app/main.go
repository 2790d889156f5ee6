package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tom474/fleetbooking/config"
	"github.com/tom474/fleetbooking/internal/bootstrap"
	"github.com/tom474/fleetbooking/internal/cache"
	"github.com/tom474/fleetbooking/internal/kafka"
	"github.com/tom474/fleetbooking/internal/repository"
	"github.com/tom474/fleetbooking/internal/service/booking"
	"github.com/tom474/fleetbooking/internal/service/schedules"
	"github.com/tom474/fleetbooking/internal/service/trips"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	lockTTL := time.Duration(cfg.Booking.OperationLockTTLSeconds) * time.Second
	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.LocationCacheTTLSeconds)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	bookingRepo := repository.NewBookingRequestRepository(pool)
	tripRepo := repository.NewTripRepository(pool)
	scheduleRepo := repository.NewScheduleRepository(pool)
	locationRepo := repository.NewLocationRepository(pool)

	tripService := trips.NewTripService(
		tripRepo,
		bookingRepo,
		scheduleRepo,
		locationRepo,
		redisCache,
		redisCache,
		producer,
		cfg.Kafka.NotificationsTopic,
		lockTTL,
	)
	bookingService := booking.NewBookingService(
		bookingRepo,
		tripRepo,
		tripService,
		redisCache,
		producer,
		cfg.Kafka.NotificationsTopic,
		lockTTL,
	)
	scheduleService := schedules.NewScheduleService(
		scheduleRepo,
		redisCache,
		producer,
		cfg.Kafka.NotificationsTopic,
		lockTTL,
	)

	if err := bootstrap.Run(ctx, cfg, bookingService, tripService, scheduleService); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
