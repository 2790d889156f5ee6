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
	"github.com/tom474/fleetbooking/internal/kafka"
	"github.com/tom474/fleetbooking/internal/notify"
	"github.com/tom474/fleetbooking/internal/repository"
	"github.com/tom474/fleetbooking/internal/service/schedules"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	scheduleRepo := repository.NewScheduleRepository(pool)
	scheduleService := schedules.NewScheduleService(scheduleRepo, nil, nil, "", 0)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	sender := notify.NewSender()

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, event kafka.NotificationEvent) error {
			if err := sender.Send(ctx, event); err != nil {
				log.Printf("send notification error: %v", err)
			}
			return nil
		}); err != nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	sweepTicker := time.NewTicker(time.Duration(cfg.Worker.CompletionSweepMinutes) * time.Minute)
	defer sweepTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweepTicker.C:
			completed, err := scheduleService.CompleteElapsed(ctx, time.Now())
			if err != nil {
				log.Printf("completion sweep error: %v", err)
				continue
			}
			if completed > 0 {
				log.Printf("completed %d elapsed schedule requests", completed)
			}
		case s := <-sig:
			log.Printf("received signal %v, shutting down", s)
			return
		}
	}
}
