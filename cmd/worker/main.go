package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/Domenick1991/airline-backoffice/config"
	"github.com/Domenick1991/airline-backoffice/internal/email"
	"github.com/Domenick1991/airline-backoffice/internal/kafka"
	"github.com/Domenick1991/airline-backoffice/internal/logger"
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
	if !cfg.Kafka.Enabled() {
		log.Fatal("kafka.brokers and kafka.reservation_topic are required")
	}

	lg, err := logger.New(cfg.Log, "worker")
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []email.Option
	if cfg.Kafka.NotificationsTopic != "" {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic, lg)
		defer producer.Close()
		opts = append(opts, email.WithOutbox(producer, cfg.Kafka.NotificationsTopic))
	}
	sender := email.NewSender(lg, opts...)

	// one reader per slot; the consumer group spreads partitions across them
	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.ReservationTopic, lg.With(zap.Int("slot", i)))
		if i == 0 {
			if err := consumer.CheckConnection(ctx); err != nil {
				lg.Warn("kafka is not reachable yet", zap.Error(err))
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer consumer.Close()
			if err := consumer.ConsumeReservationEvents(ctx, sender.Send); err != nil {
				lg.Error("consumer stopped", zap.Error(err))
			}
		}()
	}

	lg.Info("worker started",
		zap.String("topic", cfg.Kafka.ReservationTopic),
		zap.Int("concurrency", cfg.Worker.Concurrency),
	)
	wg.Wait()
	lg.Info("worker stopped")
}
