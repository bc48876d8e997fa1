package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Domenick1991/airline-backoffice/api"
	"github.com/Domenick1991/airline-backoffice/config"
	"github.com/Domenick1991/airline-backoffice/internal/bootstrap"
	"github.com/Domenick1991/airline-backoffice/internal/cache"
	"github.com/Domenick1991/airline-backoffice/internal/circuitbreaker"
	"github.com/Domenick1991/airline-backoffice/internal/client"
	"github.com/Domenick1991/airline-backoffice/internal/kafka"
	"github.com/Domenick1991/airline-backoffice/internal/logger"
	"github.com/Domenick1991/airline-backoffice/internal/middleware"
	"github.com/Domenick1991/airline-backoffice/internal/repository"
	"github.com/Domenick1991/airline-backoffice/internal/service/reservation"
)

const (
	serviceName = "reservation"
	version     = "1.0.0"
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

	lg, err := logger.New(cfg.Log, serviceName)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	if err := run(cfg, lg); err != nil {
		lg.Fatal("reservation service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := bootstrap.NewHealthReporter(serviceName, lg)

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return err
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	pgRepo := repository.NewReservationRepository(pool)
	if err := pgRepo.Migrate(ctx); err != nil {
		return err
	}

	dbBreaker := circuitbreaker.New("database", cfg.Breakers.Database,
		circuitbreaker.WithFailureClassifier(repository.IsStorageFailure),
		circuitbreaker.WithLogger(lg),
		circuitbreaker.WithStateChangeListener(health.OnStateChange),
	)
	repo := repository.NewBreakerRepository(pgRepo, dbBreaker)

	peers := circuitbreaker.NewRegistry()
	peerClient := func(name string) *client.ServiceClient {
		svc, ok := cfg.Service(name)
		if !ok {
			lg.Fatal("peer service is not configured", zap.String("service", name))
		}
		b := peers.Register(circuitbreaker.New(name, cfg.Breakers.HTTP,
			circuitbreaker.WithFailureClassifier(client.IsBreakerFailure),
			circuitbreaker.WithLogger(lg),
			circuitbreaker.WithStateChangeListener(health.OnStateChange),
		))
		return client.New(name, svc.URL, svc.Timeout, b, client.WithLogger(lg))
	}
	flights := client.NewFlightClient(peerClient("flight"))
	passengers := client.NewPassengerClient(peerClient("passenger"))

	opts := []reservation.Option{
		reservation.WithLogger(lg),
		reservation.WithSeatAttempts(cfg.Reservation.SeatAttempts),
	}
	if cfg.Reservation.LockMode == config.LockModeRedis {
		rdb := cache.NewRedisClient(cfg.Redis)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		opts = append(opts, reservation.WithLocker(cache.NewRedisLocker(rdb, cfg.Reservation.LockTTL)))
	}
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ReservationTopic, lg)
		defer producer.Close()
		if err := producer.CheckConnection(ctx); err != nil {
			lg.Warn("kafka is not reachable, events will fail until it is", zap.Error(err))
		}
		opts = append(opts, reservation.WithPublisher(producer))
	}

	svc := reservation.NewService(repo, flights, passengers, opts...)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Stack(lg)...)
	api.NewSystemHandler(serviceName, version, dbBreaker, peers, svc.CheckStorage).Register(engine)
	api.NewReservationHandler(svc, lg).Register(engine.Group("/api/v1/reservations"))

	return bootstrap.Run(ctx, cfg, engine, health, lg)
}
