package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Domenick1991/airline-backoffice/config"
	"github.com/Domenick1991/airline-backoffice/internal/auth"
	"github.com/Domenick1991/airline-backoffice/internal/bootstrap"
	"github.com/Domenick1991/airline-backoffice/internal/circuitbreaker"
	"github.com/Domenick1991/airline-backoffice/internal/client"
	"github.com/Domenick1991/airline-backoffice/internal/gateway"
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
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("auth.jwt_secret or JWT_SECRET is required")
	}

	lg, err := logger.New(cfg.Log, "gateway")
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := bootstrap.NewHealthReporter("gateway", lg)

	clients := make(map[string]*client.ServiceClient, len(cfg.Services))
	for name, svc := range cfg.Services {
		b := circuitbreaker.New(name, cfg.Breakers.HTTP,
			circuitbreaker.WithFailureClassifier(client.IsBreakerFailure),
			circuitbreaker.WithLogger(lg),
			circuitbreaker.WithStateChangeListener(health.OnStateChange),
		)
		clients[name] = client.New(name, svc.URL, svc.Timeout, b, client.WithLogger(lg))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gateway.NewRouter(
		auth.NewPolicy(auth.WithDefaultDeny(cfg.Auth.DefaultDeny)),
		auth.NewJWTDecoder(cfg.Auth.JWTSecret),
		clients,
		gateway.WithLogger(lg),
	)

	if err := bootstrap.Run(ctx, cfg, router, health, lg); err != nil {
		lg.Fatal("gateway stopped", zap.Error(err))
	}
}
