package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"rule-engine-service/internal/api"
	"rule-engine-service/internal/config"
	"rule-engine-service/internal/db"
	"rule-engine-service/internal/engine"
	"rule-engine-service/internal/kafka"
	"rule-engine-service/internal/logging"
	"rule-engine-service/internal/notifier"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed:", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatal("Logger init failed:", err)
	}

	// Connect to DB
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		log.Fatal("DB connect failed:", err)
	}
	defer dbConn.Close()

	// Live alert feed for operator clients
	hub := api.NewHub(logger)

	// Notification dispatcher
	svc := notifier.New(dbConn, dbConn, logger, cfg)
	svc.SetBroadcaster(hub)
	var wg sync.WaitGroup
	svc.Start(&wg)

	// Rule engine
	eng := engine.New(dbConn, dbConn, svc, logger,
		cfg.Engine.MaxConcurrent,
		time.Duration(cfg.Engine.StoreTimeoutMS)*time.Millisecond)

	// Telemetry consumer
	ctx, cancel := context.WithCancel(context.Background())
	consumer := kafka.NewConsumer(cfg, eng, logger)
	consumer.Start(ctx, &wg)

	// API server
	h := api.NewHandler(dbConn, eng, logger, hub)
	r := api.NewRouter(h, logger, cfg)
	go func() {
		logger.Infof("API started on %s", cfg.API.Port)
		if err := r.Run(cfg.API.Port); err != nil {
			logger.Errorf("API run failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Info("Shutting down...")
	cancel()
	if err := consumer.Close(); err != nil {
		logger.Errorf("Consumer close failed: %v", err)
	}
	svc.Stop()
	wg.Wait()
	logger.Info("Service stopped")
}
