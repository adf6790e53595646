package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/bootstrap"
	gormpersistence "github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/infra/persistence/gorm"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/infra/setup"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/worker"
)

// The archiver drains log-archive tasks enqueued by stations on reset
// and writes the batches into the archive database.
func main() {
	cfg, err := bootstrap.LoadConfig(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.Info("Starting archiver worker...")

	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("Failed to initialize archive database: %v", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		log.Fatalf("Failed to run archive database migrations: %v", err)
	}
	log.Info("Archive database ready")

	archiveRepo := gormpersistence.NewGormArchiveRepository(db)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.BackendAddr,
		Password: cfg.BackendPassword,
		DB:       cfg.BackendDB,
	}
	workerServer := worker.NewWorkerServer(redisOpt, archiveRepo, log)
	go workerServer.Start()
	log.Info("Worker server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown signal received, shutting down worker...")

	workerServer.Shutdown()
	log.Info("Archiver exiting")
}
