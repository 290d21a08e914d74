package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/handler"
	"fintrack/internal/infrastructure/cache"
	"fintrack/internal/infrastructure/database"
	"fintrack/internal/infrastructure/lock"
	"fintrack/internal/infrastructure/mq"
	"fintrack/internal/job"
	"fintrack/internal/logger"
	"fintrack/internal/service"
	"fintrack/pkg/idgen"
)

func main() {
	log := logger.New()

	configPath := os.Getenv("FINTRACK_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	if err := idgen.Init(1); err != nil {
		log.Fatal().Err(err).Msg("init id generator")
	}

	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		log.Fatal().Err(err).Msg("init mysql")
	}

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("init redis")
	}
	defer redisClient.Close()
	locker := lock.NewRedisLocker(redisClient, time.Duration(cfg.Business.LockTTLSeconds)*time.Second)

	publisher, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		log.Fatal().Err(err).Msg("init kafka")
	}
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, publisher, cfg, log)
	go outboxSender.Start(ctx)

	review := service.NewReviewService(db, cfg, service.NewClassificationService(db, cfg, log), log)
	autoApprove := job.NewAutoApproveJob(db, review, cfg, log)
	go autoApprove.Start(ctx)

	router := handler.SetupRouter(handler.NewHandler(db, locker, cfg, log), cfg.Server.Mode, log)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	log.Info().Msg("server stopped")
}
