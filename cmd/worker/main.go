package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"faceattend/internal/app"
	"faceattend/internal/config"
	"faceattend/internal/enrollment"
	"faceattend/internal/logger"
	"faceattend/internal/queue"
)

// Worker consumes retrain jobs from Redis and rewrites the model file the API
// processes watch.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.NewCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	if !core.RedisClient().Healthy(ctx) {
		log.Warn("redis not reachable yet, jobs will be picked up once it is", zap.String("addr", cfg.RedisAddr))
	}
	q := queue.NewRedisQueue(core.RedisClient().Client, queue.DefaultKey)

	// catch up on samples enrolled while no worker was running
	if _, err := core.Retrainer().Retrain(ctx); err != nil {
		log.Error("initial retrain failed", zap.Error(err))
	}

	worker := enrollment.NewWorker(q, core.Retrainer(), log.Named("worker"))
	log.Info("worker started, waiting for jobs", zap.String("queue", queue.DefaultKey))
	if err := worker.Run(ctx); err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}
