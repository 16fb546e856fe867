package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"faceattend/internal/api"
	"faceattend/internal/app"
	"faceattend/internal/auth"
	"faceattend/internal/checkin"
	"faceattend/internal/enrollment"
	"faceattend/internal/face"
	"faceattend/internal/faceclient"
	"faceattend/internal/liveness"
	"faceattend/internal/opencv"
	"faceattend/internal/queue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("port", "", "Port to listen on (overrides HTTP_PORT)")
	serveCmd.Flags().Duration("model-refresh", 5*time.Second, "How often to check the model file for changes written by a worker")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.HTTPPort = port
	}
	refreshEvery, _ := cmd.Flags().GetDuration("model-refresh")
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.NewCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	cascade, err := opencv.NewCascadeDetector(cfg.CascadePath, cfg.CascadeScaleFactor, cfg.CascadeMinNeighbors)
	if err != nil {
		return err
	}
	defer cascade.Close()
	locator := face.NewLocator(opencv.NewNormalizer(cfg.CLAHEClipLimit, cfg.CLAHETileGrid), cascade, log.Named("face"))

	landmarks := faceclient.New(cfg.LandmarkServiceURL)
	if err := landmarks.Health(ctx); err != nil {
		log.Warn("landmark service not available", zap.String("url", cfg.LandmarkServiceURL), zap.Error(err))
	}
	evaluator := liveness.NewEvaluator(landmarks, liveness.Config{
		ClosedThreshold: cfg.ClosedEyeThreshold,
		OpenThreshold:   cfg.OpenEyeThreshold,
	}, log.Named("liveness"))

	var q queue.Queue
	if cfg.AsyncTraining() {
		q = core.Queue()
	}
	manager := core.NewEnrollment(locator, q)
	if q != nil {
		if cfg.QueueBackend == "redis" {
			// a separate worker retrains; pick up its models
			go core.WatchModel(ctx, refreshEvery)
		} else {
			worker := enrollment.NewWorker(q, manager, log.Named("worker"))
			go func() {
				if err := worker.Run(ctx); err != nil {
					log.Error("training worker stopped", zap.Error(err))
				}
			}()
		}
		log.Info("asynchronous training enabled", zap.String("queue", cfg.QueueBackend))
	}

	identify := checkin.NewService(evaluator, locator, core.Classifier, core.Identities, core.Ledger, log.Named("checkin")).
		WithMetrics(core.Metrics)

	health := map[string]api.HealthCheck{"landmarks": landmarks.Health}
	for name, check := range core.HealthChecks() {
		health[name] = check
	}
	var issuer *auth.Issuer
	if cfg.JWTSigningKey != "" {
		issuer = auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	}
	server := api.New(manager, identify, core.Ledger, api.Options{
		Issuer:            issuer,
		RequireDeviceAuth: cfg.DeviceAuth,
		RateLimitPerMin:   cfg.RateLimitPerMin,
		Gatherer:          core.Registry,
		Health:            health,
		Logger:            log.Named("http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.Bool("model_trained", core.Classifier.Trained()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}
