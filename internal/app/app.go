// Package app assembles the runtime components shared by the API and the
// training worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"faceattend/internal/attendance"
	"faceattend/internal/cloudinary"
	"faceattend/internal/config"
	"faceattend/internal/enrollment"
	"faceattend/internal/identity"
	"faceattend/internal/metrics"
	"faceattend/internal/opencv"
	"faceattend/internal/queue"
	"faceattend/internal/recognition"
	"faceattend/internal/samples"
	"faceattend/internal/store"
)

// Core holds the components every process needs: persisted state, samples,
// the classifier and the enrollment manager.
type Core struct {
	Config     config.App
	Log        *zap.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Store      *store.Store
	Redis      *store.Redis
	Identities *identity.Registry
	Ledger     *attendance.Ledger
	Samples    *samples.FS
	Classifier *recognition.Classifier
	Enrollment *enrollment.Manager

	closers []func() error
}

// NewCore opens the configured store and loads the persisted model.
func NewCore(ctx context.Context, cfg config.App, log *zap.Logger) (*Core, error) {
	for _, w := range cfg.Warnings {
		log.Warn("config", zap.String("warning", w))
	}

	c := &Core{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = metrics.New(c.Registry)

	backend, err := c.openBackend(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Store = store.New(backend)
	c.closers = append(c.closers, c.Store.Close)
	c.Identities = identity.NewRegistry(c.Store)
	c.Ledger = attendance.NewLedger(c.Store, cfg.AttendanceCooldown, log.Named("attendance"))

	if c.Samples, err = samples.NewFS(cfg.FacesDir, log.Named("samples")); err != nil {
		c.Close()
		return nil, err
	}
	if cfg.CloudinaryEnabled() {
		c.Samples.WithArchive(cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder))
		log.Info("sample archive enabled", zap.String("cloud", cfg.CloudinaryCloudName))
	}

	c.Classifier = recognition.NewClassifier(opencv.NewLBPHEngine, recognition.Options{
		ModelPath: cfg.ModelPath,
		Threshold: cfg.MatchThreshold,
		Logger:    log.Named("recognition"),
	})
	if _, err := c.Classifier.LoadIfExists(); err != nil {
		c.Close()
		return nil, fmt.Errorf("load model: %w", err)
	}
	return c, nil
}

func (c *Core) openBackend(ctx context.Context) (store.Backend, error) {
	switch c.Config.StoreBackend {
	case "json", "":
		return store.NewJSONFile(c.Config.StorePath)
	case "postgres":
		db, err := store.NewDB(ctx, c.Config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg, err := store.NewPostgres(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return pg, nil
	case "redis":
		return store.NewRedisSnapshot(c.RedisClient().Client, ""), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.Config.StoreBackend)
	}
}

// RedisClient returns the shared Redis connection, dialing it on first use.
func (c *Core) RedisClient() *store.Redis {
	if c.Redis == nil {
		c.Redis = store.NewRedis(c.Config.RedisAddr)
		c.closers = append(c.closers, c.Redis.Client.Close)
	}
	return c.Redis
}

// Queue returns the configured training queue.
func (c *Core) Queue() queue.Queue {
	if c.Config.QueueBackend == "redis" {
		return queue.NewRedisQueue(c.RedisClient().Client, queue.DefaultKey)
	}
	return queue.NewInMemory(64)
}

// NewEnrollment builds the manager around locator. Retraining is queued on q
// when q is non-nil.
func (c *Core) NewEnrollment(locator enrollment.Locator, q enrollment.Publisher) *enrollment.Manager {
	m := enrollment.NewManager(c.Identities, locator, c.Samples, c.Classifier, c.Log.Named("enrollment")).
		WithMetrics(c.Metrics)
	if q != nil {
		m.WithQueue(q)
	}
	c.Enrollment = m
	return m
}

// Retrainer returns a manager usable for retraining only.
func (c *Core) Retrainer() *enrollment.Manager {
	if c.Enrollment != nil {
		return c.Enrollment
	}
	return enrollment.NewManager(c.Identities, nil, c.Samples, c.Classifier, c.Log.Named("enrollment")).
		WithMetrics(c.Metrics)
}

// HealthChecks reports the reachability of persisted state.
func (c *Core) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"store": func(ctx context.Context) error {
			_, err := c.Store.View(ctx)
			return err
		},
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			if !c.Redis.Healthy(ctx) {
				return errors.New("unreachable")
			}
			return nil
		}
	}
	return checks
}

// WatchModel reloads the classifier whenever another process rewrites the
// model file, until ctx is done.
func (c *Core) WatchModel(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := c.Classifier.Refresh(); err != nil {
				c.Log.Warn("model refresh failed", zap.Error(err))
			}
		}
	}
}

// Close releases every resource in reverse order of acquisition.
func (c *Core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
