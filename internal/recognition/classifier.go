// Package recognition wraps a trainable face classifier with a distance
// threshold, atomic retraining and model persistence.
package recognition

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"faceattend/internal/logger"
)

var (
	// ErrNotTrained is returned by Predict before any model was trained or loaded.
	ErrNotTrained = errors.New("model not trained")
	// ErrNoSamples is returned when Train is called without samples.
	ErrNoSamples = errors.New("no samples to train")
)

// DefaultThreshold is the distance at and above which a prediction is unknown.
const DefaultThreshold = 70.0

// Sample is one labeled grayscale face crop.
type Sample struct {
	Label int
	Image *image.Gray
}

// Engine is the underlying pattern classifier. Distance is 0 for an identical
// match and grows without bound as faces differ.
type Engine interface {
	Train(samples []Sample) error
	Predict(img *image.Gray) (label int, distance float64, err error)
	Save(path string) error
	Load(path string) error
}

// EngineFactory returns a fresh, untrained engine.
type EngineFactory func() Engine

// Prediction is a thresholded classifier answer.
type Prediction struct {
	Label    int
	Distance float64
	Known    bool
}

// Options configures a Classifier.
type Options struct {
	// ModelPath is where Train persists the model. Empty disables persistence.
	ModelPath string
	Threshold float64
	Logger    *zap.Logger
}

// Classifier owns the trained engine. Predictions share a read lock; training
// builds a new engine and swaps it in under the write lock.
type Classifier struct {
	newEngine EngineFactory
	path      string
	threshold float64
	log       *zap.Logger

	mu      sync.RWMutex
	engine  Engine
	labels  []int
	modTime time.Time
}

// NewClassifier creates an untrained classifier.
func NewClassifier(factory EngineFactory, opts Options) *Classifier {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Classifier{
		newEngine: factory,
		path:      opts.ModelPath,
		threshold: opts.Threshold,
		log:       logger.OrNop(opts.Logger),
	}
}

// LoadIfExists loads the persisted model when one is present. It reports
// whether a model was loaded.
func (c *Classifier) LoadIfExists() (bool, error) {
	if c.path == "" {
		return false, nil
	}
	if _, err := os.Stat(c.path); errors.Is(err, os.ErrNotExist) {
		c.log.Info("no model found, enrollment required", zap.String("path", c.path))
		return false, nil
	}
	if err := c.Load(c.path); err != nil {
		return false, err
	}
	c.log.Info("model loaded", zap.String("path", c.path), zap.Ints("labels", c.Labels()))
	return true, nil
}

// Train replaces the model with one built from samples and persists it.
func (c *Classifier) Train(samples []Sample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	start := time.Now()
	engine := c.newEngine()
	if err := engine.Train(samples); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	labels := labelSet(samples)

	var modTime time.Time
	if c.path != "" {
		var err error
		if modTime, err = persist(engine, labels, c.path); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.engine, c.labels, c.modTime = engine, labels, modTime
	c.mu.Unlock()

	c.log.Info("model trained",
		zap.Int("samples", len(samples)),
		zap.Ints("labels", labels),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Predict classifies a crop. Distances at or above the threshold are
// reported as unknown.
func (c *Classifier) Predict(crop *image.Gray) (Prediction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.engine == nil {
		return Prediction{}, ErrNotTrained
	}
	label, distance, err := c.engine.Predict(crop)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	return Prediction{Label: label, Distance: distance, Known: distance < c.threshold}, nil
}

// Save writes the current model and its label set to path.
func (c *Classifier) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.engine == nil {
		return ErrNotTrained
	}
	_, err := persist(c.engine, c.labels, path)
	return err
}

// Load replaces the current model with the one stored at path.
func (c *Classifier) Load(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat model: %w", err)
	}
	engine := c.newEngine()
	if err := engine.Load(path); err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	labels, err := readLabels(labelsPath(path))
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.engine, c.labels, c.modTime = engine, labels, info.ModTime()
	c.mu.Unlock()
	return nil
}

// Refresh reloads the persisted model if another process rewrote it.
func (c *Classifier) Refresh() (bool, error) {
	if c.path == "" {
		return false, nil
	}
	info, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	c.mu.RLock()
	current := c.modTime
	c.mu.RUnlock()
	if !info.ModTime().After(current) {
		return false, nil
	}
	if err := c.Load(c.path); err != nil {
		return false, err
	}
	c.log.Info("model reloaded", zap.String("path", c.path))
	return true, nil
}

// Trained reports whether a model is available.
func (c *Classifier) Trained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine != nil
}

// Labels returns the identity ids the current model was trained on.
func (c *Classifier) Labels() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]int(nil), c.labels...)
}

// Threshold returns the unknown-distance threshold.
func (c *Classifier) Threshold() float64 { return c.threshold }

func labelSet(samples []Sample) []int {
	seen := make(map[int]struct{})
	var labels []int
	for _, s := range samples {
		if _, ok := seen[s.Label]; !ok {
			seen[s.Label] = struct{}{}
			labels = append(labels, s.Label)
		}
	}
	sort.Ints(labels)
	return labels
}

func labelsPath(modelPath string) string {
	return modelPath + ".labels.json"
}

// persist saves through temp files so readers never observe a partial model.
// The model temp file keeps its extension since engines pick the format by it.
func persist(engine Engine, labels []int, path string) (time.Time, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return time.Time{}, fmt.Errorf("create model dir: %w", err)
	}
	id := uuid.NewString()
	tmpModel := filepath.Join(dir, "."+id+filepath.Ext(path))
	if err := engine.Save(tmpModel); err != nil {
		_ = os.Remove(tmpModel)
		return time.Time{}, fmt.Errorf("save model: %w", err)
	}

	data, err := json.Marshal(labels)
	if err != nil {
		_ = os.Remove(tmpModel)
		return time.Time{}, err
	}
	tmpLabels := filepath.Join(dir, "."+id+".labels.json")
	if err := os.WriteFile(tmpLabels, data, 0o644); err != nil {
		_ = os.Remove(tmpModel)
		return time.Time{}, fmt.Errorf("save labels: %w", err)
	}
	if err := os.Rename(tmpLabels, labelsPath(path)); err != nil {
		_ = os.Remove(tmpModel)
		return time.Time{}, fmt.Errorf("save labels: %w", err)
	}
	if err := os.Rename(tmpModel, path); err != nil {
		return time.Time{}, fmt.Errorf("save model: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func readLabels(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	var labels []int
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	return labels, nil
}
