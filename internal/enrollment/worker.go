package enrollment

import (
	"context"

	"go.uber.org/zap"

	"faceattend/internal/logger"
	"faceattend/internal/queue"
)

// Retrainer is the part of Manager the worker drives.
type Retrainer interface {
	Retrain(ctx context.Context) (int, error)
}

// Worker consumes retrain jobs. Jobs already waiting when one is picked up are
// folded into the same run, since every run trains on the full sample set.
type Worker struct {
	queue     queue.Queue
	retrainer Retrainer
	log       *zap.Logger
	// OnDone is called after every run; used by callers that refresh state.
	OnDone func(samples int, err error)
}

// NewWorker builds a worker over q.
func NewWorker(q queue.Queue, r Retrainer, log *zap.Logger) *Worker {
	return &Worker{queue: q, retrainer: r, log: logger.OrNop(log)}
}

// Run processes jobs until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	jobs, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			w.handle(ctx, append([]queue.Job{job}, drain(jobs)...))
		}
	}
}

func (w *Worker) handle(ctx context.Context, batch []queue.Job) {
	retrain := 0
	for _, job := range batch {
		if job.Kind != queue.KindRetrain {
			w.log.Warn("unknown job kind", zap.String("kind", job.Kind))
			continue
		}
		retrain++
	}
	if retrain == 0 {
		return
	}
	samples, err := w.retrainer.Retrain(ctx)
	if err != nil {
		w.log.Error("retrain failed", zap.Error(err), zap.Int("jobs", retrain))
	} else {
		w.log.Info("retrain job done", zap.Int("samples", samples), zap.Int("jobs", retrain))
	}
	if w.OnDone != nil {
		w.OnDone(samples, err)
	}
}

func drain(jobs <-chan queue.Job) []queue.Job {
	var out []queue.Job
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return out
			}
			out = append(out, job)
		default:
			return out
		}
	}
}
