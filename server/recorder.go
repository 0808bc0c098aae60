package main

import (
	"context"
	"log/slog"
	"time"
)

const (
	recorderBuffer  = 512
	recorderTimeout = 10 * time.Second
)

type recordJob struct {
	name string
	run  func(ctx context.Context) error
}

// Recorder runs persistence, bus and archive work off the tick goroutine.
// Jobs run one at a time in submission order.
type Recorder struct {
	jobs chan recordJob
	log  *slog.Logger
}

// NewRecorder creates the queue. Run starts the worker.
func NewRecorder(log *slog.Logger) *Recorder {
	return &Recorder{
		jobs: make(chan recordJob, recorderBuffer),
		log:  log,
	}
}

// Enqueue schedules fn without blocking. A full queue drops the job.
func (r *Recorder) Enqueue(name string, fn func(ctx context.Context) error) {
	if r == nil {
		return
	}
	select {
	case r.jobs <- recordJob{name: name, run: fn}:
	default:
		r.log.Warn("recorder queue full, dropping job", "job", name)
	}
}

// Pending returns the number of queued jobs.
func (r *Recorder) Pending() int {
	if r == nil {
		return 0
	}
	return len(r.jobs)
}

// Run executes jobs until ctx is done, then finishes whatever is queued.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case job := <-r.jobs:
			r.exec(ctx, job)
		case <-ctx.Done():
			drainCtx := context.WithoutCancel(ctx)
			for {
				select {
				case job := <-r.jobs:
					r.exec(drainCtx, job)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) exec(ctx context.Context, job recordJob) {
	ctx, cancel := context.WithTimeout(ctx, recorderTimeout)
	defer cancel()
	if err := job.run(ctx); err != nil {
		r.log.Error("recorder job failed", "job", job.name, "err", err)
	}
}
