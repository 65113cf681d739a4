package aggregation

import (
	"context"
	"sync"
	"time"

	"github.com/mohammad-safakhou/meetflow/internal/logging"
)

// DefaultRetention is how long a finished job stays retrievable when nobody consumes it.
const DefaultRetention = time.Hour

type entry struct {
	mu       sync.Mutex
	job      Job
	finished time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

func (e *entry) snapshot() Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job
}

func (e *entry) set(j Job) {
	e.mu.Lock()
	e.job = j
	e.mu.Unlock()
}

func (e *entry) finishedAt() (time.Time, bool) {
	select {
	case <-e.done:
	default:
		return time.Time{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished, true
}

// Registry tracks jobs polled in the background so callers can look them up by run id.
type Registry struct {
	ctrl      *Controller
	logger    logging.Logger
	retention time.Duration
	now       func() time.Time

	mu   sync.Mutex
	jobs map[string]*entry
	wg   sync.WaitGroup
}

type RegistryOption func(*Registry)

// WithRetention sets how long finished jobs are kept for lookup.
func WithRetention(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.retention = d
		}
	}
}

func NewRegistry(ctrl *Controller, logger logging.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Registry{
		ctrl:      ctrl,
		logger:    logger,
		retention: DefaultRetention,
		now:       time.Now,
		jobs:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Launch performs the start call synchronously and, on success, polls in the
// background until the job is terminal or cancelled. A job that failed to start is
// returned as-is and not tracked.
func (r *Registry) Launch(ctx context.Context, domain string) Job {
	r.evictExpired()
	job := r.ctrl.Start(ctx, domain)
	if job.State != StatePolling {
		r.logger.Warn("aggregation did not start", "domain", domain, "state", job.State, "err", job.Error)
		return job
	}

	pctx, cancel := context.WithCancel(context.Background())
	e := &entry{job: job, cancel: cancel, done: make(chan struct{})}
	r.mu.Lock()
	r.jobs[job.RunID] = e
	r.mu.Unlock()

	r.wg.Add(1)
	go func(j Job) {
		defer r.wg.Done()
		defer close(e.done)
		defer cancel()
		r.ctrl.poll(pctx, &j, e.set)
		e.mu.Lock()
		e.finished = r.now()
		e.mu.Unlock()
		r.logger.Info("aggregation finished", "domain", j.Domain, "run_id", j.RunID, "state", j.State, "attempts", j.Attempts)
	}(job)
	return job
}

// evictExpired forgets finished jobs that nobody consumed within the retention window.
func (r *Registry) evictExpired() {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.jobs {
		if at, ok := e.finishedAt(); ok && now.Sub(at) >= r.retention {
			delete(r.jobs, id)
			r.logger.Debug("aggregation evicted", "run_id", id)
		}
	}
}

func (r *Registry) lookup(runID string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[runID]
	if !ok {
		return nil, ErrUnknownRun
	}
	return e, nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(runID string) (Job, error) {
	e, err := r.lookup(runID)
	if err != nil {
		return Job{}, err
	}
	return e.snapshot(), nil
}

// Consume returns the job and forgets it once it is terminal.
func (r *Registry) Consume(runID string) (Job, error) {
	e, err := r.lookup(runID)
	if err != nil {
		return Job{}, err
	}
	job := e.snapshot()
	if job.State.Terminal() {
		r.mu.Lock()
		delete(r.jobs, runID)
		r.mu.Unlock()
	}
	return job, nil
}

// Wait blocks until the job is terminal or ctx ends.
func (r *Registry) Wait(ctx context.Context, runID string) (Job, error) {
	e, err := r.lookup(runID)
	if err != nil {
		return Job{}, err
	}
	select {
	case <-e.done:
		return e.snapshot(), nil
	case <-ctx.Done():
		return e.snapshot(), ctx.Err()
	}
}

// Cancel stops polling and returns the final job. Already terminal jobs are unaffected.
func (r *Registry) Cancel(runID string) (Job, error) {
	e, err := r.lookup(runID)
	if err != nil {
		return Job{}, err
	}
	e.cancel()
	<-e.done
	return e.snapshot(), nil
}

// Shutdown cancels every running job and waits for the pollers to exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	for _, e := range r.jobs {
		e.cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}
