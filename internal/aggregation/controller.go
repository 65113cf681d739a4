// Package aggregation drives an asynchronous backend aggregation job to a terminal state:
// start it, then poll its status on a fixed interval until it completes, fails, runs out
// of attempts or is cancelled.
package aggregation

import (
	"context"
	"strings"
	"time"
)

// DefaultJobError is stored when the backend reports an error without a message.
const DefaultJobError = "aggregation job failed"

type Config struct {
	PollInterval time.Duration
	MaxAttempts  int
}

func DefaultConfig() Config {
	return Config{PollInterval: 2 * time.Second, MaxAttempts: 30}
}

// Sleeper waits between polls. It must return ctx.Err() when ctx ends first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Controller runs jobs against a Client. It keeps no per-run state, so one Controller
// can drive any number of runs; each Job belongs to a single caller.
type Controller struct {
	client   Client
	cfg      Config
	sleeper  Sleeper
	observer TransitionObserver
	now      func() time.Time
}

type Option func(*Controller)

func WithSleeper(s Sleeper) Option {
	return func(c *Controller) {
		if s != nil {
			c.sleeper = s
		}
	}
}

func WithTransitionObserver(o TransitionObserver) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func NewController(client Client, cfg Config, opts ...Option) *Controller {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	c := &Controller{
		client:   client,
		cfg:      cfg,
		sleeper:  timerSleeper{},
		observer: nopTransitions{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Config() Config { return c.cfg }

// Run starts a job for domain and polls it to a terminal state.
func (c *Controller) Run(ctx context.Context, domain string) Job {
	job := c.Start(ctx, domain)
	if job.State == StatePolling {
		c.Poll(ctx, &job)
	}
	return job
}

// Start issues the start request. The returned job is either Polling with a run id or
// terminal; polling never begins without a run id.
func (c *Controller) Start(ctx context.Context, domain string) Job {
	job := Job{Domain: domain, State: StateIdle, StartedAt: c.now()}
	c.move(&job, StateStarting)

	runID, err := c.client.Start(ctx, domain)
	switch {
	case ctx.Err() != nil:
		job.Error = ctx.Err().Error()
		c.move(&job, StateCancelled)
	case err != nil:
		job.Error = err.Error()
		c.move(&job, StateError)
	default:
		job.RunID = runID
		c.move(&job, StatePolling)
	}
	return job
}

// Poll advances a Polling job until it reaches a terminal state.
func (c *Controller) Poll(ctx context.Context, job *Job) {
	c.poll(ctx, job, nil)
}

// poll is Poll with a progress hook called after every attempt and transition.
func (c *Controller) poll(ctx context.Context, job *Job, report func(Job)) {
	if report == nil {
		report = func(Job) {}
	}
	for job.State == StatePolling && job.Attempts < c.cfg.MaxAttempts {
		if err := c.sleeper.Sleep(ctx, c.cfg.PollInterval); err != nil {
			job.Error = err.Error()
			c.move(job, StateCancelled)
			report(*job)
			return
		}
		job.Attempts++
		c.step(ctx, job)
		report(*job)
	}
	if job.State == StatePolling {
		c.move(job, StateTimedOut)
		report(*job)
	}
}

// step issues one status request. Transport failures and missing records leave the job
// Polling; only the record's own status can end it.
func (c *Controller) step(ctx context.Context, job *Job) {
	recs, err := c.client.Status(ctx, job.Domain, job.RunID)
	if err != nil {
		if ctx.Err() != nil {
			job.Error = ctx.Err().Error()
			c.move(job, StateCancelled)
		}
		return
	}
	rec, ok := matchRecord(recs, job.RunID)
	if !ok {
		return
	}
	switch strings.ToLower(strings.TrimSpace(rec.Status)) {
	case "complete":
		job.Summary = rec.Summary
		job.UpdatedAt = rec.UpdatedAt
		c.move(job, StateComplete)
	case "error":
		job.Error = strings.TrimSpace(rec.Error)
		if job.Error == "" {
			job.Error = DefaultJobError
		}
		job.UpdatedAt = rec.UpdatedAt
		c.move(job, StateError)
	}
}

// matchRecord looks at the first record only. A record naming a different run is
// treated as not yet available.
func matchRecord(recs []StatusRecord, runID string) (StatusRecord, bool) {
	if len(recs) == 0 {
		return StatusRecord{}, false
	}
	rec := recs[0]
	if rec.RunID != "" && rec.RunID != runID {
		return StatusRecord{}, false
	}
	return rec, true
}

func (c *Controller) move(job *Job, to State) {
	from := job.State
	if !CanTransition(from, to) {
		return
	}
	job.State = to
	if to.Terminal() {
		job.FinishedAt = c.now()
	}
	c.observer.OnTransition(Transition{
		Domain:  job.Domain,
		RunID:   job.RunID,
		From:    from,
		To:      to,
		Attempt: job.Attempts,
	})
}
