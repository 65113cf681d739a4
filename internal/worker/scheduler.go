// Package worker runs scheduled syncs of the configured domains.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/mohammad-safakhou/meetflow/internal/cache"
	"github.com/mohammad-safakhou/meetflow/internal/ingest"
	"github.com/mohammad-safakhou/meetflow/internal/logging"
)

const (
	defaultInterval = time.Minute
	defaultLockTTL  = 2 * time.Minute
)

// Syncer is satisfied by *ingest.Service.
type Syncer interface {
	Sync(ctx context.Context, domain string) (ingest.Result, error)
}

type Config struct {
	Domains  []string
	Schedule string
	Interval time.Duration
	LockTTL  time.Duration
}

// Scheduler ticks on Interval and syncs every domain whose schedule is due. When a
// cache is configured each sync holds the domain's redis lock so replicas do not overlap.
type Scheduler struct {
	cfg    Config
	syncer Syncer
	cache  *cache.Cache
	logger logging.Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
	wg   sync.WaitGroup
}

func NewScheduler(cfg Config, syncer Syncer, c *cache.Cache, logger logging.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@hourly"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		cfg:    cfg,
		syncer: syncer,
		cache:  c,
		logger: logger,
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

// Start runs the ticker until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Wait blocks until the ticker goroutine has exited.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Tick syncs the due domains once, sequentially.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, domain := range s.cfg.Domains {
		if ctx.Err() != nil {
			return
		}
		if !isDue(s.cfg.Schedule, s.lastRun(domain), s.now()) {
			continue
		}
		s.syncDomain(ctx, domain)
	}
}

func (s *Scheduler) syncDomain(ctx context.Context, domain string) {
	if s.cache != nil {
		lock, ok, err := s.cache.AcquireSyncLock(ctx, domain, s.cfg.LockTTL)
		if err != nil {
			s.logger.Warn("sync lock failed", "domain", domain, "err", err)
			return
		}
		if !ok {
			s.logger.Debug("sync already running elsewhere", "domain", domain)
			return
		}
		defer func() { _ = lock.Release(context.Background()) }()
	}

	s.mu.Lock()
	s.last[domain] = s.now()
	s.mu.Unlock()

	res, err := s.syncer.Sync(ctx, domain)
	if err != nil {
		s.logger.Error("scheduled sync failed", "domain", domain, "err", err)
		return
	}
	s.logger.Info("scheduled sync", "domain", domain, "after", res.After, "failed_sources", len(res.Failed))
}

func (s *Scheduler) lastRun(domain string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.last[domain]
	if !ok {
		return nil
	}
	return &t
}

// isDue reports whether a schedule should fire at now given the last run.
// Supports "@daily", "@hourly" and standard cron expressions; anything unparseable
// behaves like "@daily".
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	switch cronSpec {
	case "@daily":
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return now.Sub(*last) >= 24*time.Hour
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
