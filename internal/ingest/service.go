// Package ingest is the stateful side of the pipeline: it loads a domain's collection,
// merges new batches into it and writes the result back to every layer that holds it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohammad-safakhou/meetflow/internal/cache"
	"github.com/mohammad-safakhou/meetflow/internal/logging"
	"github.com/mohammad-safakhou/meetflow/internal/meeting"
	"github.com/mohammad-safakhou/meetflow/internal/search"
	"github.com/mohammad-safakhou/meetflow/internal/sources"
	"github.com/mohammad-safakhou/meetflow/internal/store"
)

const (
	openFrom = "1970-01-01T00:00:00Z"
	openTo   = "9999-12-31T23:59:59Z"
)

// Repository is a layer that holds merged collections. *cache.Cache and *store.Store
// implement it.
type Repository interface {
	SaveMeetings(ctx context.Context, domain string, ms []meeting.Meeting) error
	LoadMeetings(ctx context.Context, domain string) ([]meeting.Meeting, error)
}

// Invalidator is implemented by caches that can drop a domain's entry.
type Invalidator interface {
	Invalidate(ctx context.Context, domain string) error
}

// Result describes one merge.
type Result struct {
	Domain   string `json:"domain"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
	Accepted int    `json:"accepted"`
	Dropped  int    `json:"dropped"`
	// Guarded is true when the batch was empty and the collection was left untouched.
	Guarded bool `json:"guarded"`
	// Failed lists sources that could not be fetched during a sync.
	Failed []string `json:"failed,omitempty"`
}

type Service struct {
	pipeline *meeting.Pipeline
	cache    Repository
	store    Repository
	index    *search.Index
	sources  []sources.Source
	logger   logging.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*domainLock
	// stale holds domains whose cached copy may be older than the store.
	stale map[string]bool
}

// domainLock serialises merges of one domain. It is dropped from the map once no
// caller holds or waits on it.
type domainLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Service)

// WithCache puts a read-through cache in front of the store.
func WithCache(c Repository) Option {
	return func(s *Service) { s.cache = c }
}

// WithStore sets the durable repository.
func WithStore(r Repository) Option {
	return func(s *Service) { s.store = r }
}

// WithIndex keeps idx in sync with every saved collection.
func WithIndex(idx *search.Index) Option {
	return func(s *Service) { s.index = idx }
}

// WithSources sets the upstreams Sync fetches, in merge order.
func WithSources(src ...sources.Source) Option {
	return func(s *Service) { s.sources = append(s.sources, src...) }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a Service. Without a store the collections live in process memory.
func NewService(p *meeting.Pipeline, opts ...Option) *Service {
	s := &Service{
		pipeline: p,
		logger:   logging.Discard(),
		now:      time.Now,
		locks:    make(map[string]*domainLock),
		stale:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = NewMemory()
	}
	if s.index == nil {
		s.index = search.New()
	}
	return s
}

func (s *Service) Pipeline() *meeting.Pipeline { return s.pipeline }

func (s *Service) lockDomain(domain string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[domain]
	if !ok {
		l = &domainLock{}
		s.locks[domain] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, domain)
		}
		s.mu.Unlock()
	}
}

// Ingest normalizes a raw envelope and merges it into the domain's collection.
func (s *Service) Ingest(ctx context.Context, domain string, payload []byte, source string) (Result, error) {
	incoming, dropped := s.pipeline.NormalizeBatch(payload, source)
	return s.merge(ctx, domain, dropped, func(current []meeting.Meeting) []meeting.Meeting {
		return s.pipeline.SafeMerge(current, incoming)
	}, len(incoming))
}

// IngestTranscript splits pasted text into records and merges them.
func (s *Service) IngestTranscript(ctx context.Context, domain, text, source string) (Result, error) {
	incoming, dropped := s.pipeline.NormalizeTranscript(text, source, s.now())
	return s.merge(ctx, domain, dropped, func(current []meeting.Meeting) []meeting.Meeting {
		return s.pipeline.SafeMerge(current, incoming)
	}, len(incoming))
}

// IngestRecords merges already normalized records.
func (s *Service) IngestRecords(ctx context.Context, domain string, incoming []meeting.Meeting) (Result, error) {
	return s.merge(ctx, domain, 0, func(current []meeting.Meeting) []meeting.Meeting {
		return s.pipeline.SafeMerge(current, incoming)
	}, len(incoming))
}

// Sync fetches every configured source and merges them over the current collection in
// order. A failing source contributes an empty batch.
func (s *Service) Sync(ctx context.Context, domain string) (Result, error) {
	var (
		batches  [][]meeting.Meeting
		accepted int
		dropped  int
		failed   []string
	)
	for _, src := range s.sources {
		payload, err := src.Fetch(ctx, domain)
		if err != nil {
			if ctx.Err() != nil {
				return Result{Domain: domain}, ctx.Err()
			}
			s.logger.Warn("source fetch failed", "domain", domain, "source", src.Name(), "err", err)
			failed = append(failed, src.Name())
			batches = append(batches, nil)
			continue
		}
		ms, d := s.pipeline.NormalizeBatch(payload, src.Name())
		batches = append(batches, ms)
		accepted += len(ms)
		dropped += d
	}

	res, err := s.merge(ctx, domain, dropped, func(current []meeting.Meeting) []meeting.Meeting {
		return s.pipeline.MergeSources(append([][]meeting.Meeting{current}, batches...)...)
	}, accepted)
	res.Failed = failed
	return res, err
}

func (s *Service) merge(ctx context.Context, domain string, dropped int, fn func([]meeting.Meeting) []meeting.Meeting, accepted int) (Result, error) {
	defer s.lockDomain(domain)()

	current, err := s.load(ctx, domain)
	if err != nil {
		return Result{Domain: domain}, err
	}
	merged := fn(current)
	res := Result{
		Domain:   domain,
		Before:   len(current),
		After:    len(merged),
		Accepted: accepted,
		Dropped:  dropped,
		Guarded:  accepted == 0,
	}
	if accepted == 0 {
		return res, nil
	}
	if err := s.save(ctx, domain, merged); err != nil {
		return res, err
	}
	s.logger.Info("collection merged", "domain", domain, "before", res.Before, "after", res.After, "dropped", dropped)
	return res, nil
}

// Load returns the current collection of a domain, most recent first.
func (s *Service) Load(ctx context.Context, domain string) ([]meeting.Meeting, error) {
	return s.load(ctx, domain)
}

func (s *Service) load(ctx context.Context, domain string) ([]meeting.Meeting, error) {
	if s.cache != nil && !s.isStale(domain) {
		ms, err := s.cache.LoadMeetings(ctx, domain)
		switch {
		case err == nil:
			return ms, nil
		case errors.Is(err, cache.ErrMiss):
		default:
			s.logger.Warn("cache read failed", "domain", domain, "err", err)
		}
	}

	ms, err := s.store.LoadMeetings(ctx, domain)
	if errors.Is(err, store.ErrNotFound) {
		return []meeting.Meeting{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", domain, err)
	}
	if s.cache != nil {
		if err := s.cache.SaveMeetings(ctx, domain, ms); err != nil {
			s.logger.Warn("cache fill failed", "domain", domain, "err", err)
		} else {
			s.setStale(domain, false)
		}
	}
	if err := s.index.Replace(domain, ms); err != nil {
		s.logger.Warn("index refresh failed", "domain", domain, "err", err)
	}
	return ms, nil
}

func (s *Service) save(ctx context.Context, domain string, ms []meeting.Meeting) error {
	if err := s.store.SaveMeetings(ctx, domain, ms); err != nil {
		return fmt.Errorf("save %s: %w", domain, err)
	}
	if s.cache != nil {
		if err := s.cache.SaveMeetings(ctx, domain, ms); err != nil {
			s.logger.Warn("cache write failed", "domain", domain, "err", err)
			s.evict(ctx, domain)
		} else {
			s.setStale(domain, false)
		}
	}
	if err := s.index.Replace(domain, ms); err != nil {
		s.logger.Warn("index refresh failed", "domain", domain, "err", err)
	}
	return nil
}

// evict drops a cached collection that no longer matches the store, so the next load
// reads the store. Until a cache write succeeds again this process bypasses the
// cache for the domain, in case the delete failed too.
func (s *Service) evict(ctx context.Context, domain string) {
	s.setStale(domain, true)
	inv, ok := s.cache.(Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, domain); err != nil {
		s.logger.Error("stale cache entry left behind", "domain", domain, "err", err)
	}
}

func (s *Service) isStale(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale[domain]
}

func (s *Service) setStale(domain string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v {
		s.stale[domain] = true
	} else {
		delete(s.stale, domain)
	}
}

// List returns the collection, narrowed to [from, to] when either bound is set. A
// missing bound is open.
func (s *Service) List(ctx context.Context, domain, from, to string) ([]meeting.Meeting, error) {
	ms, err := s.load(ctx, domain)
	if err != nil {
		return nil, err
	}
	if from == "" && to == "" {
		return ms, nil
	}
	if from == "" {
		from = openFrom
	}
	if to == "" {
		to = openTo
	}
	return s.pipeline.FilterByDateRange(ms, from, to), nil
}

func (s *Service) Grouped(ctx context.Context, domain string) (map[string][]meeting.Meeting, error) {
	ms, err := s.load(ctx, domain)
	if err != nil {
		return nil, err
	}
	return meeting.GroupBySource(ms), nil
}

// Search runs a full-text query over the domain's collection.
func (s *Service) Search(ctx context.Context, domain, q string, limit int) ([]search.Hit, error) {
	ms, err := s.load(ctx, domain)
	if err != nil {
		return nil, err
	}
	if !s.index.Has(domain) {
		if err := s.index.Replace(domain, ms); err != nil {
			return nil, err
		}
	}
	return s.index.Search(domain, q, limit)
}
