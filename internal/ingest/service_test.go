package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mohammad-safakhou/meetflow/internal/cache"
	"github.com/mohammad-safakhou/meetflow/internal/meeting"
	"github.com/mohammad-safakhou/meetflow/internal/sources"
	"github.com/redis/go-redis/v9"
)

type stubSource struct {
	name    string
	payload string
	err     error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Fetch(context.Context, string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.payload), nil
}

type failingRepo struct{}

func (failingRepo) SaveMeetings(context.Context, string, []meeting.Meeting) error {
	return errors.New("db down")
}

func (failingRepo) LoadMeetings(context.Context, string) ([]meeting.Meeting, error) {
	return nil, errors.New("db down")
}

// flakyCache is an in-memory cache whose writes and deletes can be made to fail.
type flakyCache struct {
	mu          sync.Mutex
	data        map[string][]meeting.Meeting
	failWrites  bool
	failDeletes bool
}

func newFlakyCache() *flakyCache {
	return &flakyCache{data: make(map[string][]meeting.Meeting)}
}

func (c *flakyCache) SaveMeetings(_ context.Context, domain string, ms []meeting.Meeting) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("redis: connection reset")
	}
	c.data[domain] = append([]meeting.Meeting(nil), ms...)
	return nil
}

func (c *flakyCache) LoadMeetings(_ context.Context, domain string) ([]meeting.Meeting, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms, ok := c.data[domain]
	if !ok {
		return nil, cache.ErrMiss
	}
	return append([]meeting.Meeting(nil), ms...), nil
}

func (c *flakyCache) Invalidate(_ context.Context, domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failDeletes {
		return errors.New("redis: connection reset")
	}
	delete(c.data, domain)
	return nil
}

func (c *flakyCache) set(failWrites, failDeletes bool) {
	c.mu.Lock()
	c.failWrites, c.failDeletes = failWrites, failDeletes
	c.mu.Unlock()
}

func ids(ms []meeting.Meeting) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestIngestMergesAndGuards(t *testing.T) {
	svc := NewService(meeting.New())
	ctx := context.Background()

	res, err := svc.Ingest(ctx, "acme.io", []byte(`{"data":[{"id":"a","title":"A","start_time":"2024-03-01T10:00:00Z"},{"id":"x"}]}`), "fathom")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.After != 1 || res.Dropped != 1 || res.Guarded {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = svc.Ingest(ctx, "acme.io", []byte(`{"error":"upstream unavailable"}`), "fathom")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !res.Guarded || res.After != 1 {
		t.Fatalf("expected guarded no-op, got %+v", res)
	}

	ms, err := svc.List(ctx, "acme.io", "", "")
	if err != nil || len(ms) != 1 || ms[0].ID != "a" {
		t.Fatalf("expected meeting a to survive, got %v (%v)", ids(ms), err)
	}
}

func TestSyncFailedSourceKeepsData(t *testing.T) {
	ctx := context.Background()
	good := stubSource{name: "webhook", payload: `[{"id":"b","title":"B","start":"2024-03-02T10:00:00Z"}]`}
	down := stubSource{name: "proxy", err: errors.New("503")}
	svc := NewService(meeting.New(), WithSources(good, down))

	if _, err := svc.IngestRecords(ctx, "acme.io", []meeting.Meeting{{ID: "a", Title: "A", Start: "2024-03-01T10:00:00Z", Source: "manual"}}); err != nil {
		t.Fatalf("IngestRecords: %v", err)
	}

	res, err := svc.Sync(ctx, "acme.io")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "proxy" {
		t.Fatalf("expected proxy to be reported failed, got %+v", res)
	}
	ms, _ := svc.Load(ctx, "acme.io")
	if got := ids(ms); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("expected [b a], got %v", got)
	}

	// every source failing leaves the collection alone
	svc.sources = []sources.Source{down}
	res, err = svc.Sync(ctx, "acme.io")
	if err != nil || !res.Guarded || res.After != 2 {
		t.Fatalf("expected guarded sync, got %+v (%v)", res, err)
	}
}

func TestListRangeAndGrouped(t *testing.T) {
	ctx := context.Background()
	svc := NewService(meeting.New())
	_, _ = svc.IngestRecords(ctx, "acme.io", []meeting.Meeting{
		{ID: "1", Start: "2024-01-10T00:00:00Z", Source: "fathom"},
		{ID: "2", Start: "2024-02-10T00:00:00Z", Source: "manual"},
		{ID: "3", Start: "2024-03-10T00:00:00Z"},
	})

	ms, err := svc.List(ctx, "acme.io", "2024-02-01", "")
	if err != nil || len(ms) != 2 || ms[0].ID != "3" {
		t.Fatalf("expected open upper bound, got %v (%v)", ids(ms), err)
	}
	ms, _ = svc.List(ctx, "acme.io", "", "2024-01-31")
	if len(ms) != 1 || ms[0].ID != "1" {
		t.Fatalf("expected open lower bound, got %v", ids(ms))
	}
	ms, _ = svc.List(ctx, "acme.io", "garbage", "2024-01-31")
	if len(ms) != 0 {
		t.Fatalf("expected empty result for invalid bound, got %v", ids(ms))
	}

	groups, _ := svc.Grouped(ctx, "acme.io")
	if len(groups) != 3 || len(groups[meeting.UnknownSource]) != 1 {
		t.Fatalf("unexpected groups %v", groups)
	}
}

func TestTranscriptAndSearch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 4, 2, 15, 0, 0, 0, time.UTC)
	svc := NewService(meeting.New(), WithClock(func() time.Time { return now }))

	text := "Title: Pricing review\nAttendees: Ana, Bo\nWe agreed on tiered pricing.\n\nHiring sync\nTwo SRE openings."
	res, err := svc.IngestTranscript(ctx, "acme.io", text, "manual")
	if err != nil || res.After != 2 {
		t.Fatalf("expected 2 transcript records, got %+v (%v)", res, err)
	}

	hits, err := svc.Search(ctx, "acme.io", "tiered", 5)
	if err != nil || len(hits) != 1 || hits[0].Meeting.Title != "Pricing review" {
		t.Fatalf("unexpected hits %+v (%v)", hits, err)
	}
}

func TestCacheFirstThenStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.New(client, time.Hour)

	durable := NewMemory()
	_ = durable.SaveMeetings(ctx, "acme.io", []meeting.Meeting{{ID: "db", Start: "2024-01-01T00:00:00Z"}})
	svc := NewService(meeting.New(), WithStore(durable), WithCache(c))

	ms, err := svc.Load(ctx, "acme.io")
	if err != nil || len(ms) != 1 || ms[0].ID != "db" {
		t.Fatalf("expected store fallback, got %v (%v)", ids(ms), err)
	}
	if cached, err := c.LoadMeetings(ctx, "acme.io"); err != nil || len(cached) != 1 {
		t.Fatalf("expected cache to be filled, got %v (%v)", cached, err)
	}

	_ = c.SaveMeetings(ctx, "acme.io", []meeting.Meeting{{ID: "cached", Start: "2024-01-01T00:00:00Z"}})
	ms, _ = svc.Load(ctx, "acme.io")
	if len(ms) != 1 || ms[0].ID != "cached" {
		t.Fatalf("expected cache hit, got %v", ids(ms))
	}
}

func TestStoreFailureSurfaces(t *testing.T) {
	svc := NewService(meeting.New(), WithStore(failingRepo{}))
	if _, err := svc.Ingest(context.Background(), "acme.io", []byte(`[{"id":"a","start":"2024-01-01"}]`), "x"); err == nil {
		t.Fatalf("expected load error to surface")
	}
}

func TestConcurrentIngestSerialised(t *testing.T) {
	ctx := context.Background()
	svc := NewService(meeting.New())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := meeting.Meeting{ID: string(rune('a' + i)), Start: "2024-01-01T00:00:00Z"}
			_, _ = svc.IngestRecords(ctx, "acme.io", []meeting.Meeting{m})
		}(i)
	}
	wg.Wait()
	ms, _ := svc.Load(ctx, "acme.io")
	if len(ms) != 20 {
		t.Fatalf("expected no lost updates, got %d meetings", len(ms))
	}
	svc.mu.Lock()
	held := len(svc.locks)
	svc.mu.Unlock()
	if held != 0 {
		t.Fatalf("expected idle domain locks to be released, %d left", held)
	}
}

func TestFailedCacheWriteDoesNotLoseMeetings(t *testing.T) {
	cases := []struct {
		name        string
		failDeletes bool
	}{
		{name: "cache entry evicted"},
		{name: "eviction fails too", failDeletes: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			durable := NewMemory()
			c := newFlakyCache()
			svc := NewService(meeting.New(), WithStore(durable), WithCache(c))

			ingest := func(id, start string) {
				t.Helper()
				if _, err := svc.IngestRecords(ctx, "acme.io", []meeting.Meeting{{ID: id, Start: start}}); err != nil {
					t.Fatalf("IngestRecords %s: %v", id, err)
				}
			}
			ingest("a", "2024-01-01T00:00:00Z")
			c.set(true, tc.failDeletes)
			ingest("b", "2024-01-02T00:00:00Z")
			c.set(false, false)
			ingest("c", "2024-01-03T00:00:00Z")

			stored, err := durable.LoadMeetings(ctx, "acme.io")
			if err != nil {
				t.Fatalf("LoadMeetings: %v", err)
			}
			if got := ids(stored); len(got) != 3 || got[0] != "c" || got[1] != "b" || got[2] != "a" {
				t.Fatalf("expected store to hold [c b a], got %v", got)
			}
			cached, _ := c.LoadMeetings(ctx, "acme.io")
			if len(cached) != 3 {
				t.Fatalf("expected cache to catch up, got %v", ids(cached))
			}
		})
	}
}
