package meeting

import (
	"testing"
)

func ids(ms []Meeting) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func equalIDs(t *testing.T, got []Meeting, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("expected ids %v, got %v", want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("expected ids %v, got %v", want, g)
		}
	}
}

func TestSafeMergeGuardKeepsCurrent(t *testing.T) {
	var events []Event
	p := New(WithObserver(ObserverFunc(func(e Event) { events = append(events, e) })))
	current := []Meeting{
		{ID: "b", Start: "2024-01-01"},
		{ID: "a", Start: "2024-02-01"}, // deliberately not sorted
	}

	for _, incoming := range [][]Meeting{nil, {}} {
		got := p.SafeMerge(current, incoming)
		if &got[0] != &current[0] || len(got) != len(current) {
			t.Fatalf("expected the current slice to be returned as-is")
		}
		equalIDs(t, got, "b", "a")
	}
	if len(events) != 2 || events[0].Kind != EventGuardFired || events[0].Count != 2 {
		t.Fatalf("expected guard_fired events with current count, got %+v", events)
	}
}

func TestSafeMergeBothEmpty(t *testing.T) {
	var fired bool
	p := New(WithObserver(ObserverFunc(func(Event) { fired = true })))
	got := p.SafeMerge([]Meeting{}, nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected current empty slice back, got %v", got)
	}
	if fired {
		t.Fatalf("guard must not fire when there was nothing to protect")
	}
}

func TestSafeMergeIncomingWins(t *testing.T) {
	p := New()
	current := []Meeting{{ID: "A", Start: "2024-01-01", Title: "old"}}
	incoming := []Meeting{{ID: "A", Start: "2024-01-01", Title: "new"}}

	got := p.SafeMerge(current, incoming)
	if len(got) != 1 || got[0].ID != "A" || got[0].Title != "new" {
		t.Fatalf("expected single record A titled new, got %+v", got)
	}
	if current[0].Title != "old" {
		t.Fatalf("merge must not mutate current")
	}
}

func TestSafeMergeSortsDescending(t *testing.T) {
	p := New()
	perms := [][]Meeting{
		{{ID: "mid", Start: "2024-02-01"}, {ID: "old", Start: "2024-01-01"}, {ID: "new", Start: "2024-03-01T00:00:00Z"}},
		{{ID: "old", Start: "2024-01-01"}, {ID: "new", Start: "2024-03-01T00:00:00Z"}, {ID: "mid", Start: "2024-02-01"}},
		{{ID: "new", Start: "2024-03-01T00:00:00Z"}, {ID: "mid", Start: "2024-02-01"}, {ID: "old", Start: "2024-01-01"}},
	}
	for _, incoming := range perms {
		equalIDs(t, p.SafeMerge(nil, incoming), "new", "mid", "old")
	}
}

func TestSafeMergeUnionAndUnparseableLast(t *testing.T) {
	p := New()
	current := []Meeting{{ID: "x", Start: "garbage"}, {ID: "a", Start: "2024-01-01"}}
	incoming := []Meeting{{ID: "b", Start: "2024-01-05"}}
	equalIDs(t, p.SafeMerge(current, incoming), "b", "a", "x")
}

func TestMergeSourcesOrder(t *testing.T) {
	p := New()
	webhook := []Meeting{{ID: "1", Start: "2024-01-01", Source: "webhook", Title: "w"}}
	proxy := []Meeting{{ID: "1", Start: "2024-01-01", Source: "proxy", Title: "p"}, {ID: "2", Start: "2024-01-03", Source: "proxy"}}

	got := p.MergeSources(nil, webhook, []Meeting{}, proxy, nil)
	equalIDs(t, got, "2", "1")
	if got[1].Title != "p" {
		t.Fatalf("expected later source to win for id 1, got %q", got[1].Title)
	}

	if got := p.MergeSources(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty collection from no sources, got %v", got)
	}
}

func TestIngestRawEnvelope(t *testing.T) {
	p := New()
	current := []Meeting{{ID: "keep", Start: "2023-12-31"}}

	got := p.Ingest(current, []byte(`{"meetings":[{"meetingId":"n1","start_time":"2024-01-01"}]}`), "proxy")
	equalIDs(t, got, "n1", "keep")

	again := p.Ingest(got, []byte(`{"error":"upstream timeout"}`), "proxy")
	equalIDs(t, again, "n1", "keep")
}
