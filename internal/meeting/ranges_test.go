package meeting

import (
	"testing"
)

func TestFilterByDateRangeInclusiveBounds(t *testing.T) {
	p := New()
	ms := []Meeting{
		{ID: "before", Start: "2024-01-31T23:59:59.999Z"},
		{ID: "from", Start: "2024-02-01T00:00:00Z"},
		{ID: "inside", Start: "2024-02-10T12:00:00+01:00"},
		{ID: "to", Start: "2024-02-29T23:59:59Z"},
		{ID: "after", Start: "2024-03-01T00:00:00Z"},
	}
	got := p.FilterByDateRange(ms, "2024-02-01T00:00:00Z", "2024-02-29T23:59:59Z")
	equalIDs(t, got, "from", "inside", "to")
}

func TestFilterByDateRangeReportsUnparseableStart(t *testing.T) {
	var events []Event
	p := New(WithObserver(ObserverFunc(func(e Event) { events = append(events, e) })))
	ms := []Meeting{
		{ID: "ok", Start: "2024-02-02", Source: "manual"},
		{ID: "bad", Start: "last week", Source: "manual"},
	}
	got := p.FilterByDateRange(ms, "2024-02-01", "2024-02-03")
	equalIDs(t, got, "ok")
	if len(events) != 1 || events[0].Kind != EventUnparseableStart || events[0].MeetingID != "bad" || events[0].Value != "last week" {
		t.Fatalf("expected unparseable_start for bad, got %+v", events)
	}
}

func TestFilterByDateRangeInvalidBound(t *testing.T) {
	var events []Event
	p := New(WithObserver(ObserverFunc(func(e Event) { events = append(events, e) })))
	got := p.FilterByDateRange([]Meeting{{ID: "a", Start: "2024-01-01"}}, "nope", "2024-12-31")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty result for invalid bound, got %v", got)
	}
	if len(events) != 1 || events[0].Kind != EventInvalidRange {
		t.Fatalf("expected invalid_range event, got %+v", events)
	}
}

func TestGroupBySourceCompleteness(t *testing.T) {
	ms := []Meeting{
		{ID: "1", Source: "fathom"},
		{ID: "2", Source: "manual"},
		{ID: "3", Source: "fathom"},
		{ID: "4"},
		{ID: "5", Source: "  "},
	}
	groups := GroupBySource(ms)
	if len(groups) != 3 {
		t.Fatalf("expected 3 buckets, got %d (%v)", len(groups), groups)
	}
	total := 0
	for _, bucket := range groups {
		total += len(bucket)
	}
	if total != len(ms) {
		t.Fatalf("expected %d records across buckets, got %d", len(ms), total)
	}
	equalIDs(t, groups["fathom"], "1", "3")
	equalIDs(t, groups["manual"], "2")
	equalIDs(t, groups[UnknownSource], "4", "5")
}
