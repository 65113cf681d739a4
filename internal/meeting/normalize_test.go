package meeting

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNormalizeResolvesAliases(t *testing.T) {
	p := New()
	raw := json.RawMessage(`{
		"meeting_id": 98765,
		"topic": "Quarterly review",
		"started_at": "2024-03-01T10:00:00Z",
		"ended_at": "2024-03-01T10:44:40Z",
		"participants": {"data": ["ana@acme.io", {"name": "Bo"}]},
		"share_url": "https://rec.example/1",
		"default_summary": {"markdown_formatted": "## Notes"}
	}`)

	m, ok := p.Normalize(raw, "fathom")
	if !ok {
		t.Fatalf("expected record to normalize")
	}
	if m.ID != "98765" {
		t.Fatalf("expected numeric id rendered as 98765, got %q", m.ID)
	}
	if m.Title != "Quarterly review" || m.Start != "2024-03-01T10:00:00Z" || m.End != "2024-03-01T10:44:40Z" {
		t.Fatalf("unexpected title/start/end: %+v", m)
	}
	if m.Duration == nil || *m.Duration != 45 {
		t.Fatalf("expected derived duration 45, got %v", m.Duration)
	}
	if len(m.Attendees) != 2 {
		t.Fatalf("expected attendees coerced from envelope, got %d", len(m.Attendees))
	}
	if labels := m.AttendeeLabels(); labels[0] != "ana@acme.io" || labels[1] != "Bo" {
		t.Fatalf("unexpected attendee labels %v", labels)
	}
	if m.RecordingURL != "https://rec.example/1" || m.Summary != "## Notes" {
		t.Fatalf("unexpected recording/summary: %q %q", m.RecordingURL, m.Summary)
	}
	if m.Source != "fathom" || string(m.Raw) != string(raw) {
		t.Fatalf("expected source tag and verbatim raw to be kept")
	}
}

func TestNormalizeAliasOrder(t *testing.T) {
	p := New()
	m, ok := p.Normalize(json.RawMessage(`{"id":"a","meetingId":"b","title":"","subject":"S","start":"2024-01-02","start_time":"2024-01-01"}`), "x")
	if !ok {
		t.Fatalf("expected record to normalize")
	}
	if m.ID != "a" {
		t.Fatalf("expected id to win over meetingId, got %q", m.ID)
	}
	if m.Title != "S" {
		t.Fatalf("expected blank title to be skipped in favour of subject, got %q", m.Title)
	}
	if m.Start != "2024-01-01" {
		t.Fatalf("expected start_time to win over start, got %q", m.Start)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	p := New(WithIDGenerator(func() string { return "generated" }))
	m, ok := p.Normalize(json.RawMessage(`{"createdAt":"2024-05-05T09:00:00Z"}`), "manual")
	if !ok {
		t.Fatalf("expected record to normalize")
	}
	if m.ID != "generated" || m.Title != UntitledTitle {
		t.Fatalf("expected generated id and sentinel title, got %q %q", m.ID, m.Title)
	}
	if m.Attendees == nil || len(m.Attendees) != 0 {
		t.Fatalf("expected empty attendees slice, got %v", m.Attendees)
	}
	if m.Duration != nil || m.End != "" || m.RecordingURL != "" || m.Summary != "" {
		t.Fatalf("expected optional fields unset, got %+v", m)
	}
}

func TestNormalizeExplicitDurationWins(t *testing.T) {
	p := New()
	m, _ := p.Normalize(json.RawMessage(`{"id":"a","start":"2024-01-01T10:00:00Z","end":"2024-01-01T11:00:00Z","duration":"12.5"}`), "x")
	if m.Duration == nil || *m.Duration != 12.5 {
		t.Fatalf("expected explicit duration 12.5, got %v", m.Duration)
	}
}

func TestNormalizeDurationUndefinedWhenEndUnparseable(t *testing.T) {
	p := New()
	for _, end := range []string{"whenever", "1/", "10:", "1:2:3:4"} {
		m, _ := p.Normalize(json.RawMessage(`{"id":"a","start":"2024-01-01T10:00:00Z","end":"`+end+`"}`), "x")
		if m.Duration != nil {
			t.Fatalf("end %q: expected no duration, got %v", end, *m.Duration)
		}
	}
}

func TestNormalizeDurationUndefinedWhenSpanOverflows(t *testing.T) {
	m, _ := New().Normalize(json.RawMessage(`{"id":"a","start":"1900-01-01T00:00:00Z","end":"2300-01-01T00:00:00Z"}`), "x")
	if m.Duration != nil {
		t.Fatalf("expected no duration for an overflowing span, got %v", *m.Duration)
	}
}

func TestFragmentStartsAreUnparseable(t *testing.T) {
	var events []Event
	p := New(WithObserver(ObserverFunc(func(e Event) { events = append(events, e) })))
	ms, _ := p.NormalizeBatch([]byte(`[{"id":"g1","start":"10:"},{"id":"g2","start":"1:2:3:4"},{"id":"ok","start":"2024-01-01T00:00:00Z"}]`), "x")
	kept := p.FilterByDateRange(ms, "1970-01-01", "2030-01-01")
	if len(kept) != 1 || kept[0].ID != "ok" {
		t.Fatalf("expected only ok in range, got %+v", kept)
	}
	unparseable := 0
	for _, e := range events {
		if e.Kind == EventUnparseableStart {
			unparseable++
		}
	}
	if unparseable != 2 {
		t.Fatalf("expected 2 unparseable_start events, got %d (%+v)", unparseable, events)
	}
}

func TestNormalizeDropsRecordsWithoutStart(t *testing.T) {
	var events []Event
	p := New(WithObserver(ObserverFunc(func(e Event) { events = append(events, e) })))
	payload := []byte(`{"data":[
		{"id":"1","title":"kept","start":"2024-01-01"},
		{"id":"2","title":"no time","end_time":"2024-01-01","attendees":["a"],"summary":"s","recordingUrl":"u","duration":3},
		{"id":"3","start":null,"started_at":""},
		"not an object",
		{"id":"4","startedAt":"2024-01-02"}
	]}`)

	got, dropped := p.NormalizeBatch(payload, "webhook")
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "4" {
		t.Fatalf("expected records 1 and 4 in input order, got %+v", got)
	}
	if dropped != 3 {
		t.Fatalf("expected 3 dropped records, got %d", dropped)
	}
	if len(events) != 1 || events[0].Kind != EventRecordsDropped || events[0].Count != 3 || events[0].Source != "webhook" {
		t.Fatalf("expected one records_dropped event, got %+v", events)
	}
}

func TestFallbackIDsAreUnique(t *testing.T) {
	p := New()
	a, _ := p.Normalize(json.RawMessage(`{"title":"same","start":"2024-01-01"}`), "x")
	b, _ := p.Normalize(json.RawMessage(`{"title":"same","start":"2024-01-01"}`), "x")
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Fatalf("expected two distinct generated ids, got %q and %q", a.ID, b.ID)
	}
}

func TestStableFallbackIDs(t *testing.T) {
	p := New(WithStableFallbackIDs(true))
	a, _ := p.Normalize(json.RawMessage(`{"title":"same","start":"2024-01-01"}`), "x")
	b, _ := p.Normalize(json.RawMessage(`{"title":"same","start":"2024-01-01","notes":"changed"}`), "x")
	c, _ := p.Normalize(json.RawMessage(`{"title":"other","start":"2024-01-01"}`), "x")
	if !strings.HasPrefix(a.ID, "gen-") || a.ID != b.ID {
		t.Fatalf("expected equal derived ids, got %q and %q", a.ID, b.ID)
	}
	if a.ID == c.ID {
		t.Fatalf("expected different titles to derive different ids")
	}
}

func TestWithAliasesAppendsPaths(t *testing.T) {
	p := New(WithAliases(FieldStart, "scheduled.begins"))
	m, ok := p.Normalize(json.RawMessage(`{"id":"z","scheduled":{"begins":"2024-06-01T08:00:00Z"}}`), "calendar")
	if !ok || m.Start != "2024-06-01T08:00:00Z" {
		t.Fatalf("expected nested alias to supply start, got %+v ok=%v", m, ok)
	}
	if _, ok := New().Normalize(json.RawMessage(`{"id":"z","scheduled":{"begins":"2024-06-01"}}`), "calendar"); ok {
		t.Fatalf("extra aliases must not leak into other pipelines")
	}
}

func TestParseTime(t *testing.T) {
	cases := map[string]time.Time{
		"2024-01-01":                time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"2024-01-01T10:30:00Z":      time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC),
		"2024-01-01T10:30:00.250Z":  time.Date(2024, 1, 1, 10, 30, 0, 250_000_000, time.UTC),
		"2024-01-01T12:30:00+02:00": time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC),
		"2024-01-01T10:30:00":       time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, ok := ParseTime(in)
		if !ok || !got.Equal(want) {
			t.Fatalf("ParseTime(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
	for _, in := range []string{"", "   ", "soon", "next tuesday-ish", "10:", "1:2:3:4", "1/", "0000-01-01"} {
		if _, ok := ParseTime(in); ok {
			t.Fatalf("expected %q to be unparseable", in)
		}
	}
}
