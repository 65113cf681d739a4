package meeting

import (
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestSplitTranscriptBlocks(t *testing.T) {
	at := time.Date(2024, 4, 2, 15, 0, 0, 0, time.UTC)
	text := "Title: Kickoff\nDate: 2024-04-01T09:00:00Z\nAttendees: ana@acme.io, bo@acme.io\nAna: welcome everyone\nBo: thanks\n\n \n" +
		"Pricing follow-up\nWe agreed on tiered pricing.\r\n\r\n\n" +
		"   \n"

	recs := SplitTranscript(text, at)
	if len(recs) != 2 {
		t.Fatalf("expected 2 pseudo-records, got %d: %v", len(recs), rawStrings(recs))
	}

	first := gjson.ParseBytes(recs[0])
	if first.Get("title").Str != "Kickoff" || first.Get("start").Str != "2024-04-01T09:00:00Z" {
		t.Fatalf("expected header fields lifted, got %s", recs[0])
	}
	if n := len(first.Get("attendees").Array()); n != 2 {
		t.Fatalf("expected 2 attendees, got %d", n)
	}
	if first.Get("summary").Str != "Ana: welcome everyone\nBo: thanks" {
		t.Fatalf("expected body as summary, got %q", first.Get("summary").Str)
	}
	if first.Get("createdAt").Exists() {
		t.Fatalf("createdAt must not be stamped when a date header exists")
	}

	second := gjson.ParseBytes(recs[1])
	if second.Get("title").Str != "Pricing follow-up" {
		t.Fatalf("expected first line as title, got %q", second.Get("title").Str)
	}
	if second.Get("createdAt").Str != "2024-04-02T15:00:00Z" {
		t.Fatalf("expected ingestion time as createdAt, got %q", second.Get("createdAt").Str)
	}
}

func TestNormalizeTranscript(t *testing.T) {
	p := New(WithStableFallbackIDs(true))
	at := time.Date(2024, 4, 2, 15, 0, 0, 0, time.UTC)
	ms, dropped := p.NormalizeTranscript("Id: t-1\nStandup\n\nRetro notes", "manual", at)
	if dropped != 0 || len(ms) != 2 {
		t.Fatalf("expected 2 meetings and no drops, got %d/%d", len(ms), dropped)
	}
	if ms[0].ID != "t-1" || ms[0].Title != "Standup" || ms[0].Source != "manual" {
		t.Fatalf("unexpected first meeting %+v", ms[0])
	}
	if ms[1].Start != "2024-04-02T15:00:00Z" || ms[1].Title != "Retro notes" {
		t.Fatalf("unexpected second meeting %+v", ms[1])
	}
}

func TestSplitTranscriptEmpty(t *testing.T) {
	if recs := SplitTranscript(" \n\n \t", time.Now()); len(recs) != 0 {
		t.Fatalf("expected no records, got %v", rawStrings(recs))
	}
}
