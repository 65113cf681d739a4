// Package meeting turns heterogeneous upstream meeting payloads into one canonical,
// deduplicated and ordered collection.
//
// The flow is one-directional: a raw payload is coerced into an array of items, each
// item is normalized into a Meeting (or dropped when it has no start time), and the
// resulting batch is merged into the collection the caller already holds. Merging never
// loses previously known meetings because an empty batch leaves the collection untouched.
package meeting

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// UntitledTitle is used when no title alias is present on a record.
const UntitledTitle = "Untitled Meeting"

// UnknownSource is the GroupBySource bucket for meetings without a source tag.
const UnknownSource = "unknown"

// Meeting is the canonical, source-agnostic meeting record.
type Meeting struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Start        string            `json:"start"`
	End          string            `json:"end,omitempty"`
	Duration     *float64          `json:"duration,omitempty"` // minutes
	Attendees    []json.RawMessage `json:"attendees"`
	RecordingURL string            `json:"recordingUrl,omitempty"`
	Summary      string            `json:"summary,omitempty"`
	Source       string            `json:"source"`
	// Raw is the untouched input record. It never takes part in equality, merge or ordering.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// StartTime parses Start.
func (m Meeting) StartTime() (time.Time, bool) {
	return ParseTime(m.Start)
}

// AttendeeLabels renders attendees as display strings: plain strings are kept, objects
// contribute their name or email.
func (m Meeting) AttendeeLabels() []string {
	labels := make([]string, 0, len(m.Attendees))
	for _, a := range m.Attendees {
		r := gjson.ParseBytes(a)
		switch {
		case r.Type == gjson.String:
			labels = append(labels, r.Str)
		case r.IsObject():
			for _, key := range []string{"name", "display_name", "email", "id"} {
				if v := r.Get(key); present(v) {
					labels = append(labels, scalarString(v))
					break
				}
			}
		case present(r):
			labels = append(labels, r.Raw)
		}
	}
	return labels
}
