package meeting

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Field is a canonical Meeting attribute resolved from source aliases.
type Field string

const (
	FieldID           Field = "id"
	FieldTitle        Field = "title"
	FieldStart        Field = "start"
	FieldEnd          Field = "end"
	FieldDuration     Field = "duration"
	FieldAttendees    Field = "attendees"
	FieldRecordingURL Field = "recordingUrl"
	FieldSummary      Field = "summary"
)

// Accessor reads one candidate value out of a raw record.
type Accessor func(doc gjson.Result) gjson.Result

// Path returns an Accessor for a gjson path such as "meeting_id" or "default_summary.text".
func Path(p string) Accessor {
	return func(doc gjson.Result) gjson.Result { return doc.Get(p) }
}

// AliasTable lists, per canonical field, the accessors tried in order. The first one
// yielding a present value wins. New source formats are supported by appending rows.
type AliasTable map[Field][]Accessor

// DefaultAliases returns the alias table covering the webhook, proxy and pasted formats.
func DefaultAliases() AliasTable {
	return AliasTable{
		FieldID:           paths("id", "meetingId", "meeting_id", "fathomMeetingId"),
		FieldTitle:        paths("title", "topic", "subject", "name"),
		FieldStart:        paths("start_time", "start", "startedAt", "started_at", "createdAt"),
		FieldEnd:          paths("end_time", "end", "endedAt", "ended_at"),
		FieldDuration:     paths("duration", "durationMinutes", "duration_minutes"),
		FieldAttendees:    paths("attendees", "participants", "emails"),
		FieldRecordingURL: paths("recordingUrl", "recording_url", "share_url", "url"),
		FieldSummary:      paths("summary", "default_summary.markdown_formatted", "default_summary", "notes"),
	}
}

func paths(ps ...string) []Accessor {
	out := make([]Accessor, 0, len(ps))
	for _, p := range ps {
		out = append(out, Path(p))
	}
	return out
}

// Resolve returns the first present value for f.
func (t AliasTable) Resolve(f Field, doc gjson.Result) (gjson.Result, bool) {
	for _, get := range t[f] {
		if v := get(doc); present(v) {
			return v, true
		}
	}
	return gjson.Result{}, false
}

func (t AliasTable) clone() AliasTable {
	out := make(AliasTable, len(t))
	for f, accs := range t {
		out[f] = append([]Accessor(nil), accs...)
	}
	return out
}

// present treats missing, null, false and blank strings as absent.
func present(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return strings.TrimSpace(v.Str) != ""
	default:
		return v.Exists()
	}
}

func scalarString(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return v.Raw
}

func number(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	}
	return 0, false
}
