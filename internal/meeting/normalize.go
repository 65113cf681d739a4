package meeting

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Pipeline holds the normalization and merge configuration. It carries no mutable
// state of its own and is safe for concurrent use.
type Pipeline struct {
	aliases   AliasTable
	observer  Observer
	newID     func() string
	stableIDs bool
}

type Option func(*Pipeline)

// WithObserver routes diagnostic events to o.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithIDGenerator replaces the random fallback id generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// WithStableFallbackIDs derives fallback ids from source, title and start instead of
// generating random ones, so id-less records from repeated fetches deduplicate.
func WithStableFallbackIDs(enabled bool) Option {
	return func(p *Pipeline) { p.stableIDs = enabled }
}

// WithAliases appends extra gjson paths for field after the built-in ones.
func WithAliases(field Field, extra ...string) Option {
	return func(p *Pipeline) {
		p.aliases[field] = append(p.aliases[field], paths(extra...)...)
	}
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		aliases:  DefaultAliases().clone(),
		observer: nopObserver{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) observe(e Event) { p.observer.Observe(e) }

// Normalize converts one raw record into a Meeting. It reports false when the record
// is not an object or carries no recognised start time.
func (p *Pipeline) Normalize(raw json.RawMessage, source string) (Meeting, bool) {
	if !gjson.ValidBytes(raw) {
		return Meeting{}, false
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Meeting{}, false
	}
	start, ok := p.aliases.Resolve(FieldStart, doc)
	if !ok {
		return Meeting{}, false
	}

	m := Meeting{
		Title:     UntitledTitle,
		Start:     scalarString(start),
		Attendees: []json.RawMessage{},
		Source:    source,
		Raw:       append(json.RawMessage(nil), raw...),
	}
	if v, ok := p.aliases.Resolve(FieldTitle, doc); ok {
		m.Title = scalarString(v)
	}
	if v, ok := p.aliases.Resolve(FieldEnd, doc); ok {
		m.End = scalarString(v)
	}
	if v, ok := p.aliases.Resolve(FieldAttendees, doc); ok {
		m.Attendees = coerceResult(v)
	}
	if v, ok := p.aliases.Resolve(FieldRecordingURL, doc); ok {
		m.RecordingURL = scalarString(v)
	}
	if v, ok := p.aliases.Resolve(FieldSummary, doc); ok {
		m.Summary = scalarString(v)
	}
	m.Duration = p.duration(doc, m.Start, m.End)

	if v, ok := p.aliases.Resolve(FieldID, doc); ok {
		m.ID = scalarString(v)
	} else {
		m.ID = p.fallbackID(source, m.Title, m.Start)
	}
	return m, true
}

// NormalizeBatch coerces payload into records and normalizes each one, keeping input
// order. The second return value is the number of records dropped for lacking a start.
func (p *Pipeline) NormalizeBatch(payload []byte, source string) ([]Meeting, int) {
	return p.NormalizeItems(Coerce(payload), source)
}

// NormalizeItems is NormalizeBatch for records that were already coerced.
func (p *Pipeline) NormalizeItems(items []json.RawMessage, source string) ([]Meeting, int) {
	out := make([]Meeting, 0, len(items))
	dropped := 0
	for _, item := range items {
		m, ok := p.Normalize(item, source)
		if !ok {
			dropped++
			continue
		}
		out = append(out, m)
	}
	if dropped > 0 {
		p.observe(Event{Kind: EventRecordsDropped, Source: source, Count: dropped})
	}
	return out, dropped
}

// NormalizeTranscript splits pasted text into pseudo-records and normalizes them.
func (p *Pipeline) NormalizeTranscript(text, source string, ingestedAt time.Time) ([]Meeting, int) {
	return p.NormalizeItems(SplitTranscript(text, ingestedAt), source)
}

func (p *Pipeline) duration(doc gjson.Result, start, end string) *float64 {
	if v, ok := p.aliases.Resolve(FieldDuration, doc); ok {
		if d, ok := number(v); ok {
			return &d
		}
	}
	if end == "" {
		return nil
	}
	st, ok := ParseTime(start)
	if !ok {
		return nil
	}
	en, ok := ParseTime(end)
	if !ok {
		return nil
	}
	span := en.Sub(st)
	if span == math.MaxInt64 || span == math.MinInt64 {
		return nil
	}
	d := math.Floor(span.Minutes() + 0.5)
	return &d
}

func (p *Pipeline) fallbackID(source, title, start string) string {
	if !p.stableIDs {
		return p.newID()
	}
	sum := sha256.Sum256([]byte(source + "|" + title + "|" + start))
	return "gen-" + hex.EncodeToString(sum[:])[:16]
}
