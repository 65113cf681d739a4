package meeting

// EventKind names a diagnostic event emitted by the pipeline.
type EventKind string

const (
	// EventRecordsDropped fires when a batch loses records that had no start time.
	EventRecordsDropped EventKind = "records_dropped"
	// EventGuardFired fires when an empty batch was refused against a non-empty collection.
	EventGuardFired EventKind = "guard_fired"
	// EventUnparseableStart fires when a range filter cannot place a meeting in time.
	EventUnparseableStart EventKind = "unparseable_start"
	// EventInvalidRange fires when a range filter bound cannot be parsed.
	EventInvalidRange EventKind = "invalid_range"
)

// Event is a single diagnostic emission. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	Source    string
	Count     int
	MeetingID string
	Value     string
}

// Observer receives pipeline events. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
