// Package telemetry turns pipeline and aggregation events into log lines and
// OpenTelemetry metrics.
package telemetry

import (
	"context"

	"github.com/mohammad-safakhou/meetflow/internal/aggregation"
	"github.com/mohammad-safakhou/meetflow/internal/logging"
	"github.com/mohammad-safakhou/meetflow/internal/meeting"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Observer receives both pipeline events and aggregation transitions.
type Observer interface {
	meeting.Observer
	aggregation.TransitionObserver
}

// LogObserver writes every event through a logger.
type LogObserver struct {
	logger logging.Logger
}

func NewLogObserver(logger logging.Logger) *LogObserver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Observe(e meeting.Event) {
	switch e.Kind {
	case meeting.EventRecordsDropped:
		o.logger.Warn("records dropped", "event", e.Kind, "source", e.Source, "count", e.Count)
	case meeting.EventGuardFired:
		o.logger.Warn("empty batch ignored", "event", e.Kind, "current", e.Count)
	case meeting.EventUnparseableStart:
		o.logger.Warn("unparseable start", "event", e.Kind, "source", e.Source, "meeting_id", e.MeetingID, "start", e.Value)
	case meeting.EventInvalidRange:
		o.logger.Warn("invalid range", "event", e.Kind, "range", e.Value)
	default:
		o.logger.Info("pipeline event", "event", e.Kind)
	}
}

func (o *LogObserver) OnTransition(t aggregation.Transition) {
	kv := []any{"event", "aggregation_transition", "domain", t.Domain, "run_id", t.RunID, "from", t.From, "to", t.To, "attempt", t.Attempt}
	if t.To == aggregation.StateError || t.To == aggregation.StateTimedOut {
		o.logger.Warn("aggregation transition", kv...)
		return
	}
	o.logger.Debug("aggregation transition", kv...)
}

// MetricsObserver counts events with OpenTelemetry instruments.
type MetricsObserver struct {
	dropped     otelmetric.Int64Counter
	guard       otelmetric.Int64Counter
	unparseable otelmetric.Int64Counter
	badRange    otelmetric.Int64Counter
	terminal    otelmetric.Int64Counter
}

func NewMetricsObserver(meter otelmetric.Meter, logger logging.Logger) *MetricsObserver {
	if logger == nil {
		logger = logging.Discard()
	}
	m := &MetricsObserver{}
	counter := func(name, desc string) otelmetric.Int64Counter {
		c, err := meter.Int64Counter(name, otelmetric.WithDescription(desc))
		if err != nil {
			logger.Warn("metric init failed", "metric", name, "err", err)
			return nil
		}
		return c
	}
	m.dropped = counter("meetflow_records_dropped_total", "Raw records dropped for lacking a start time")
	m.guard = counter("meetflow_merge_guard_fired_total", "Empty batches refused against a non-empty collection")
	m.unparseable = counter("meetflow_unparseable_start_total", "Meetings excluded from a range filter for an unparseable start")
	m.badRange = counter("meetflow_invalid_range_total", "Range filters called with an unparseable bound")
	m.terminal = counter("meetflow_aggregation_terminal_total", "Aggregation jobs that reached a terminal state")
	return m
}

func (m *MetricsObserver) Observe(e meeting.Event) {
	ctx := context.Background()
	switch e.Kind {
	case meeting.EventRecordsDropped:
		if m.dropped != nil {
			m.dropped.Add(ctx, int64(e.Count), otelmetric.WithAttributes(attribute.String("source", e.Source)))
		}
	case meeting.EventGuardFired:
		if m.guard != nil {
			m.guard.Add(ctx, 1)
		}
	case meeting.EventUnparseableStart:
		if m.unparseable != nil {
			m.unparseable.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("source", e.Source)))
		}
	case meeting.EventInvalidRange:
		if m.badRange != nil {
			m.badRange.Add(ctx, 1)
		}
	}
}

func (m *MetricsObserver) OnTransition(t aggregation.Transition) {
	if m.terminal == nil || !t.To.Terminal() {
		return
	}
	m.terminal.Add(context.Background(), 1, otelmetric.WithAttributes(attribute.String("state", string(t.To))))
}

type multi []Observer

// Multi fans every event out to each observer in order.
func Multi(obs ...Observer) Observer {
	out := make(multi, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m multi) Observe(e meeting.Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

func (m multi) OnTransition(t aggregation.Transition) {
	for _, o := range m {
		o.OnTransition(t)
	}
}
