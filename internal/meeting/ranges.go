package meeting

import "strings"

// FilterByDateRange keeps meetings whose start lies in [fromISO, toISO], compared at
// millisecond precision. Meetings with an unparseable start are excluded and reported
// as EventUnparseableStart; an unparseable bound excludes everything and is reported as
// EventInvalidRange.
func (p *Pipeline) FilterByDateRange(ms []Meeting, fromISO, toISO string) []Meeting {
	out := []Meeting{}
	from, okFrom := ParseTime(fromISO)
	to, okTo := ParseTime(toISO)
	if !okFrom || !okTo {
		p.observe(Event{Kind: EventInvalidRange, Value: fromISO + ".." + toISO})
		return out
	}
	lo, hi := from.UnixMilli(), to.UnixMilli()
	for _, m := range ms {
		st, ok := m.StartTime()
		if !ok {
			p.observe(Event{Kind: EventUnparseableStart, Source: m.Source, MeetingID: m.ID, Value: m.Start})
			continue
		}
		if at := st.UnixMilli(); at >= lo && at <= hi {
			out = append(out, m)
		}
	}
	return out
}

// GroupBySource partitions meetings by source tag, keeping input order inside each
// bucket. Untagged meetings land in UnknownSource.
func GroupBySource(ms []Meeting) map[string][]Meeting {
	groups := make(map[string][]Meeting)
	for _, m := range ms {
		key := strings.TrimSpace(m.Source)
		if key == "" {
			key = UnknownSource
		}
		groups[key] = append(groups[key], m)
	}
	return groups
}
