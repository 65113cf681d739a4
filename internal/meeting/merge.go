package meeting

import (
	"sort"
	"time"
)

// SafeMerge layers incoming over current and returns the merged collection sorted by
// start, most recent first. On an id collision the incoming record replaces the current
// one.
//
// An empty incoming batch never shrinks a non-empty collection: current is returned
// unchanged (same slice, same order) and EventGuardFired is emitted.
func (p *Pipeline) SafeMerge(current, incoming []Meeting) []Meeting {
	if len(incoming) == 0 {
		if len(current) > 0 {
			p.observe(Event{Kind: EventGuardFired, Count: len(current)})
		}
		return current
	}

	byID := make(map[string]Meeting, len(current)+len(incoming))
	order := make([]string, 0, len(current)+len(incoming))
	for _, layer := range [][]Meeting{current, incoming} {
		for _, m := range layer {
			if _, seen := byID[m.ID]; !seen {
				order = append(order, m.ID)
			}
			byID[m.ID] = m
		}
	}

	out := make([]Meeting, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	SortByStartDesc(out)
	return out
}

// MergeSources folds SafeMerge over collections in the given order. An empty source
// contributes nothing and cannot erase what earlier sources supplied.
func (p *Pipeline) MergeSources(collections ...[]Meeting) []Meeting {
	acc := []Meeting{}
	for _, c := range collections {
		acc = p.SafeMerge(acc, c)
	}
	return acc
}

// Ingest normalizes a raw payload and merges it into current.
func (p *Pipeline) Ingest(current []Meeting, payload []byte, source string) []Meeting {
	incoming, _ := p.NormalizeBatch(payload, source)
	return p.SafeMerge(current, incoming)
}

// SortByStartDesc orders meetings latest-first in place. Meetings whose start cannot be
// parsed sink to the end in their original relative order.
func SortByStartDesc(ms []Meeting) {
	type keyed struct {
		m  Meeting
		t  time.Time
		ok bool
	}
	ks := make([]keyed, len(ms))
	for i, m := range ms {
		t, ok := m.StartTime()
		ks[i] = keyed{m: m, t: t, ok: ok}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		switch {
		case ks[i].ok && ks[j].ok:
			return ks[i].t.After(ks[j].t)
		default:
			return ks[i].ok && !ks[j].ok
		}
	})
	for i := range ks {
		ms[i] = ks[i].m
	}
}
