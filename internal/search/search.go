// Package search keeps an in-memory full-text index of each domain's meetings.
package search

import (
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/mohammad-safakhou/meetflow/internal/meeting"
)

const defaultLimit = 10

type Hit struct {
	Meeting meeting.Meeting `json:"meeting"`
	Score   float64         `json:"score"`
	Rank    int             `json:"rank"`
}

// document is the indexed projection of a meeting.
type document struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Attendees string `json:"attendees"`
	Source    string `json:"source"`
}

type domainIndex struct {
	bleve    bleve.Index
	meetings map[string]meeting.Meeting
}

// Index holds one bleve in-memory index per domain.
type Index struct {
	mu      sync.RWMutex
	domains map[string]*domainIndex
}

func New() *Index {
	return &Index{domains: make(map[string]*domainIndex)}
}

// Replace rebuilds the index of a domain from ms. The previous index keeps serving
// searches until the new one is ready.
func (x *Index) Replace(domain string, ms []meeting.Meeting) error {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return err
	}
	di := &domainIndex{bleve: idx, meetings: make(map[string]meeting.Meeting, len(ms))}
	batch := idx.NewBatch()
	for _, m := range ms {
		di.meetings[m.ID] = m
		if err := batch.Index(m.ID, document{
			Title:     m.Title,
			Summary:   m.Summary,
			Attendees: strings.Join(m.AttendeeLabels(), " "),
			Source:    m.Source,
		}); err != nil {
			_ = idx.Close()
			return err
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return err
	}

	x.mu.Lock()
	old := x.domains[domain]
	x.domains[domain] = di
	x.mu.Unlock()
	if old != nil {
		_ = old.bleve.Close()
	}
	return nil
}

// Search runs a query-string query against a domain. Unknown domains yield no hits.
func (x *Index) Search(domain, q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = defaultLimit
	}
	out := []Hit{}
	if strings.TrimSpace(q) == "" {
		return out, nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	di, ok := x.domains[domain]
	if !ok {
		return out, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), k, 0, false)
	res, err := di.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	for i, hit := range res.Hits {
		m, ok := di.meetings[hit.ID]
		if !ok {
			continue
		}
		out = append(out, Hit{Meeting: m, Score: hit.Score, Rank: i + 1})
	}
	return out, nil
}

// Has reports whether a domain has been indexed.
func (x *Index) Has(domain string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.domains[domain]
	return ok
}

// Drop forgets the index of a domain.
func (x *Index) Drop(domain string) {
	x.mu.Lock()
	di := x.domains[domain]
	delete(x.domains, domain)
	x.mu.Unlock()
	if di != nil {
		_ = di.bleve.Close()
	}
}
