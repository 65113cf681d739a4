package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/meetflow/internal/meeting"
)

// ErrNotFound is returned when a domain has no persisted meetings.
var ErrNotFound = errors.New("not found")

type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

// SaveMeetings replaces the persisted collection of a domain with ms in one
// transaction. An empty collection is not written, so a domain never loses its rows
// to an empty save. Text postgres would reject (NUL, invalid UTF-8) is scrubbed first.
func (s *Store) SaveMeetings(ctx context.Context, domain string, ms []meeting.Meeting) error {
	if len(ms) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM meetings WHERE domain=$1`, domain); err != nil {
		return fmt.Errorf("clear meetings: %w", err)
	}
	for _, m := range ms {
		attendees, err := json.Marshal(m.Attendees)
		if err != nil {
			return fmt.Errorf("encode attendees of %s: %w", m.ID, err)
		}
		attendees, ok := cleanJSON(attendees)
		if !ok {
			attendees = []byte(`[]`)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO meetings (domain, id, title, start_raw, starts_at, end_raw, duration_minutes, attendees, recording_url, summary, source, raw, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())`,
			cleanText(domain), cleanText(m.ID), cleanText(m.Title), cleanText(m.Start), startsAt(m), nullString(m.End), nullFloat(m.Duration),
			string(attendees), nullString(m.RecordingURL), nullString(m.Summary), cleanText(m.Source), nullJSON(m.Raw),
		); err != nil {
			return fmt.Errorf("insert meeting %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// LoadMeetings returns the persisted collection of a domain, most recent first.
func (s *Store) LoadMeetings(ctx context.Context, domain string) ([]meeting.Meeting, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, start_raw, end_raw, duration_minutes, attendees, recording_url, summary, source, raw
FROM meetings WHERE domain=$1 ORDER BY starts_at DESC NULLS LAST, id`, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []meeting.Meeting
	for rows.Next() {
		var (
			m                    meeting.Meeting
			end, recording, summ sql.NullString
			duration             sql.NullFloat64
			attendees, raw       []byte
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Start, &end, &duration, &attendees, &recording, &summ, &m.Source, &raw); err != nil {
			return nil, err
		}
		m.End, m.RecordingURL, m.Summary = end.String, recording.String, summ.String
		if duration.Valid {
			d := duration.Float64
			m.Duration = &d
		}
		m.Attendees = []json.RawMessage{}
		if len(attendees) > 0 {
			if err := json.Unmarshal(attendees, &m.Attendees); err != nil {
				return nil, fmt.Errorf("decode attendees of %s: %w", m.ID, err)
			}
		}
		if len(raw) > 0 {
			m.Raw = json.RawMessage(raw)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	meeting.SortByStartDesc(out)
	return out, nil
}

// ListDomains returns every domain with at least one persisted meeting.
func (s *Store) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT domain FROM meetings ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func startsAt(m meeting.Meeting) any {
	t, ok := m.StartTime()
	if !ok {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return cleanText(s)
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	clean, ok := cleanJSON(raw)
	if !ok {
		return nil
	}
	return string(clean)
}
