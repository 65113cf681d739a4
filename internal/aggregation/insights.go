package aggregation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/meetflow/internal/meeting"
	"github.com/tidwall/gjson"
)

const (
	SourceGoal      = "aggregation:goal"
	SourceChallenge = "aggregation:challenge"
)

// InsightRecords turns the goals and challenges of a completed job's summary into
// meetings so they can be merged, filtered and searched like any other record.
func InsightRecords(job Job, p *meeting.Pipeline) []meeting.Meeting {
	out := []meeting.Meeting{}
	if job.State != StateComplete || len(job.Summary) == 0 || !gjson.ValidBytes(job.Summary) {
		return out
	}
	start := job.UpdatedAt
	if _, ok := meeting.ParseTime(start); !ok {
		start = job.FinishedAt.UTC().Format(time.RFC3339)
	}

	summary := gjson.ParseBytes(job.Summary)
	for _, kind := range []struct {
		path, tag, source string
	}{
		{"goals", "goal", SourceGoal},
		{"challenges", "challenge", SourceChallenge},
	} {
		var raws []json.RawMessage
		for i, item := range summary.Get(kind.path).Array() {
			title, detail := insightText(item)
			if title == "" {
				continue
			}
			rec := map[string]any{
				"id":    fmt.Sprintf("%s-%s-%d", job.RunID, kind.tag, i+1),
				"title": title,
				"start": start,
			}
			if detail != "" {
				rec["summary"] = detail
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			raws = append(raws, data)
		}
		ms, _ := p.NormalizeItems(raws, kind.source)
		out = append(out, ms...)
	}
	return out
}

// insightText reads a goal or challenge that is either a plain string or an object with
// title/text/description.
func insightText(item gjson.Result) (title, detail string) {
	if item.Type == gjson.String {
		return strings.TrimSpace(item.Str), ""
	}
	if !item.IsObject() {
		return "", ""
	}
	for _, key := range []string{"title", "text", "description"} {
		if v := strings.TrimSpace(item.Get(key).String()); v != "" {
			title = v
			break
		}
	}
	if d := strings.TrimSpace(item.Get("description").String()); d != "" && d != title {
		detail = d
	}
	return title, detail
}
