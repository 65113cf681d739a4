package meeting

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	blankLines = regexp.MustCompile(`\r?\n[ \t]*(?:\r?\n[ \t]*)+`)
	headerLine = regexp.MustCompile(`^([A-Za-z]+)\s*:\s*(.+)$`)
)

// headerKeys maps recognised block header names to raw record fields.
var headerKeys = map[string]string{
	"id":        "id",
	"title":     "title",
	"date":      "start",
	"start":     "start",
	"end":       "end",
	"attendees": "attendees",
}

const maxDerivedTitle = 120

// SplitTranscript turns pasted transcript text into raw pseudo-records, one per
// blank-line separated block. Leading "Key: value" headers (Id, Title, Date/Start, End,
// Attendees) are lifted into fields. Blocks without a date header are stamped with
// ingestedAt as createdAt so they are never dropped for lacking a start.
func SplitTranscript(text string, ingestedAt time.Time) []json.RawMessage {
	out := []json.RawMessage{}
	for _, block := range blankLines.Split(strings.TrimSpace(text), -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		rec := parseBlock(block)
		if _, ok := rec["start"]; !ok {
			rec["createdAt"] = ingestedAt.UTC().Format(time.RFC3339)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		out = append(out, data)
	}
	return out
}

func parseBlock(block string) map[string]any {
	rec := map[string]any{}
	lines := strings.Split(block, "\n")
	i := 0
	for ; i < len(lines); i++ {
		match := headerLine.FindStringSubmatch(strings.TrimSpace(lines[i]))
		if match == nil {
			break
		}
		field, ok := headerKeys[strings.ToLower(match[1])]
		if !ok {
			break
		}
		value := strings.TrimSpace(match[2])
		if field == "attendees" {
			rec[field] = splitList(value)
			continue
		}
		rec[field] = value
	}

	body := strings.TrimSpace(strings.Join(lines[i:], "\n"))
	if _, ok := rec["title"]; !ok {
		first := body
		if first == "" {
			first = block
		}
		if idx := strings.IndexByte(first, '\n'); idx >= 0 {
			first = first[:idx]
		}
		rec["title"] = truncate(strings.TrimSpace(first), maxDerivedTitle)
	}
	if body != "" {
		rec["summary"] = body
	}
	return rec
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
