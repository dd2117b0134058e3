package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"ragchat/internal/types"
)

// =============================================================================
// WIRE TYPES (backend JSON contract)
// =============================================================================

type sourceJSON struct {
	Source  string `json:"source"`
	Page    int    `json:"page"`
	Content string `json:"content"`
}

type historyItemJSON struct {
	Role    string       `json:"role"`
	Content string       `json:"content"`
	Sources []sourceJSON `json:"sources,omitempty"`
}

type askRequestJSON struct {
	Query string `json:"query"`
}

type askResponseJSON struct {
	Response string       `json:"response"`
	Sources  []sourceJSON `json:"sources"`
}

type fileJSON struct {
	ID        flexibleID `json:"id"`
	Filename  string     `json:"filename"`
	CreatedAt string     `json:"created_at"`
}

// errorBodyJSON covers both FastAPI's {"detail": ...} and the delete
// endpoint's {"error": "..."} reply.
type errorBodyJSON struct {
	Detail json.RawMessage `json:"detail"`
	Error  string          `json:"error"`
}

// flexibleID accepts string or numeric identifiers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSources(in []sourceJSON) []types.Source {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.Source, len(in))
	for i, s := range in {
		out[i] = types.Source{DocumentName: s.Source, Page: s.Page, Snippet: s.Content}
	}
	return out
}

func toFileRecord(f fileJSON) types.FileRecord {
	return types.FileRecord{
		ID:        string(f.ID),
		Filename:  f.Filename,
		CreatedAt: parseTimestamp(f.CreatedAt),
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts RFC3339 and the Postgres-style variants, returning
// the zero time when nothing matches.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// detailMessage extracts a human-readable detail from an error body.
// FastAPI validation errors put an array in "detail"; that is returned as
// compact JSON rather than dropped.
func detailMessage(body []byte) string {
	var eb errorBodyJSON
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if len(eb.Detail) > 0 && string(eb.Detail) != "null" {
		var s string
		if err := json.Unmarshal(eb.Detail, &s); err == nil {
			return s
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, eb.Detail); err == nil {
			return buf.String()
		}
	}
	return eb.Error
}
