package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/archflow/pkg/schema"
)

// Diagram is a persisted architecture document.
type Diagram struct {
	Slug      string          `json:"slug"`
	Title     string          `json:"title"`
	Document  json.RawMessage `json:"document"`
	Checksum  string          `json:"checksum"`
	Source    string          `json:"source,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Model decodes the stored document.
func (d *Diagram) Model() (*schema.ArchitectureModel, error) {
	var m schema.ArchitectureModel
	if err := json.Unmarshal(d.Document, &m); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "diagram %q has a corrupt document", d.Slug).WithCause(err)
	}
	if m.Slug == "" {
		m.Slug = d.Slug
	}
	return &m, nil
}

// DiagramSummary is a Diagram without its document, for listings.
type DiagramSummary struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DiagramFilter narrows ListDiagrams.
type DiagramFilter struct {
	TitleContains string
	Limit         int
	Offset        int
}

// PlaybackEvent is an immutable entry in a session's playback log.
type PlaybackEvent struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Slug      string          `json:"slug"`
	Scenario  string          `json:"scenario"`
	Type      string          `json:"event_type"`
	Step      int             `json:"step"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Sequence  int64           `json:"sequence"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventFilter narrows ListPlaybackEvents. Zero values match everything.
type EventFilter struct {
	SessionID string
	Slug      string
	Type      string
	Since     int64 // sequence, exclusive; only meaningful with SessionID
	Limit     int
}
