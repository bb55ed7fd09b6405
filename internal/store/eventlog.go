package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rendis/archflow/pkg/schema"
)

// EventLog reads playback event streams on top of a Store.
type EventLog struct {
	store Store
}

// NewEventLog wraps a Store.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// Append records one event.
func (el *EventLog) Append(ctx context.Context, event *PlaybackEvent) error {
	return el.store.AppendPlaybackEvent(ctx, event)
}

// Session returns a session's events with sequence > since, oldest first.
func (el *EventLog) Session(ctx context.Context, sessionID string, since int64) ([]*PlaybackEvent, error) {
	return el.store.ListPlaybackEvents(ctx, EventFilter{SessionID: sessionID, Since: since})
}

// SessionSummary is the playback state reconstructed from a session's log.
type SessionSummary struct {
	SessionID  string                `json:"session_id"`
	Slug       string                `json:"slug"`
	Scenario   string                `json:"scenario"`
	Status     schema.PlaybackStatus `json:"status"`
	Step       int                   `json:"step"`
	StepsSeen  int                   `json:"steps_seen"`
	Closed     bool                  `json:"closed"`
	Events     int                   `json:"events"`
	StartedAt  time.Time             `json:"started_at"`
	LastSeenAt time.Time             `json:"last_seen_at"`
}

// ReplaySession folds a session's events into a summary. It fails when the
// session has no events or the sequence has gaps.
func (el *EventLog) ReplaySession(ctx context.Context, sessionID string) (*SessionSummary, error) {
	events, err := el.store.ListPlaybackEvents(ctx, EventFilter{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}
	if len(events) == 0 {
		return nil, storeNotFound("session", sessionID)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in session %s: expected %d, got %d", sessionID, expected, e.Sequence)
		}
	}

	sum := &SessionSummary{
		SessionID: sessionID,
		Slug:      events[0].Slug,
		Scenario:  events[0].Scenario,
		Status:    schema.PlaybackIdle,
		Step:      -1,
		Events:    len(events),
		StartedAt: events[0].CreatedAt,
	}

	for _, e := range events {
		sum.LastSeenAt = e.CreatedAt
		switch e.Type {
		case schema.EventPlaybackStarted:
			sum.Status = schema.PlaybackPlaying
		case schema.EventPlaybackPaused:
			if sum.Step < 0 {
				sum.Status = schema.PlaybackIdle
			} else {
				sum.Status = schema.PlaybackStepped
			}
		case schema.EventPlaybackStep:
			sum.Step = e.Step
			sum.StepsSeen++
			if sum.Status != schema.PlaybackPlaying {
				sum.Status = schema.PlaybackStepped
			}
		case schema.EventPlaybackFinished:
			sum.Step = e.Step
			sum.Status = schema.PlaybackFinished
		case schema.EventPlaybackReset:
			sum.Step = -1
			sum.Status = schema.PlaybackIdle
		case schema.EventScenarioChanged:
			sum.Scenario = e.Scenario
			sum.Step = -1
			sum.Status = schema.PlaybackIdle
		case schema.EventSessionClosed:
			sum.Closed = true
		}
	}

	return sum, nil
}
