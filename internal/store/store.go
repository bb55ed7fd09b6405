// Package store persists architecture documents and playback event logs.
package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Diagrams
	UpsertDiagram(ctx context.Context, d *Diagram) (changed bool, err error)
	GetDiagram(ctx context.Context, slug string) (*Diagram, error)
	ListDiagrams(ctx context.Context, filter DiagramFilter) ([]*DiagramSummary, error)
	DeleteDiagram(ctx context.Context, slug string) error

	// Playback events (append-only)
	AppendPlaybackEvent(ctx context.Context, event *PlaybackEvent) error
	ListPlaybackEvents(ctx context.Context, filter EventFilter) ([]*PlaybackEvent, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
