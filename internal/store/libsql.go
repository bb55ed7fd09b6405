package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/archflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/archflow.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for the event log.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Diagrams ---

// Checksum returns the content hash stored alongside a document.
func Checksum(document []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(document))
}

// UpsertDiagram inserts or replaces a diagram. It reports whether anything
// changed; re-importing an identical document is a no-op.
func (s *LibSQLStore) UpsertDiagram(ctx context.Context, d *Diagram) (bool, error) {
	if d.Slug == "" {
		return false, schema.NewError(schema.ErrCodeValidation, "diagram slug is required")
	}
	if !json.Valid(d.Document) {
		return false, schema.NewErrorf(schema.ErrCodeValidation, "diagram %q document is not valid JSON", d.Slug)
	}
	d.Checksum = Checksum(d.Document)

	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT checksum FROM diagrams WHERE slug = ?`, d.Slug).Scan(&existing)
	switch {
	case err == nil && existing == d.Checksum:
		return false, nil
	case err != nil && err != sql.ErrNoRows:
		return false, err
	}

	now := time.Now().UTC()
	d.UpdatedAt = now
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO diagrams (slug, title, document, checksum, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET title=excluded.title, document=excluded.document,
		   checksum=excluded.checksum, source=excluded.source, updated_at=excluded.updated_at`,
		d.Slug, d.Title, string(d.Document), d.Checksum, nullStr(d.Source), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LibSQLStore) GetDiagram(ctx context.Context, slug string) (*Diagram, error) {
	d := &Diagram{}
	var doc string
	var source sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT slug, title, document, checksum, source, created_at, updated_at FROM diagrams WHERE slug = ?`, slug,
	).Scan(&d.Slug, &d.Title, &doc, &d.Checksum, &source, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("diagram", slug)
	}
	if err != nil {
		return nil, err
	}
	d.Document = json.RawMessage(doc)
	d.Source = source.String
	return d, nil
}

func (s *LibSQLStore) ListDiagrams(ctx context.Context, filter DiagramFilter) ([]*DiagramSummary, error) {
	var where []string
	var args []any
	if filter.TitleContains != "" {
		where = append(where, "title LIKE ?")
		args = append(args, "%"+filter.TitleContains+"%")
	}
	query := `SELECT slug, title, checksum, source, updated_at FROM diagrams`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY slug ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DiagramSummary
	for rows.Next() {
		d := &DiagramSummary{}
		var source sql.NullString
		if err := rows.Scan(&d.Slug, &d.Title, &d.Checksum, &source, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Source = source.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteDiagram(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM diagrams WHERE slug = ?`, slug)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "diagram", slug)
}

// --- Playback events ---

// AppendPlaybackEvent appends an event with a monotonically increasing
// per-session sequence.
func (s *LibSQLStore) AppendPlaybackEvent(ctx context.Context, event *PlaybackEvent) error {
	if event.SessionID == "" {
		return schema.NewError(schema.ErrCodeValidation, "playback event requires a session id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx may start a deferred transaction; a write forces the
	// lock before the sequence is read.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM playback_events WHERE session_id = ?`, event.SessionID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO playback_events (session_id, slug, scenario, event_type, step, payload, sequence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.SessionID, event.Slug, event.Scenario, event.Type, event.Step, nullRaw(event.Payload), seq, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert playback event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit playback event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) ListPlaybackEvents(ctx context.Context, filter EventFilter) ([]*PlaybackEvent, error) {
	var where []string
	var args []any
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
		if filter.Since > 0 {
			where = append(where, "sequence > ?")
			args = append(args, filter.Since)
		}
	}
	if filter.Slug != "" {
		where = append(where, "slug = ?")
		args = append(args, filter.Slug)
	}
	if filter.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.Type)
	}

	query := `SELECT id, session_id, slug, scenario, event_type, step, payload, sequence, created_at FROM playback_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PlaybackEvent
	for rows.Next() {
		e := &PlaybackEvent{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Slug, &e.Scenario, &e.Type, &e.Step, &payload, &e.Sequence, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = rawOrNil(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- helpers ---

func storeNotFound(resource, id string) *schema.ArchflowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

var _ Store = (*LibSQLStore)(nil)
