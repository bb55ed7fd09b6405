// Package scheduler reloads the diagram catalogue from disk on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/archflow/internal/catalog"
)

// DefaultCron reloads every five minutes.
const DefaultCron = "*/5 * * * *"

// DefaultPollInterval is how often the loop checks whether a reload is due.
const DefaultPollInterval = 30 * time.Second

// DirLoader is the slice of the catalogue the reloader drives.
// Satisfied by *catalog.Catalog.
type DirLoader interface {
	LoadDir(ctx context.Context, dir string) (*catalog.LoadReport, error)
}

// Status is the outcome of the most recent reload of one directory.
type Status struct {
	Dir        string              `json:"dir"`
	LastRunAt  *time.Time          `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time          `json:"next_run_at,omitempty"`
	LastStatus string              `json:"last_status,omitempty"`
	LastReport *catalog.LoadReport `json:"last_report,omitempty"`
}

// Config wires a Reloader.
type Config struct {
	Loader       DirLoader
	Dirs         []string
	Cron         string        // five-field expression; empty means DefaultCron
	PollInterval time.Duration // zero means DefaultPollInterval
	Logger       *slog.Logger
	Now          func() time.Time // tests only
}

// Reloader polls its schedule and reloads each directory when due.
type Reloader struct {
	loader   DirLoader
	schedule cron.Schedule
	poll     time.Duration
	logger   *slog.Logger
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	statusMu sync.Mutex
	status   map[string]*Status // dir → last outcome
	order    []string

	inflightMu sync.Mutex
	inflight   map[string]struct{} // dirs currently loading (dedup)
}

// NewReloader parses the cron expression and creates a Reloader.
func NewReloader(cfg Config) (*Reloader, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("scheduler: loader is required")
	}
	expr := cfg.Cron
	if expr == "" {
		expr = DefaultCron
	}
	schedule, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	r := &Reloader{
		loader:   cfg.Loader,
		schedule: schedule,
		poll:     cfg.PollInterval,
		logger:   cfg.Logger,
		now:      cfg.Now,
		status:   make(map[string]*Status, len(cfg.Dirs)),
		inflight: make(map[string]struct{}),
	}
	for _, dir := range cfg.Dirs {
		if _, dup := r.status[dir]; dup {
			continue
		}
		r.status[dir] = &Status{Dir: dir}
		r.order = append(r.order, dir)
	}
	return r, nil
}

// ParseCron parses a standard five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// NextRun computes the next reload time after from.
func (r *Reloader) NextRun(from time.Time) time.Time {
	return r.schedule.Next(from)
}

// Start launches the background loop. Every directory is loaded once
// immediately, then again whenever the schedule comes due.
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return fmt.Errorf("reloader already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(loopCtx)
	r.logger.Info("reloader started", slog.Int("dirs", len(r.order)))
	return nil
}

func (r *Reloader) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick reloads every directory whose next run is due. A directory that has
// never run is due.
func (r *Reloader) tick(ctx context.Context) {
	now := r.now()
	for _, dir := range r.order {
		r.statusMu.Lock()
		next := r.status[dir].NextRunAt
		r.statusMu.Unlock()

		if next != nil && next.After(now) {
			continue
		}
		if !r.tryAcquire(dir) {
			continue
		}
		r.run(ctx, dir, now)
		r.release(dir)
	}
}

// RunNow reloads every directory immediately, skipping any already loading.
// It returns the reports of the directories it loaded.
func (r *Reloader) RunNow(ctx context.Context) []*catalog.LoadReport {
	now := r.now()
	var reports []*catalog.LoadReport
	for _, dir := range r.order {
		if !r.tryAcquire(dir) {
			continue
		}
		if report := r.run(ctx, dir, now); report != nil {
			reports = append(reports, report)
		}
		r.release(dir)
	}
	return reports
}

func (r *Reloader) run(ctx context.Context, dir string, now time.Time) *catalog.LoadReport {
	report, err := r.loader.LoadDir(ctx, dir)
	status := "success"
	switch {
	case err != nil:
		status = "error"
		r.logger.Error("catalog reload failed",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	case len(report.Failed) > 0:
		status = "partial"
	}

	next := r.NextRun(now)
	r.statusMu.Lock()
	st := r.status[dir]
	st.LastRunAt = &now
	st.NextRunAt = &next
	st.LastStatus = status
	st.LastReport = report
	r.statusMu.Unlock()

	if report != nil && report.Changed() > 0 {
		r.logger.Info("catalog reloaded",
			slog.String("dir", dir),
			slog.Int("changed", report.Changed()),
		)
	}
	return report
}

// Statuses returns a copy of the per-directory outcomes in configuration order.
func (r *Reloader) Statuses() []Status {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	out := make([]Status, 0, len(r.order))
	for _, dir := range r.order {
		out = append(out, *r.status[dir])
	}
	return out
}

// tryAcquire returns true and marks the directory as loading if it is not already.
func (r *Reloader) tryAcquire(dir string) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if _, ok := r.inflight[dir]; ok {
		return false
	}
	r.inflight[dir] = struct{}{}
	return true
}

func (r *Reloader) release(dir string) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	delete(r.inflight, dir)
}

// Stop shuts down the loop and waits for an in-progress tick to finish.
func (r *Reloader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return nil
	}

	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil

	r.logger.Info("reloader stopped")
	return nil
}
