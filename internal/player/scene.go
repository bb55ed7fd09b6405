package player

import (
	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/expressions"
	"github.com/rendis/archflow/internal/playback"
	"github.com/rendis/archflow/pkg/schema"
)

// SceneAt draws an entry as it looks at a given timeline step without running
// a session. An empty scenario id means the default scenario; a negative step
// means idle. Steps outside the timeline fail with INVALID_TRANSITION.
func SceneAt(entry *catalog.Entry, cel *expressions.CELEngine, scenarioID schema.ScenarioID, step int) (*export.Scene, playback.Snapshot, error) {
	if entry == nil || entry.Graph == nil {
		return nil, playback.Snapshot{}, schema.NewError(schema.ErrCodeNothingRendered, "no diagram to draw")
	}

	var (
		sc schema.Scenario
		ok bool
	)
	if scenarioID == "" {
		sc, _ = entry.Graph.DefaultScenario()
	} else if sc, ok = entry.Graph.Scenario(scenarioID); !ok {
		return nil, playback.Snapshot{}, schema.NewErrorf(schema.ErrCodeNotFound, "scenario %q not found", scenarioID).
			WithSlug(entry.Slug)
	}

	ctrl := playback.NewController(playback.FromTimeline(sc.Timeline), playback.Config{Clock: playback.NewManualClock()})
	defer ctrl.Close()
	if step >= 0 {
		if err := ctrl.GoToStep(step); err != nil {
			return nil, playback.Snapshot{}, err
		}
	}
	snap := ctrl.Snapshot()

	return &export.Scene{
		Graph:    entry.Graph,
		Layout:   entry.Layout,
		Scenario: sc,
		Focus:    entry.Focus(cel, sc),
		Active:   set(snap.Active),
		Visited:  set(snap.Visited),
	}, snap, nil
}
