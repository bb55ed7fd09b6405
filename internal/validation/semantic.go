package validation

import (
	"fmt"

	"github.com/rendis/archflow/internal/expressions"
	"github.com/rendis/archflow/internal/graph"
	"github.com/rendis/archflow/pkg/schema"
)

// Semantic issue codes not already reported by graph.Compile.
const (
	IssueInvalidFocusExpr = "INVALID_FOCUS_EXPR"
	IssueNoBaseline       = "NO_BASELINE_SCENARIO"
	IssueEmptyGroup       = "EMPTY_GROUP"
)

// validateSemantic compiles the model and collects warnings about references
// and expressions. Nothing here is fatal: the graph still renders.
func validateSemantic(model *schema.ArchitectureModel, cel *expressions.CELEngine) *schema.ValidationResult {
	_, result := graph.Compile(model)

	for i, grp := range model.Groups {
		if len(grp.NodeIDs) == 0 {
			result.AddWarning(fmt.Sprintf("groups[%d]", i), IssueEmptyGroup,
				fmt.Sprintf("group %q has no members and is not drawn", grp.ID))
		}
	}

	hasBaseline := false
	for i, sc := range model.Scenarios {
		if sc.ID == schema.ScenarioBaseline {
			hasBaseline = true
		}
		if sc.FocusExpr == "" || cel == nil {
			continue
		}
		if _, err := cel.EdgePredicate(sc.FocusExpr); err != nil {
			result.AddWarning(fmt.Sprintf("scenarios[%d].focus_expr", i), IssueInvalidFocusExpr,
				fmt.Sprintf("scenario %q focus expression ignored: %s", sc.ID, err.Error()))
		}
	}
	if len(model.Scenarios) > 0 && !hasBaseline {
		result.AddWarning("scenarios", IssueNoBaseline,
			fmt.Sprintf("no baseline scenario; %q is used as the default", model.Scenarios[0].ID))
	}

	return result
}
