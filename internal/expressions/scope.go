package expressions

import (
	"github.com/varflow/varflow/pkg/schema"
)

// BuildScope flattens a workflow snapshot into the map handed to expression
// engines. Three namespaces are exposed:
//   - vars:     variable name -> current value (nil until produced)
//   - workflow: document metadata (id, name, status)
//   - step:     the step under evaluation (id, index)
func BuildScope(wf *schema.Workflow, stepID string, stepIndex int) map[string]any {
	varValues := make(map[string]any, len(wf.State))
	for i := range wf.State {
		varValues[wf.State[i].Name] = wf.State[i].Value
	}

	return map[string]any{
		"vars": varValues,
		"workflow": map[string]any{
			"id":     wf.ID,
			"name":   wf.Name,
			"status": string(wf.Status),
		},
		"step": map[string]any{
			"id":    stepID,
			"index": stepIndex,
		},
	}
}
