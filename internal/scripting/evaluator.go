// Package scripting runs the small JS predicates attached to
// ObjectiveCustom quest objectives. Each evaluation gets a fresh
// goja.Runtime: scripts are untrusted content authored by quest
// designers, and goja.Runtime isn't safe for concurrent reuse, so
// isolating per call is simpler than coordinating a shared VM.
package scripting

import (
	"fmt"

	"github.com/dop251/goja"
)

// Progress is the objective state passed into a custom-objective script
// as its first argument.
type Progress struct {
	Current  int32 `json:"current"`
	Required int32 `json:"required"`
	TargetID uint32 `json:"targetId"`
}

// Event is the triggering QuestEvent passed as the script's second
// argument.
type Event struct {
	Type     uint8  `json:"type"`
	TargetID uint32 `json:"targetId"`
	Count    int32  `json:"count"`
}

// ErrNotAFunction is returned when a script's body does not define a
// callable "complete" entry point.
var ErrNotAFunction = fmt.Errorf("scripting: script does not define a complete(progress, event) function")

// EvaluateComplete runs script in a fresh VM and calls its
// `complete(progress, event)` function, returning the function's
// boolean result. script must declare a top-level `function
// complete(progress, event) { ... }`. The fields of progress and event
// are visible to the script under their json tag names (e.g.
// event.count).
func EvaluateComplete(script string, progress Progress, event Event) (bool, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if _, err := vm.RunString(script); err != nil {
		return false, fmt.Errorf("scripting: compile objective script: %w", err)
	}

	complete, ok := goja.AssertFunction(vm.Get("complete"))
	if !ok {
		return false, ErrNotAFunction
	}

	result, err := complete(goja.Undefined(), vm.ToValue(progress), vm.ToValue(event))
	if err != nil {
		return false, fmt.Errorf("scripting: evaluate objective script: %w", err)
	}

	return result.ToBoolean(), nil
}
