// Package registry holds the static catalog of every invocable action: its
// argument schema, workflow precondition and declared on-success stage
// transition. The catalog is loaded at startup and immutable at runtime, so
// it is shared across requests without locking.
package registry

import (
	"fmt"
	"strings"

	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/schema"
)

// ToolSpec describes one invocable action.
type ToolSpec struct {
	ID          string
	Description string
	Args        schema.Args

	// Precondition is the minimum stage required to execute.
	Precondition domain.Stage
	// OnSuccess is the stage the router advances to after a successful
	// execution. Empty means no stage transition.
	OnSuccess domain.Stage

	// Sandboxed marks the action as user-directed analysis code, executed
	// through the sandboxed executor instead of a direct tool call.
	Sandboxed bool

	// Keywords drive the deterministic fallback classifier.
	Keywords []string
}

// HasArgs reports whether the action takes any arguments.
func (t ToolSpec) HasArgs() bool {
	return len(t.Args) > 0
}

// Registry is the immutable tool catalog.
type Registry struct {
	tools map[string]ToolSpec
	order []string
}

// New builds a registry from specs. Duplicate or invalid specs are
// rejected at startup rather than surfacing at request time.
func New(specs ...ToolSpec) (*Registry, error) {
	r := &Registry{tools: make(map[string]ToolSpec, len(specs))}
	for _, spec := range specs {
		if spec.ID == "" {
			return nil, fmt.Errorf("tool spec without id")
		}
		if _, exists := r.tools[spec.ID]; exists {
			return nil, fmt.Errorf("duplicate tool id: %s", spec.ID)
		}
		if !spec.Precondition.Known() {
			return nil, fmt.Errorf("tool %s: unknown precondition stage %q", spec.ID, spec.Precondition)
		}
		if spec.OnSuccess != "" && !spec.OnSuccess.Known() {
			return nil, fmt.Errorf("tool %s: unknown on_success stage %q", spec.ID, spec.OnSuccess)
		}
		r.tools[spec.ID] = spec
		r.order = append(r.order, spec.ID)
	}
	return r, nil
}

// Get returns a tool spec by ID.
func (r *Registry) Get(id string) (ToolSpec, bool) {
	spec, ok := r.tools[id]
	return spec, ok
}

// All returns every spec in catalog order.
func (r *Registry) All() []ToolSpec {
	out := make([]ToolSpec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tools[id])
	}
	return out
}

// Eligible returns the specs whose precondition the given stage satisfies.
func (r *Registry) Eligible(stage domain.Stage) []ToolSpec {
	var out []ToolSpec
	for _, spec := range r.All() {
		if stage.AtLeast(spec.Precondition) {
			out = append(out, spec)
		}
	}
	return out
}

// Relevant returns the specs plausibly relevant at the given stage: every
// eligible action plus those unlocked by the immediately following stage.
// This is the view serialized into the classifier prompt.
func (r *Registry) Relevant(stage domain.Stage) []ToolSpec {
	var out []ToolSpec
	for _, spec := range r.All() {
		if stage.AtLeast(spec.Precondition) || stage.AtLeast(spec.Precondition.Prev()) {
			out = append(out, spec)
		}
	}
	return out
}

// PromptView serializes the relevant specs into the compact listing handed
// to the classifier.
func (r *Registry) PromptView(stage domain.Stage) string {
	var b strings.Builder
	for _, spec := range r.Relevant(stage) {
		gated := ""
		if !stage.AtLeast(spec.Precondition) {
			gated = fmt.Sprintf(" [requires stage %s]", spec.Precondition)
		}
		fmt.Fprintf(&b, "- %s: %s%s\n", spec.ID, spec.Description, gated)
		for _, name := range spec.Args.Names() {
			field := spec.Args[name]
			req := "optional"
			if field.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s): %s\n", name, field.Type.Name(), req, field.Description)
		}
	}
	return b.String()
}
