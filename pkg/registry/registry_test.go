package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierlabs/concierge/pkg/domain"
)

func TestDefault_CatalogIntegrity(t *testing.T) {
	r := Default()

	for _, spec := range r.All() {
		assert.NotEmpty(t, spec.Description, "tool %s has no description", spec.ID)
		assert.True(t, spec.Precondition.Known(), "tool %s has unknown precondition", spec.ID)
		if spec.OnSuccess != "" {
			assert.True(t, spec.Precondition.Before(spec.OnSuccess),
				"tool %s: on_success must advance past the precondition", spec.ID)
		}
	}

	risk, ok := r.Get("run_risk_model")
	require.True(t, ok)
	assert.Equal(t, domain.StageIndicatorsReady, risk.Precondition)
	assert.Equal(t, domain.StageRiskScored, risk.OnSuccess)

	analyze, ok := r.Get("analyze_data")
	require.True(t, ok)
	assert.True(t, analyze.Sandboxed)
}

func TestRegistry_Eligible(t *testing.T) {
	r := Default()

	fresh := toolIDs(r.Eligible(domain.StageNoData))
	assert.Equal(t, []string{"upload_data"}, fresh)

	scored := toolIDs(r.Eligible(domain.StageRiskScored))
	assert.Contains(t, scored, "plan_distribution")
	assert.Contains(t, scored, "analyze_data")
}

func TestRegistry_RelevantIncludesNextStage(t *testing.T) {
	r := Default()

	// At data_ready the classifier should also see the risk model, which
	// unlocks at the next stage, but not distribution planning.
	relevant := toolIDs(r.Relevant(domain.StageDataReady))
	assert.Contains(t, relevant, "run_risk_model")
	assert.NotContains(t, relevant, "plan_distribution")
}

func TestRegistry_PromptViewMarksGates(t *testing.T) {
	r := Default()
	view := r.PromptView(domain.StageDataReady)
	assert.Contains(t, view, "compute_indicators")
	assert.Contains(t, view, "[requires stage indicators_ready]")
}

func TestNew_RejectsDuplicates(t *testing.T) {
	_, err := New(
		ToolSpec{ID: "a", Precondition: domain.StageNoData},
		ToolSpec{ID: "a", Precondition: domain.StageNoData},
	)
	assert.Error(t, err)
}

func TestLoad_YAMLCatalog(t *testing.T) {
	catalog := `
tools:
  - id: custom_tool
    description: A custom action.
    precondition: data_ready
    on_success: indicators_ready
    keywords: [custom]
    args:
      - name: column
        type: string
        required: true
      - name: method
        enum: [mean, median]
        required: true
      - name: threshold
        min: 0
        max: 1
        default: 0.5
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o644))

	r, err := Load(path)
	require.NoError(t, err)

	spec, ok := r.Get("custom_tool")
	require.True(t, ok)
	assert.Equal(t, domain.StageDataReady, spec.Precondition)
	assert.Equal(t, domain.StageIndicatorsReady, spec.OnSuccess)

	values, ok := spec.Args.Enum("method")
	require.True(t, ok)
	assert.Equal(t, []string{"mean", "median"}, values)

	err = spec.Args.Validate(map[string]any{"column": "pop", "method": "mean", "threshold": 2.0})
	assert.Error(t, err)
}

func toolIDs(specs []ToolSpec) []string {
	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		ids = append(ids, spec.ID)
	}
	return ids
}
