package classifier_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atelierlabs/concierge/pkg/classifier"
	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/registry"
)

type scriptedModel struct {
	out string
	err error
}

func (m scriptedModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	return m.out, m.err
}

func TestClassify_ModelDecision(t *testing.T) {
	model := scriptedModel{out: `{
		"intent": "run_tool",
		"requested_action": "run_risk_model",
		"entities": {"model": "weighted"},
		"confidence": 0.86,
		"required_gates": ["indicators_ready"]
	}`}
	c := classifier.New(model, registry.Default())

	d := c.Classify(context.Background(), "score the regions please", nil, domain.StageIndicatorsReady)

	assert.Equal(t, domain.IntentRunTool, d.Intent)
	assert.Equal(t, "run_risk_model", d.RequestedTool)
	assert.Equal(t, 0.86, d.Confidence)
	assert.Equal(t, []domain.Stage{domain.StageIndicatorsReady}, d.RequiredGates)
	assert.False(t, d.FallbackUsed)
}

func TestClassify_StripsCodeFences(t *testing.T) {
	model := scriptedModel{out: "```json\n{\"intent\": \"small_talk\", \"confidence\": 0.9}\n```"}
	c := classifier.New(model, registry.Default())

	d := c.Classify(context.Background(), "hello there", nil, domain.StageNoData)
	assert.Equal(t, domain.IntentSmallTalk, d.Intent)
	assert.False(t, d.FallbackUsed)
}

func TestClassify_MalformedOutputFallsBack(t *testing.T) {
	model := scriptedModel{out: "I think the user wants to upload data."}
	c := classifier.New(model, registry.Default())

	d := c.Classify(context.Background(), "please upload my csv", nil, domain.StageNoData)

	assert.True(t, d.FallbackUsed)
	assert.Equal(t, "upload_data", d.RequestedTool)
}

func TestClassify_UnknownToolFallsBack(t *testing.T) {
	model := scriptedModel{out: `{"intent": "run_tool", "requested_action": "launch_rockets", "confidence": 0.99}`}
	c := classifier.New(model, registry.Default())

	d := c.Classify(context.Background(), "analyze the data", nil, domain.StageDataReady)
	assert.True(t, d.FallbackUsed)
}

func TestClassify_ModelErrorFallsBack(t *testing.T) {
	model := scriptedModel{err: errors.New("upstream unavailable")}
	c := classifier.New(model, registry.Default())

	d := c.Classify(context.Background(), "compute the indicators", nil, domain.StageDataReady)
	assert.True(t, d.FallbackUsed)
	assert.Equal(t, "compute_indicators", d.RequestedTool)
}

func TestClassify_DisabledFlagSkipsModel(t *testing.T) {
	// The model would panic the test if called.
	model := scriptedModel{out: `{"intent": "reset", "confidence": 1}`}
	c := classifier.New(model, registry.Default(), classifier.WithDisabled(true))

	d := c.Classify(context.Background(), "show me a summary", nil, domain.StageDataReady)
	assert.True(t, d.FallbackUsed)
	assert.Equal(t, "show_summary", d.RequestedTool)
}

func TestClassify_ConfidenceClamped(t *testing.T) {
	model := scriptedModel{out: `{"intent": "help", "confidence": 3.2}`}
	c := classifier.New(model, registry.Default())

	d := c.Classify(context.Background(), "help", nil, domain.StageNoData)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestFallback_NeverInventsActions(t *testing.T) {
	c := classifier.New(nil, registry.Default())

	d := c.Classify(context.Background(), "quux frobnicate", nil, domain.StageNoData)
	assert.True(t, d.FallbackUsed)
	assert.Equal(t, domain.IntentHelp, d.Intent)
	assert.Empty(t, d.RequestedTool)
}

func TestFallback_SandboxedKeywordMapsToAnalyze(t *testing.T) {
	c := classifier.New(nil, registry.Default())

	d := c.Classify(context.Background(), "explore correlation with income", nil, domain.StageDataReady)
	assert.Equal(t, domain.IntentAnalyze, d.Intent)
	assert.Equal(t, "analyze_data", d.RequestedTool)
}

func TestFallback_Reset(t *testing.T) {
	c := classifier.New(nil, registry.Default())

	d := c.Classify(context.Background(), "let's start over", nil, domain.StageRiskScored)
	assert.Equal(t, domain.IntentReset, d.Intent)
}
