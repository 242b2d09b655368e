package concierge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierlabs/concierge"
	"github.com/atelierlabs/concierge/pkg/adapters/data"
	"github.com/atelierlabs/concierge/pkg/adapters/llm"
	"github.com/atelierlabs/concierge/pkg/domain"
)

func TestFacade_GuidedWorkflow(t *testing.T) {
	loader := data.NewLoader(t.TempDir(), nil)

	svc, err := concierge.NewInProcess(concierge.WithDataLoader(loader))
	require.NoError(t, err)

	ctx := context.Background()
	sessionID := "facade-1"

	// Asking for the risk model before any data hits the workflow gate.
	reply := svc.Router().HandleMessage(ctx, sessionID, "run the risk model")
	assert.Equal(t, domain.ReplyGateFork, reply.Kind)
	assert.Len(t, reply.Options, 2)

	_, err = loader.Put(ctx, sessionID,
		[]string{"region", "population", "income"},
		[][]string{
			{"north", "1000", "52000"},
			{"south", "2500", "31000"},
			{"east", "400", "47000"},
		})
	require.NoError(t, err)

	reply = svc.Router().HandleMessage(ctx, sessionID, "upload the dataset")
	assert.Equal(t, domain.ReplyAnswer, reply.Kind)
	assert.Equal(t, domain.StageDataReady, reply.Stage)

	reply = svc.Router().HandleMessage(ctx, sessionID, "what columns do we have?")
	assert.Equal(t, domain.ReplyAnswer, reply.Kind)
	require.Len(t, reply.Tables, 1)
	assert.Len(t, reply.Tables[0].Rows, 3)

	// Free text carries both slots, so no clarification is needed.
	reply = svc.Router().HandleMessage(ctx, sessionID, "compute zscore indicators for population")
	assert.Equal(t, domain.ReplyAnswer, reply.Kind)
	assert.Equal(t, domain.StageIndicatorsReady, reply.Stage)

	state, err := svc.Store().Load(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageIndicatorsReady, state.Stage)
	assert.NotEmpty(t, state.Transitions)
}

func TestFacade_ModelDrivenRouting(t *testing.T) {
	loader := data.NewLoader(t.TempDir(), nil)
	model := llm.NewMock(
		`{"intent": "run_tool", "requested_action": "upload_data", "confidence": 0.97}`,
		`{"intent": "run_tool", "requested_action": "compute_indicators", "confidence": 0.95}`,
		`{"args": {"column": "population", "method": "minmax"}, "confidence": 0.93}`,
	)

	svc, err := concierge.NewInProcess(
		concierge.WithDataLoader(loader),
		concierge.WithModel(model))
	require.NoError(t, err)

	ctx := context.Background()
	sessionID := "facade-model"

	_, err = loader.Put(ctx, sessionID,
		[]string{"region", "population"},
		[][]string{{"north", "1000"}, {"south", "2500"}})
	require.NoError(t, err)

	reply := svc.Router().HandleMessage(ctx, sessionID, "here is my data")
	assert.Equal(t, domain.StageDataReady, reply.Stage)

	reply = svc.Router().HandleMessage(ctx, sessionID, "normalize population to a 0-1 range")
	assert.Equal(t, domain.ReplyAnswer, reply.Kind)
	assert.Equal(t, domain.StageIndicatorsReady, reply.Stage)
	assert.Equal(t, 3, model.Calls())
}

func TestFacade_ResetReturnsToStart(t *testing.T) {
	svc, err := concierge.NewInProcess()
	require.NoError(t, err)

	ctx := context.Background()
	svc.Router().HandleMessage(ctx, "facade-2", "hello")

	reply := svc.Router().HandleMessage(ctx, "facade-2", "reset")
	assert.Equal(t, domain.StageNoData, reply.Stage)
}

func TestFacade_CatalogExposed(t *testing.T) {
	svc, err := concierge.NewInProcess()
	require.NoError(t, err)

	_, ok := svc.Catalog().Get("compute_indicators")
	assert.True(t, ok)
}
