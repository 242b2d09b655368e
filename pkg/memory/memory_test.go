package memory_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/atelierlabs/concierge/pkg/adapters/memory"
	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/memory"
)

func TestManager_AppendAndContext(t *testing.T) {
	m := memory.NewManager(memstore.NewStore())
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "s1", "upload my data", "Upload registered."))

	rec, err := m.Context(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rec.Turns, 2)
	assert.Equal(t, domain.RoleUser, rec.Turns[0].Role)
	assert.Equal(t, domain.RoleAssistant, rec.Turns[1].Role)
	assert.Equal(t, 2, rec.TurnCount)
}

func TestManager_WindowIsBounded(t *testing.T) {
	m := memory.NewManager(memstore.NewStore(), memory.WithWindow(4), memory.WithSummaryEvery(2))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Append(ctx, "s1", fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i)))
	}

	rec, err := m.Context(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, rec.Turns, 4)
	assert.Equal(t, 20, rec.TurnCount)
	// The most recent turns survive.
	assert.Equal(t, "answer 9", rec.Turns[3].Text)
}

func TestManager_SummaryFoldsDiscardedTail(t *testing.T) {
	m := memory.NewManager(memstore.NewStore(), memory.WithWindow(2), memory.WithSummaryEvery(2))
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "s1", "upload census data", "done"))
	require.NoError(t, m.Append(ctx, "s1", "compute indicators", "computed"))

	rec, err := m.Context(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, rec.Summary, "upload census data")
}

type canned struct{ out string }

func (c canned) Complete(ctx context.Context, system, prompt string) (string, error) {
	return c.out, nil
}

func TestManager_ModelSummary(t *testing.T) {
	m := memory.NewManager(memstore.NewStore(),
		memory.WithWindow(2), memory.WithSummaryEvery(2),
		memory.WithModel(canned{out: "The user is working through the upload workflow."}))
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "s1", "upload census data", "done"))
	require.NoError(t, m.Append(ctx, "s1", "now indicators", "computed"))

	rec, err := m.Context(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "The user is working through the upload workflow.", rec.Summary)
}

func TestManager_Clear(t *testing.T) {
	m := memory.NewManager(memstore.NewStore())
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "s1", "hello", "hi"))
	require.NoError(t, m.Clear(ctx, "s1"))

	rec, err := m.Context(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, rec.Turns)
}
