package router_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/atelierlabs/concierge/pkg/adapters/memory"
	"github.com/atelierlabs/concierge/pkg/classifier"
	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/ports"
	"github.com/atelierlabs/concierge/pkg/registry"
	"github.com/atelierlabs/concierge/pkg/resolver"
	"github.com/atelierlabs/concierge/pkg/router"
)

type fakeInvoker struct {
	calls  []domain.ToolCall
	result domain.ToolResult
	err    error
}

func (f *fakeInvoker) Invoke(ctx context.Context, call domain.ToolCall, data *domain.Dataset) (domain.ToolResult, error) {
	f.calls = append(f.calls, call)
	return f.result, f.err
}

type fakeAnalyzer struct {
	tables []domain.Table
	err    error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, request string, data *domain.Dataset) ([]domain.Table, error) {
	return f.tables, f.err
}

type fakeLoader struct {
	ds *domain.Dataset
}

func (f *fakeLoader) Load(ctx context.Context, sessionID string) (*domain.Dataset, error) {
	if f.ds == nil {
		return nil, domain.ErrSessionNotFound
	}
	return f.ds, nil
}

func (f *fakeLoader) Put(ctx context.Context, sessionID string, columns []string, rows [][]string) (*domain.Dataset, error) {
	f.ds = &domain.Dataset{Name: "upload", Columns: columns}
	return f.ds, nil
}

func (f *fakeLoader) SaveDerived(ctx context.Context, sessionID, name string, columns []string, rows [][]string) (*domain.Dataset, error) {
	f.ds = &domain.Dataset{Name: name, Columns: columns}
	return f.ds, nil
}

func (f *fakeLoader) Delete(ctx context.Context, sessionID string) error {
	f.ds = nil
	return nil
}

// conflictStore fails the next n Save calls with a version conflict.
type conflictStore struct {
	ports.StateStore
	remaining int
}

func (s *conflictStore) Save(ctx context.Context, sessionID string, state *domain.WorkflowState, expectedVersion int64) error {
	if s.remaining > 0 {
		s.remaining--
		return domain.ErrVersionConflict
	}
	return s.StateStore.Save(ctx, sessionID, state, expectedVersion)
}

// corruptStore fails the next Load with a corruption error.
type corruptStore struct {
	ports.StateStore
	corrupt bool
}

func (s *corruptStore) Load(ctx context.Context, sessionID string) (*domain.WorkflowState, error) {
	if s.corrupt {
		s.corrupt = false
		return nil, domain.ErrStateCorrupt
	}
	return s.StateStore.Load(ctx, sessionID)
}

func newRouter(store ports.StateStore, opts ...router.Option) *router.Router {
	reg := registry.Default()
	return router.New(store, reg, classifier.New(nil, reg), resolver.New(nil), opts...)
}

func seed(t *testing.T, store ports.StateStore, sessionID string, stage domain.Stage) {
	t.Helper()
	state := domain.NewWorkflowState()
	if stage != domain.StageNoData {
		require.True(t, state.Advance(stage, "seed"))
	}
	require.NoError(t, store.Save(context.Background(), sessionID, state, 0))
}

func TestHandleMessage_GateForkLeavesVersionUnchanged(t *testing.T) {
	store := memstore.NewStore()
	inv := &fakeInvoker{result: domain.ToolResult{Result: "done"}}
	r := newRouter(store, router.WithInvoker(inv))

	reply := r.HandleMessage(context.Background(), "s1", "run the risk model")

	assert.Equal(t, domain.ReplyGateFork, reply.Kind)
	assert.Len(t, reply.Options, 2)
	assert.Equal(t, domain.StageNoData, reply.Stage)
	// Nothing executed and nothing written.
	assert.Empty(t, inv.calls)
	_, err := store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestHandleMessage_GateNeverExecutesBelowPrecondition(t *testing.T) {
	store := memstore.NewStore()
	seed(t, store, "s1", domain.StageDataReady)
	inv := &fakeInvoker{result: domain.ToolResult{Result: "done"}}
	r := newRouter(store, router.WithInvoker(inv))

	// risk scoring needs indicators_ready; data_ready is not enough.
	reply := r.HandleMessage(context.Background(), "s1", "run the risk model")

	assert.Equal(t, domain.ReplyGateFork, reply.Kind)
	assert.Empty(t, inv.calls)

	state, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageDataReady, state.Stage)
	assert.Equal(t, int64(1), state.Version)
}

func TestHandleMessage_UploadAdvancesStage(t *testing.T) {
	store := memstore.NewStore()
	inv := &fakeInvoker{result: domain.ToolResult{Result: "dataset registered"}}
	r := newRouter(store, router.WithInvoker(inv))

	reply := r.HandleMessage(context.Background(), "s1", "please upload my csv")

	assert.Equal(t, domain.ReplyAnswer, reply.Kind)
	assert.Equal(t, domain.StageDataReady, reply.Stage)
	require.Len(t, inv.calls, 1)
	assert.Equal(t, "upload_data", inv.calls[0].Tool)

	state, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageDataReady, state.Stage)
	assert.Equal(t, int64(1), state.Version)
}

func TestHandleMessage_ToolFailureDoesNotAdvance(t *testing.T) {
	store := memstore.NewStore()
	inv := &fakeInvoker{result: domain.ToolResult{IsError: true, Error: "bad file"}}
	r := newRouter(store, router.WithInvoker(inv))

	reply := r.HandleMessage(context.Background(), "s1", "upload my csv")

	assert.Equal(t, domain.ReplyNotice, reply.Kind)
	_, err := store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestHandleMessage_ConflictRetriesOnce(t *testing.T) {
	inner := memstore.NewStore()
	seed(t, inner, "s1", domain.StageIndicatorsReady)
	store := &conflictStore{StateStore: inner, remaining: 1}
	inv := &fakeInvoker{result: domain.ToolResult{Result: "scored"}}
	r := newRouter(store, router.WithInvoker(inv))

	reply := r.HandleMessage(context.Background(), "s1", "run the risk model")

	assert.Equal(t, domain.ReplyAnswer, reply.Kind)
	state, err := inner.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageRiskScored, state.Stage)
	assert.Equal(t, int64(2), state.Version)
}

func TestHandleMessage_DoubleConflictSurfacesNotice(t *testing.T) {
	inner := memstore.NewStore()
	seed(t, inner, "s1", domain.StageIndicatorsReady)
	store := &conflictStore{StateStore: inner, remaining: 2}
	inv := &fakeInvoker{result: domain.ToolResult{Result: "scored"}}
	r := newRouter(store, router.WithInvoker(inv))

	reply := r.HandleMessage(context.Background(), "s1", "run the risk model")

	assert.Equal(t, domain.ReplyNotice, reply.Kind)
	state, err := inner.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageIndicatorsReady, state.Stage)
}

func TestHandleMessage_CorruptStateResetsWithNotice(t *testing.T) {
	inner := memstore.NewStore()
	seed(t, inner, "s1", domain.StageRiskScored)
	store := &corruptStore{StateStore: inner, corrupt: true}
	r := newRouter(store)

	reply := r.HandleMessage(context.Background(), "s1", "show me a summary")

	assert.Equal(t, domain.ReplyNotice, reply.Kind)
	assert.Contains(t, reply.Text, "reset")

	state, err := inner.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageNoData, state.Stage)
}

func TestHandleMessage_ClarificationIsBounded(t *testing.T) {
	store := memstore.NewStore()
	seed(t, store, "s1", domain.StageDataReady)
	inv := &fakeInvoker{result: domain.ToolResult{Result: "done"}}
	r := newRouter(store, router.WithInvoker(inv))

	// No columns are known, so the resolver cannot fill the column slot.
	first := r.HandleMessage(context.Background(), "s1", "compute an indicator for me")
	require.Equal(t, domain.ReplyClarification, first.Kind)

	state, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, state.Pending)

	// One failed answer re-asks once; the next failure asks for a rephrase
	// instead of looping.
	second := r.HandleMessage(context.Background(), "s1", "whatever you think is best")
	require.Equal(t, domain.ReplyClarification, second.Kind)

	third := r.HandleMessage(context.Background(), "s1", "just pick something")
	assert.Equal(t, domain.ReplyNotice, third.Kind)

	state, err = store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, state.Pending)
	assert.Empty(t, inv.calls)
}

func TestHandleMessage_ClarificationAnswerExecutes(t *testing.T) {
	store := memstore.NewStore()
	seed(t, store, "s1", domain.StageDataReady)
	inv := &fakeInvoker{result: domain.ToolResult{Result: "indicator computed"}}
	loader := &fakeLoader{ds: &domain.Dataset{Name: "upload", Columns: []string{"population", "income"}}}
	r := newRouter(store, router.WithInvoker(inv), router.WithDataLoader(loader))

	// "compute" matches the tool but names neither column nor method, so
	// the first open required slot is asked about.
	first := r.HandleMessage(context.Background(), "s1", "compute something for me")
	require.Equal(t, domain.ReplyClarification, first.Kind)
	assert.Equal(t, []string{"population", "income"}, first.Options)

	second := r.HandleMessage(context.Background(), "s1", "the second one")
	// column answered by ordinal; method is still open.
	require.Equal(t, domain.ReplyClarification, second.Kind)
	assert.Equal(t, []string{"per_capita", "zscore", "minmax"}, second.Options)

	third := r.HandleMessage(context.Background(), "s1", "zscore")
	require.Equal(t, domain.ReplyAnswer, third.Kind)
	require.Len(t, inv.calls, 1)
	assert.Equal(t, "compute_indicators", inv.calls[0].Tool)
	assert.Equal(t, "income", inv.calls[0].Args["column"])
	assert.Equal(t, "zscore", inv.calls[0].Args["method"])

	state, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, state.Pending)
	assert.Equal(t, domain.StageIndicatorsReady, state.Stage)
}

func TestHandleMessage_AnalyzeRunsSandbox(t *testing.T) {
	store := memstore.NewStore()
	seed(t, store, "s1", domain.StageDataReady)
	loader := &fakeLoader{ds: &domain.Dataset{Name: "upload", Columns: []string{"region", "cases"}}}
	an := &fakeAnalyzer{tables: []domain.Table{{Name: "result", Columns: []string{"region"}, Rows: [][]any{{"north"}}}}}
	r := newRouter(store, router.WithDataLoader(loader), router.WithAnalyzer(an))

	reply := r.HandleMessage(context.Background(), "s1", "analyze the spread across regions")

	assert.Equal(t, domain.ReplyAnswer, reply.Kind)
	require.Len(t, reply.Tables, 1)
	assert.Equal(t, "result", reply.Tables[0].Name)
}

func TestHandleMessage_AnalyzeGatedBeforeData(t *testing.T) {
	store := memstore.NewStore()
	an := &fakeAnalyzer{}
	r := newRouter(store, router.WithAnalyzer(an))

	reply := r.HandleMessage(context.Background(), "s1", "analyze my numbers")

	assert.Equal(t, domain.ReplyGateFork, reply.Kind)
}

func TestHandleMessage_AnalyzeTimeoutSurfacesNotice(t *testing.T) {
	store := memstore.NewStore()
	seed(t, store, "s1", domain.StageDataReady)
	loader := &fakeLoader{ds: &domain.Dataset{Name: "upload", Columns: []string{"a"}}}
	an := &fakeAnalyzer{err: domain.ErrExecTimeout}
	r := newRouter(store, router.WithDataLoader(loader), router.WithAnalyzer(an))

	reply := r.HandleMessage(context.Background(), "s1", "analyze everything")

	assert.Equal(t, domain.ReplyNotice, reply.Kind)
	assert.Contains(t, reply.Text, "too long")
}

func TestHandleMessage_ResetReturnsToStart(t *testing.T) {
	store := memstore.NewStore()
	seed(t, store, "s1", domain.StageRiskScored)
	r := newRouter(store)

	reply := r.HandleMessage(context.Background(), "s1", "let's reset and start over")

	assert.Equal(t, domain.ReplyNotice, reply.Kind)
	assert.Equal(t, domain.StageNoData, reply.Stage)

	state, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageNoData, state.Stage)
	// The audit trail survives the reset.
	assert.NotEmpty(t, state.Transitions)
}

func TestHandleMessage_ConflictRetryKeepsAuditEntry(t *testing.T) {
	inner := memstore.NewStore()
	seed(t, inner, "s1", domain.StageNoData)
	store := &conflictStore{StateStore: inner, remaining: 1}
	r := newRouter(store)

	// A reset at no_data changes neither stage nor pending; its audit
	// entry alone distinguishes it from the concurrent writer's state
	// and must survive the retry.
	reply := r.HandleMessage(context.Background(), "s1", "let's reset and start over")

	assert.Equal(t, domain.ReplyNotice, reply.Kind)
	state, err := inner.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.NotEmpty(t, state.Transitions)
	last := state.Transitions[len(state.Transitions)-1]
	assert.Equal(t, "user requested reset", last.Reason)
	assert.Equal(t, domain.StageNoData, last.To)
	assert.Equal(t, int64(2), state.Version)
}

func TestHandleMessage_SmallTalkWritesNothing(t *testing.T) {
	store := memstore.NewStore()
	r := newRouter(store)

	reply := r.HandleMessage(context.Background(), "s1", "hello there")

	assert.Equal(t, domain.ReplyAnswer, reply.Kind)
	_, err := store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestHandleMessage_RejectsOversizedInput(t *testing.T) {
	store := memstore.NewStore()
	r := newRouter(store)

	big := make([]byte, router.DefaultMaxInputSize+1)
	for i := range big {
		big[i] = 'a'
	}
	reply := r.HandleMessage(context.Background(), "s1", string(big))

	assert.Equal(t, domain.ReplyNotice, reply.Kind)
}
