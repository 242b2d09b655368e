package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierlabs/concierge/pkg/adapters/data"
	"github.com/atelierlabs/concierge/pkg/adapters/memory"
	"github.com/atelierlabs/concierge/pkg/domain"
)

type echoConversation struct {
	lastSession string
	lastText    string
}

func (e *echoConversation) HandleMessage(ctx context.Context, sessionID, text string) domain.Reply {
	e.lastSession = sessionID
	e.lastText = text
	return domain.Reply{Kind: domain.ReplyAnswer, Text: "echo: " + text, Stage: domain.StageNoData}
}

func newTestServer(t *testing.T) (*httptest.Server, *echoConversation, *memory.Store) {
	t.Helper()
	conv := &echoConversation{}
	store := memory.NewStore()
	srv, err := NewServer(conv, store,
		WithMemory(store),
		WithDataLoader(data.NewLoader(t.TempDir(), nil)))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, conv, store
}

func TestServer_ValidatesEmbeddedSpec(t *testing.T) {
	_, err := NewServer(&echoConversation{}, memory.NewStore())
	require.NoError(t, err)
}

func TestServer_Health(t *testing.T) {
	ts, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_PostMessage(t *testing.T) {
	ts, conv, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/sessions/s1/messages", "application/json",
		strings.NewReader(`{"text": "hello"}`))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var reply domain.Reply
	require.NoError(t, json.NewDecoder(res.Body).Decode(&reply))
	assert.Equal(t, domain.ReplyAnswer, reply.Kind)
	assert.Equal(t, "echo: hello", reply.Text)
	assert.Equal(t, "s1", conv.lastSession)
}

func TestServer_PostMessage_RejectsBadBody(t *testing.T) {
	ts, _, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/sessions/s1/messages", "application/json",
		strings.NewReader(`{not json`))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestServer_PostMessage_RejectsOversizedText(t *testing.T) {
	ts, _, _ := newTestServer(t)

	big := strings.Repeat("a", 5000)
	res, err := http.Post(ts.URL+"/sessions/s1/messages", "application/json",
		strings.NewReader(`{"text": "`+big+`"}`))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestServer_RejectsBadSessionID(t *testing.T) {
	ts, _, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/sessions/.hidden/messages", "application/json",
		strings.NewReader(`{"text": "hi"}`))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestServer_GetSession(t *testing.T) {
	ts, _, store := newTestServer(t)

	res, err := http.Get(ts.URL + "/sessions/s1")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	state := domain.NewWorkflowState()
	state.Stage = domain.StageDataReady
	require.NoError(t, store.Save(context.Background(), "s1", state, 0))

	res, err = http.Get(ts.URL + "/sessions/s1")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var got domain.WorkflowState
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Equal(t, domain.StageDataReady, got.Stage)
	assert.Equal(t, int64(1), got.Version)
}

func TestServer_DeleteSession(t *testing.T) {
	ts, _, store := newTestServer(t)

	require.NoError(t, store.Save(context.Background(), "s1", domain.NewWorkflowState(), 0))

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/s1", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	_, err = store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestServer_UploadData(t *testing.T) {
	ts, _, _ := newTestServer(t)

	csvBody := "region,population\nnorth,1000\nsouth,2500\n"
	res, err := http.Post(ts.URL+"/sessions/s1/data", "text/csv", strings.NewReader(csvBody))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var ds domain.Dataset
	require.NoError(t, json.NewDecoder(res.Body).Decode(&ds))
	assert.Equal(t, []string{"region", "population"}, ds.Columns)
	assert.False(t, ds.Derived)
}

func TestServer_UploadData_RejectsHeaderOnly(t *testing.T) {
	ts, _, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/sessions/s1/data", "text/csv", strings.NewReader("a,b\n"))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestServer_ServesSpec(t *testing.T) {
	ts, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/openapi.yaml")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "yaml")
}
