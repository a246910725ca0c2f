package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhive/internal/engine"
	"taskhive/internal/protocol"
	"taskhive/internal/server/app"
	"taskhive/internal/session"
	"taskhive/internal/workspace"
)

// echoEngine answers every decompose with a notice followed by the end event,
// so chat streams finish deterministically.
type echoEngine struct {
	engine.NopEngine
}

func (echoEngine) Decompose(ctx context.Context, sess *session.Session, prompt string) error {
	if err := sess.PutAction(protocol.MustNew(protocol.KindNotice,
		protocol.NoticePayload{Data: "planning: " + prompt})); err != nil {
		return err
	}
	return sess.PutAction(protocol.MustNew(protocol.KindEnd, protocol.EndPayload{Result: "planned"}))
}

type testEnv struct {
	router   http.Handler
	registry *session.Registry
	service  *app.ChatService
}

func newTestEnv(t *testing.T, eng engine.Engine, idleTimeout time.Duration) testEnv {
	t.Helper()
	registry := session.NewRegistry(nil)
	service := app.NewChatService(app.Deps{
		Registry: registry,
		Engine:   eng,
		Layout:   workspace.NewLayout(t.TempDir()),
	})
	handler := NewHandler(service, idleTimeout, nil, nil)
	router := NewRouter(handler, nil, nil, RouterConfig{})
	return testEnv{router: router, registry: registry, service: service}
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestChatStreamEndsWithEngineEnd(t *testing.T) {
	env := newTestEnv(t, echoEngine{}, time.Minute)

	rec := doJSON(t, env.router, http.MethodPost, "/chat",
		`{"task_id":"t1","question":"summarize the report"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `"step":"notice"`)
	assert.Contains(t, body, "planning: summarize the report")
	assert.Contains(t, body, `"step":"end"`)

	// A naturally finished stream keeps the session for the next turn.
	assert.NotNil(t, env.registry.GetIfExists("t1"))
}

func TestChatStreamTimeoutTearsSessionDown(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, 150*time.Millisecond)

	rec := doJSON(t, env.router, http.MethodPost, "/chat",
		`{"task_id":"t1","question":"never answered"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"step":"timeout"`)
	assert.Nil(t, env.registry.GetIfExists("t1"))
}

func TestChatRejectsBadRequest(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, time.Minute)

	rec := doJSON(t, env.router, http.MethodPost, "/chat", `{"task_id":"t1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env.router, http.MethodPost, "/chat", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImproveUnknownSessionIs404(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, time.Minute)

	rec := doJSON(t, env.router, http.MethodPost, "/chat/ghost", `{"data":"refine"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImproveQueuesOnLiveSession(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, time.Minute)
	sess, err := env.registry.Create("t1")
	require.NoError(t, err)

	rec := doJSON(t, env.router, http.MethodPost, "/chat/t1", `{"data":"tighten the summary"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, sess.QueueLen())
}

func TestSupplementConflictBeforeDone(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, time.Minute)
	sess, err := env.registry.Create("t1")
	require.NoError(t, err)
	sess.SetStatus(session.StatusProcessing)

	rec := doJSON(t, env.router, http.MethodPut, "/chat/t1", `{"question":"one more thing"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	sess.SetStatus(session.StatusDone)
	rec = doJSON(t, env.router, http.MethodPut, "/chat/t1", `{"question":"one more thing"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStopAnswers204EvenWhenGone(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, time.Minute)
	_, err := env.registry.Create("t1")
	require.NoError(t, err)

	rec := doJSON(t, env.router, http.MethodDelete, "/chat/t1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, env.registry.GetIfExists("t1"))

	rec = doJSON(t, env.router, http.MethodDelete, "/chat/t1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHumanReplyEndpoint(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, time.Minute)
	sess, err := env.registry.Create("t1")
	require.NoError(t, err)

	rec := doJSON(t, env.router, http.MethodPost, "/chat/t1/human-reply",
		`{"agent":"developer","data":"use the staging bucket"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	reply, err := sess.GetHumanInput(context.Background(), "developer")
	require.NoError(t, err)
	assert.Equal(t, "use the staging bucket", reply)
}

func TestTaskControlEndpoints(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, time.Minute)
	sess, err := env.registry.Create("t1")
	require.NoError(t, err)

	rec := doJSON(t, env.router, http.MethodPost, "/task/t1/start", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, env.router, http.MethodPut, "/task/t1",
		`{"task":[{"id":"1","content":"revised step"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env.router, http.MethodPut, "/task/t1/take-control", `{"action":"pause"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env.router, http.MethodPut, "/task/t1/take-control", `{"action":"detonate"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env.router, http.MethodPost, "/task/t1/add-agent",
		`{"name":"reviewer","description":"reviews diffs"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 4, sess.QueueLen())
}

func TestPlanEditEndpoints(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, time.Minute)
	sess, err := env.registry.Create("p1")
	require.NoError(t, err)

	rec := doJSON(t, env.router, http.MethodPost, "/chat/p1/add-task",
		`{"content":"verify totals"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, env.router, http.MethodDelete, "/chat/p1/remove-task/sub-3", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env.router, http.MethodPost, "/chat/p1/skip-task", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 3, sess.QueueLen())
}

func TestStopAllEndpoint(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, time.Minute)
	for _, id := range []string{"a", "b"} {
		_, err := env.registry.Create(id)
		require.NoError(t, err)
	}

	rec := doJSON(t, env.router, http.MethodDelete, "/task/stop-all", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["stopped"])
	assert.Equal(t, 0, env.registry.Len())
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, time.Minute)
	_, err := env.registry.Create("t1")
	require.NoError(t, err)

	rec := doJSON(t, env.router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(1), resp["sessions"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, engine.NopEngine{}, time.Minute)

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
