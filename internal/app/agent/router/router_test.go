package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auroraagent/internal/config"
	"auroraagent/internal/executor/base"
	"auroraagent/internal/executor/cli"
	"auroraagent/internal/executor/input"
	"auroraagent/internal/executor/manager"
	"auroraagent/internal/pkg/logger"
	"auroraagent/internal/service/monitor"
)

func TestMain(m *testing.M) {
	logger.InitDiscardLogger()
	os.Exit(m.Run())
}

type echoInvoker struct{}

func (echoInvoker) Invoke(ctx context.Context, agent string, payload base.Payload) (*cli.Output, error) {
	return &cli.Output{Stdout: payload.Prompt + "\n"}, nil
}

type apiResponse struct {
	Code    int             `json:"code"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type fixture struct {
	router  *Router
	console *manager.Console
	monitor *monitor.HeartbeatMonitor
	gate    *config.OperatorGate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	console := manager.NewConsole()
	toolA, err := cli.NewAgentExecutor(cli.Options{Name: "toolA", Invoker: echoInvoker{}})
	require.NoError(t, err)
	require.NoError(t, console.Register(toolA))

	gate := config.NewOperatorGate(&config.OperatorAuth{OperatorEnabled: true, Features: config.OperatorFeature{ControlMouseKeyboard: true}})
	in, err := input.NewInputExecutor(input.Options{Driver: &input.NoopDriver{}, Authorizer: gate})
	require.NoError(t, err)
	require.NoError(t, console.Register(in))

	mon := monitor.NewHeartbeatMonitor(monitor.Options{Source: console.Providers})
	console.SetHeartbeatSource(mon)

	require.NoError(t, console.StartAll(context.Background()))
	t.Cleanup(func() { _ = console.StopAll(context.Background()) })

	return &fixture{
		router:  NewRouter(&RouterConfig{}, console),
		console: console,
		monitor: mon,
		gate:    gate,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.GetEngine().ServeHTTP(w, req)

	var resp apiResponse
	if strings.HasPrefix(path, "/api/") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func TestRouter_SubmitAndGetTask(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodPost, "/api/v1/tasks", map[string]interface{}{
		"agent":    "toolA",
		"prompt":   "echo test",
		"metadata": map[string]string{"source": "http"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "success", resp.Status)

	var submitted struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &submitted))
	require.NotEmpty(t, submitted.TaskID)

	var task base.Task
	require.Eventually(t, func() bool {
		w, resp := f.do(t, http.MethodGet, "/api/v1/tasks/"+submitted.TaskID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(resp.Data, &task))
		return task.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, base.TaskStatusCompleted, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, "echo test", strings.TrimSpace(task.Result.Output))

	w, resp = f.do(t, http.MethodGet, "/api/v1/agents/toolA/tasks?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []base.Task
	require.NoError(t, json.Unmarshal(resp.Data, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, submitted.TaskID, tasks[0].ID)
}

func TestRouter_ErrorMapping(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		code   int
	}{
		{"unknown agent on submit", http.MethodPost, "/api/v1/tasks", map[string]interface{}{"agent": "toolZ", "prompt": "hi"}, http.StatusNotFound},
		{"missing agent", http.MethodPost, "/api/v1/tasks", map[string]interface{}{"prompt": "hi"}, http.StatusBadRequest},
		{"empty payload", http.MethodPost, "/api/v1/tasks", map[string]interface{}{"agent": "toolA"}, http.StatusBadRequest},
		{"negative timeout", http.MethodPost, "/api/v1/tasks", map[string]interface{}{"agent": "toolA", "prompt": "hi", "timeout_seconds": -1}, http.StatusBadRequest},
		{"unknown task", http.MethodGet, "/api/v1/tasks/missing", nil, http.StatusNotFound},
		{"unknown agent tasks", http.MethodGet, "/api/v1/agents/toolZ/tasks", nil, http.StatusNotFound},
		{"unknown agent health", http.MethodGet, "/api/v1/agents/toolZ/health", nil, http.StatusNotFound},
		{"heartbeat before first beat", http.MethodGet, "/api/v1/heartbeat", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Equal(t, "failed", resp.Status)
		})
	}
}

func TestRouter_OperatorDisabledIsForbidden(t *testing.T) {
	f := newFixture(t)
	f.gate.Update(&config.OperatorAuth{OperatorEnabled: false})

	w, resp := f.do(t, http.MethodPost, "/api/v1/tasks", map[string]interface{}{
		"agent":  "input",
		"action": "click",
		"params": map[string]interface{}{"x": 1, "y": 2},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, resp.Error, base.ErrOperatorDisabled.Error())

	w, resp = f.do(t, http.MethodGet, "/api/v1/agents/input/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &health))
	assert.Equal(t, false, health["available"])
}

func TestRouter_HealthAndHeartbeat(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodGet, "/api/v1/agents/toolA/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &health))
	assert.Equal(t, "toolA", health["agent"])
	assert.Equal(t, true, health["running"])

	w, resp = f.do(t, http.MethodGet, "/api/v1/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &all))
	assert.Len(t, all, 2)

	f.monitor.Beat(context.Background())
	w, resp = f.do(t, http.MethodGet, "/api/v1/heartbeat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var record monitor.HeartbeatRecord
	require.NoError(t, json.Unmarshal(resp.Data, &record))
	assert.Equal(t, int64(1), record.Sequence)
	assert.Len(t, record.Executors, 2)

	f.monitor.RecordRecovery(base.RecoveryEvent{Component: "input", EventType: base.RecoveryRestarting, RestartCount: 1})
	w, resp = f.do(t, http.MethodGet, "/api/v1/recovery-events?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []base.RecoveryEvent
	require.NoError(t, json.Unmarshal(resp.Data, &events))
	require.Len(t, events, 1)
	assert.Equal(t, base.RecoveryRestarting, events[0].EventType)
}

func TestRouter_ServiceRoutes(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/health", "/ping", "/version"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		f.router.GetEngine().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.router.GetEngine().ServeHTTP(w, req)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 2, body["executors"])
}
