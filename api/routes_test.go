package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrChuw/scrcpy-manager/models"
	"github.com/MrChuw/scrcpy-manager/service"
)

type fakeController struct {
	mu       sync.Mutex
	lines    []string
	restarts []string
	err      error
}

func (f *fakeController) Snapshot() models.SessionStatus {
	return models.SessionStatus{
		Running:   true,
		Connected: true,
		Address:   "192.168.1.5:5555",
		Options:   []string{"--stay-awake"},
		Windows:   []models.WindowStatus{{Alias: models.MainAlias, PID: 42, Running: true}},
	}
}

func (f *fakeController) Submit(_ context.Context, line string) (models.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	if f.err != nil {
		return models.CommandResult{Command: line}, f.err
	}
	return models.CommandResult{Command: line, Message: "ok " + line}, nil
}

func (f *fakeController) RestartWindow(_ context.Context, alias string) (models.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, alias)
	if alias != models.MainAlias {
		return models.CommandResult{Command: alias}, fmt.Errorf("%w: %s", service.ErrUnknownWindow, alias)
	}
	return models.CommandResult{Command: alias, Message: "Restarted Main"}, nil
}

func (f *fakeController) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

type fakeHistory struct {
	limit int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]models.Event, error) {
	f.limit = limit
	return []models.Event{{ID: 1, Kind: models.EventConnected}}, nil
}

func newTestRouter(ctrl Controller, history HistoryReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(ctrl, history, NewWebSocketHub(zerolog.Nop()), zerolog.Nop())
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	w, resp := doRequest(t, newTestRouter(&fakeController{}, nil), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetSessionAndWindows(t *testing.T) {
	router := newTestRouter(&fakeController{}, nil)

	w, resp := doRequest(t, router, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]any)
	assert.Equal(t, "192.168.1.5:5555", data["address"])
	assert.Equal(t, true, data["connected"])

	w, resp = doRequest(t, router, http.MethodGet, "/api/windows", "")
	require.Equal(t, http.StatusOK, w.Code)
	windows := resp["data"].([]any)
	require.Len(t, windows, 1)
	assert.Equal(t, models.MainAlias, windows[0].(map[string]any)["alias"])
}

func TestPostCommand(t *testing.T) {
	ctrl := &fakeController{}
	router := newTestRouter(ctrl, nil)

	w, resp := doRequest(t, router, http.MethodPost, "/api/commands", `{"command":"reload"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok reload", resp["message"])
	assert.Equal(t, []string{"reload"}, ctrl.submitted())
}

func TestPostCommandErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing command", `{}`, nil, http.StatusBadRequest},
		{"bad json", `{"command":`, nil, http.StatusBadRequest},
		{"unknown", `{"command":"bogus"}`, fmt.Errorf("%w: bogus", service.ErrUnknownCommand), http.StatusBadRequest},
		{"closed", `{"command":"all"}`, service.ErrSessionClosed, http.StatusServiceUnavailable},
		{"reconnect failed", `{"command":"conn"}`, &service.ConnectionError{State: service.StateBootstrapUSB, Err: service.ErrNoDevice}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&fakeController{err: tc.err}, nil)

			w, resp := doRequest(t, router, http.MethodPost, "/api/commands", tc.body)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, false, resp["success"])
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestRestartWindow(t *testing.T) {
	ctrl := &fakeController{}
	router := newTestRouter(ctrl, nil)

	w, _ := doRequest(t, router, http.MethodPost, "/api/windows/Main/restart", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(t, router, http.MethodPost, "/api/windows/Ghost/restart", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{models.MainAlias, "Ghost"}, ctrl.restarts)
}

func TestGetHistory(t *testing.T) {
	history := &fakeHistory{}
	router := newTestRouter(&fakeController{}, history)

	w, resp := doRequest(t, router, http.MethodGet, "/api/history?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, history.limit)
	assert.Len(t, resp["data"], 1)

	w, _ = doRequest(t, router, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.DefaultHistoryLimit, history.limit)

	w, _ = doRequest(t, router, http.MethodGet, "/api/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetHistoryDisabled(t *testing.T) {
	w, resp := doRequest(t, newTestRouter(&fakeController{}, nil), http.MethodGet, "/api/history", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, errHistoryDisabled.Error(), resp["error"])
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/commands", nil)
	w := httptest.NewRecorder()
	newTestRouter(&fakeController{}, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}
