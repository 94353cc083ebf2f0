package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/datum/internal/logging"
	"github.com/aretw0/datum/pkg/adapters/memory"
	httpadapter "github.com/aretw0/datum/pkg/adapters/http"
	"github.com/aretw0/datum/pkg/bridge"
	"github.com/aretw0/datum/pkg/command"
	"github.com/aretw0/datum/pkg/event"
	"github.com/aretw0/datum/pkg/gateway"
	"github.com/aretw0/datum/pkg/observability"
	"github.com/aretw0/datum/pkg/script"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Host) {
	t.Helper()
	host := memory.NewHost()
	host.SeedType("Walls", `Generic - 8"`)

	fw := command.New(event.NewMemoryStore())
	fw.Register(command.NewCreateWall())

	loader := script.NewHotLoader(gateway.New(host), t.TempDir())
	registry := script.NewRegistry()
	scripts := script.NewBridge(registry, loader, nil)

	reg := prometheus.NewRegistry()
	metrics := observability.New(reg)

	d := bridge.NewDispatcher(host, fw, scripts,
		command.Session{SessionID: "sess-http", UserID: "agent"},
		bridge.WithMetrics(metrics))
	t.Cleanup(d.Close)

	handler := httpadapter.NewHandler(d, registry, loader, reg, logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, host
}

func TestServer_BridgeCommand(t *testing.T) {
	srv, host := newTestServer(t)

	payload := `{
		"type": "command",
		"id": "http-1",
		"commandType": "create_wall",
		"parameters": {
			"start": {"x": 0, "y": 0, "z": 0},
			"end": {"x": 20, "y": 0, "z": 0},
			"height": 9.0,
			"wall_type": "Generic - 8\""
		}
	}`
	resp, err := http.Post(srv.URL+"/bridge", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out bridge.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success, out.Message)
	assert.Equal(t, "http-1", out.ID)

	walls, err := host.ElementsByCategory(context.Background(), "Walls")
	require.NoError(t, err)
	assert.Len(t, walls, 1)
}

func TestServer_BridgeValidationFailure(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := `{
		"type": "command",
		"id": "http-2",
		"commandType": "create_wall",
		"parameters": {
			"start": {"x": 0, "y": 0, "z": 0},
			"end": {"x": 20, "y": 0, "z": 0},
			"height": 7.0,
			"wall_type": "Generic - 8\""
		}
	}`
	resp, err := http.Post(srv.URL+"/bridge", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bridge.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Success)
	assert.Equal(t, bridge.CodeValidationFailed, out.ErrorCode)
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out["status"])
}

func TestServer_ScriptsAndCandidates(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/scripts")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/scripts/candidates?min_executions=0")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/scripts/candidates?min_executions=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_MetricsExposed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
