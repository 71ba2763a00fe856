package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xde-mcp/sim-sub005/pkg/cmd"
	persistencefile "github.com/xde-mcp/sim-sub005/pkg/persistence/file"
	"github.com/xde-mcp/sim-sub005/pkg/snapshot"
	snapshotfile "github.com/xde-mcp/sim-sub005/pkg/snapshot/file"
	"github.com/xde-mcp/sim-sub005/pkg/trigger"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.Default()
	registry := cmd.NewRegistry(logger)

	api := NewAPI(
		logger,
		registry,
		trigger.NewResolver(registry, logger),
		snapshot.NewStore(snapshotfile.NewRepository(t.TempDir()), logger),
		persistencefile.NewRepository(t.TempDir()),
		nil,
		nil,
	)

	return api.App()
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Simflow API", string(body))
}

func TestAPI_Liveness(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_CORS_Headers(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/workflows/wf-1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAPI_Integration_EditAndExecute(t *testing.T) {
	app := setupTestApp(t)

	state := map[string]any{
		"blocks": map[string]any{
			"a": map[string]any{"id": "a", "type": "start", "name": "Start", "enabled": true},
			"b": map[string]any{"id": "b", "type": "function", "name": "Work", "enabled": true},
		},
		"edges": []map[string]any{
			{"id": "e-a-b", "source": "a", "target": "b"},
		},
	}

	payload, err := json.Marshal(state)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/workflows/wf-1", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/workflows/wf-1/execute", bytes.NewReader([]byte(`{"mode":"manual"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any

	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Equal(t, true, result["success"])
}
