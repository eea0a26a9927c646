package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/isdmx/evalbox/config"
	"github.com/isdmx/evalbox/httpapi"
	"github.com/isdmx/evalbox/logger"
	"github.com/isdmx/evalbox/mcpserver"
	"github.com/isdmx/evalbox/sandbox"
)

// workerEnv makes the re-executed test binary behave like `evalbox worker`.
const workerEnv = "EVALBOX_INTEGRATION_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		os.Exit(sandbox.RunWorker(zap.NewNop()))
	}
	os.Exit(m.Run())
}

// setup loads the configuration the way the server does, with the test
// binary standing in for the evalbox executable.
func setup(t *testing.T, timeoutSec string) (*config.Config, *zap.Logger, sandbox.SandboxExecutor) {
	t.Helper()

	self, err := os.Executable()
	require.NoError(t, err)

	t.Chdir(t.TempDir())
	t.Setenv(workerEnv, "1")
	t.Setenv("EVALBOX_SANDBOX_WORKER_PATH", self)
	t.Setenv("EXECUTION_TIMEOUT", timeoutSec)
	t.Setenv("EVALBOX_LOGGING_MODE", "development")

	cfg, err := config.New()
	require.NoError(t, err)
	require.Equal(t, self, cfg.Sandbox.WorkerPath)

	log, err := logger.NewFromConfig(cfg)
	require.NoError(t, err)

	executor, err := sandbox.NewExecutor(log, cfg)
	require.NoError(t, err)
	return cfg, log, executor
}

func postExecute(t *testing.T, url, body string) (int, sandbox.ExecutionResult) {
	t.Helper()

	resp, err := http.Post(url+"/api/execute", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var res sandbox.ExecutionResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return resp.StatusCode, res
}

func TestIntegrationRESTRoundTrip(t *testing.T) {
	cfg, log, executor := setup(t, "2")
	srv := httptest.NewServer(httpapi.New(cfg, log, executor).Handler())
	defer srv.Close()

	t.Run("Success", func(t *testing.T) {
		status, res := postExecute(t, srv.URL, `{"code":"print(\"hi\")"}`)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, sandbox.Succeeded("hi\n"), res)
	})

	t.Run("StateDoesNotLeak", func(t *testing.T) {
		_, first := postExecute(t, srv.URL, `{"code":"x = 5"}`)
		assert.Equal(t, sandbox.Succeeded(""), first)

		_, second := postExecute(t, srv.URL, `{"code":"print(x)"}`)
		assert.Equal(t, sandbox.StatusError, second.Status)
		assert.Contains(t, second.Output, "NameError")
	})

	t.Run("Fault", func(t *testing.T) {
		status, res := postExecute(t, srv.URL, `{"code":"1 // 0"}`)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, sandbox.StatusError, res.Status)
		assert.Contains(t, res.Output, "ZeroDivisionError")
		assert.Contains(t, res.Output, "Traceback")
	})

	t.Run("Timeout", func(t *testing.T) {
		start := time.Now()
		status, res := postExecute(t, srv.URL, `{"code":"while True:\n    pass\n"}`)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, sandbox.Failed("Timeout Error: Code execution exceeded 2 seconds"), res)
		assert.Less(t, time.Since(start), 2*time.Second+5*time.Second)
	})

	t.Run("NoCode", func(t *testing.T) {
		status, res := postExecute(t, srv.URL, `{}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, sandbox.Failed("No code provided"), res)
	})
}

func TestIntegrationMCPToolCall(t *testing.T) {
	cfg, log, executor := setup(t, "5")

	server, err := mcpserver.New(cfg, log, executor)
	require.NoError(t, err)

	msg := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"execute_code","arguments":{"code":"print(1 + 1)"}}}`
	reply := server.GetMCPServer().HandleMessage(context.Background(), json.RawMessage(msg))

	resp, ok := reply.(mcp.JSONRPCResponse)
	require.True(t, ok, "unexpected reply %#v", reply)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))

	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"status":"Success","output":"2\n"}`, result.Content[0].Text)
}
