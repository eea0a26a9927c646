package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/evalbox/config"
	"github.com/isdmx/evalbox/sandbox"
)

// MockSandboxExecutor implements sandbox.SandboxExecutor for testing
type MockSandboxExecutor struct {
	result sandbox.ExecutionResult
	calls  []sandbox.ExecutionRequest
}

func (m *MockSandboxExecutor) Execute(_ context.Context, req sandbox.ExecutionRequest) sandbox.ExecutionResult {
	m.calls = append(m.calls, req)
	return m.result
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Transport: config.TransportStdio, HTTPPort: 8080},
		Sandbox: config.SandboxConfig{Backend: config.BackendProcess, TimeoutSec: 30, MaxOutputKB: 1024},
		Logging: config.LoggingConfig{Mode: "production", Level: "info"},
	}
}

func callTool(t *testing.T, s *MCPServer, args map[string]any) (*mcp.CallToolResult, sandbox.ExecutionResult) {
	t.Helper()

	request := mcp.CallToolRequest{}
	request.Params.Name = ExecuteCodeTool
	request.Params.Arguments = args

	res, err := s.handleExecuteCode(context.Background(), request)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var result sandbox.ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(text.Text), &result))
	return res, result
}

func TestNewMCPServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	mockExecutor := &MockSandboxExecutor{}

	server, err := New(cfg, logger, mockExecutor)
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.Equal(t, logger, server.logger)
	assert.Equal(t, mockExecutor, server.sandboxExec)
	assert.NotNil(t, server.GetMCPServer())
}

func TestHandleExecuteCode(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{result: sandbox.Succeeded("hi\n")}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		res, result := callTool(t, server, map[string]any{"code": `print("hi")`})

		assert.False(t, res.IsError)
		assert.Equal(t, sandbox.Succeeded("hi\n"), result)
		require.Len(t, mockExecutor.calls, 1)
		assert.Equal(t, `print("hi")`, mockExecutor.calls[0].Code)
	})

	t.Run("SnippetError", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{result: sandbox.Failed("Timeout Error: Code execution exceeded 30 seconds")}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		res, result := callTool(t, server, map[string]any{"code": "while True:\n    pass"})

		assert.True(t, res.IsError)
		assert.Equal(t, mockExecutor.result, result)
	})

	t.Run("MissingCode", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		for _, args := range []map[string]any{{}, {"code": ""}} {
			res, result := callTool(t, server, args)
			assert.True(t, res.IsError)
			assert.Equal(t, sandbox.Failed("No code provided"), result)
		}
		assert.Empty(t, mockExecutor.calls)
	})
}
