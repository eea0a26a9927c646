package sandbox

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func decodeResult(t *testing.T, raw string) ExecutionResult {
	t.Helper()
	var res ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(raw), &res))
	return res
}

func TestRunUnit(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		rec := &closeRecorder{}
		code := runUnit(strings.NewReader(`{"code":"print(\"hi\")","max_output_bytes":1024}`), NewResultWriter(rec), zaptest.NewLogger(t))

		assert.Equal(t, workerExitOK, code)
		assert.Equal(t, Succeeded("hi\n"), decodeResult(t, rec.String()))
		assert.Equal(t, 1, rec.closed)
	})

	t.Run("Fault", func(t *testing.T) {
		rec := &closeRecorder{}
		code := runUnit(strings.NewReader(`{"code":"fail(\"boom\")"}`), NewResultWriter(rec), zaptest.NewLogger(t))

		assert.Equal(t, workerExitOK, code)
		res := decodeResult(t, rec.String())
		assert.Equal(t, StatusError, res.Status)
		assert.True(t, strings.HasPrefix(res.Output, "Failure: fail: boom"), res.Output)
	})

	t.Run("BadRequest", func(t *testing.T) {
		rec := &closeRecorder{}
		code := runUnit(strings.NewReader("{"), NewResultWriter(rec), zaptest.NewLogger(t))

		assert.Equal(t, workerExitBadRequest, code)
		res := decodeResult(t, rec.String())
		assert.Equal(t, StatusError, res.Status)
		assert.True(t, strings.HasPrefix(res.Output, "InternalError: bad worker request"), res.Output)
		assert.Equal(t, 1, rec.closed)
	})

	t.Run("ClosedChannel", func(t *testing.T) {
		rec := &closeRecorder{}
		results := NewResultWriter(rec)
		require.NoError(t, results.Close())

		code := runUnit(strings.NewReader(`{"code":"x = 1"}`), results, zaptest.NewLogger(t))
		assert.Equal(t, workerExitWriteFailed, code)
		assert.Empty(t, rec.String())
	})
}
