package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
)

// WorkerCommand is the subcommand that turns the service binary into an
// isolation worker.
const WorkerCommand = "worker"

// resultFD is the descriptor the result channel arrives on: the first
// entry of exec.Cmd.ExtraFiles.
const resultFD = 3

// workerMaxStack caps the worker's goroutine stacks so that unbounded
// recursion ends the worker quickly instead of consuming the Go default.
const workerMaxStack = 64 << 20

// stackOverflowMarker is what the Go runtime prints when a worker exceeds
// workerMaxStack. The runtime exits without running deferred calls.
const stackOverflowMarker = "fatal error: stack overflow"

// Worker exit codes
const (
	workerExitOK          = 0
	workerExitWriteFailed = 1
	workerExitBadRequest  = 2
)

// WorkerRequest is what the coordinator sends a worker on stdin.
type WorkerRequest struct {
	Code           string `json:"code"`
	MaxOutputBytes int    `json:"max_output_bytes"`
}

// RunWorker is the isolation unit's process entry point. It reads one
// request from stdin, evaluates it, writes exactly one result to the
// result channel and returns the process exit code.
func RunWorker(logger *zap.Logger) int {
	debug.SetMaxStack(workerMaxStack)
	return runUnit(os.Stdin, NewResultWriter(os.NewFile(resultFD, "result-channel")), logger)
}

func runUnit(in io.Reader, results *ResultWriter, logger *zap.Logger) (code int) {
	defer func() {
		if err := results.Close(); err != nil {
			logger.Warn("failed to close result channel", zap.Error(err))
		}
	}()

	var req WorkerRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		logger.Error("failed to decode worker request", zap.Error(err))
		fault := &Fault{Kind: KindInternal, Message: fmt.Sprintf("bad worker request: %v", err), Trace: staticTrace()}
		if writeErr := results.Write(Failed(fault.Output())); writeErr != nil {
			logger.Error("failed to report bad request", zap.Error(writeErr))
		}
		return workerExitBadRequest
	}

	result := safeEvaluate(req, logger)

	if err := results.Write(result); err != nil {
		logger.Error("failed to write result", zap.Error(err))
		return workerExitWriteFailed
	}
	return workerExitOK
}

// safeEvaluate never panics; a panic outside the interpreter still
// becomes an InternalError result.
func safeEvaluate(req WorkerRequest, logger *zap.Logger) (result ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during evaluation", zap.Any("panic", r))
			fault := &Fault{Kind: KindInternal, Message: fmt.Sprint(r), Trace: string(debug.Stack())}
			result = Failed(fault.Output())
		}
	}()
	return evaluateIsolated(req.Code, req.MaxOutputBytes)
}

// stackOverflowed reports whether collected worker output shows the
// runtime aborting on a stack overflow.
func stackOverflowed(workerOutput string) bool {
	return strings.Contains(workerOutput, stackOverflowMarker)
}
