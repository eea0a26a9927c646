package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"
)

const (
	// resultDrainGrace bounds the wait for the channel after the worker exited.
	resultDrainGrace = 2 * time.Second

	// workerWaitDelay bounds the wait for worker stdio after exit.
	workerWaitDelay = time.Second

	// maxWorkerStderr caps the worker diagnostics kept for logging.
	maxWorkerStderr = 64 * 1024

	// resultOverhead leaves room for the JSON envelope and escaping.
	resultOverhead = 64 * 1024
)

// ProcessExecutor implements SandboxExecutor by evaluating every request in
// a freshly spawned worker process.
type ProcessExecutor struct {
	logger     *zap.Logger
	config     *Config
	workerPath string
	workerArgs []string
	workerEnv  []string

	// onSpawn observes each started worker; used by tests.
	onSpawn func(*Process)
}

// ProcessExecutorOption defines a functional option for ProcessExecutor
type ProcessExecutorOption func(*ProcessExecutor)

// WithWorkerCommand sets the binary and arguments that start a worker
func WithWorkerCommand(path string, args ...string) ProcessExecutorOption {
	return func(e *ProcessExecutor) {
		e.workerPath = path
		e.workerArgs = args
	}
}

// WithWorkerEnv appends environment variables to the worker environment
func WithWorkerEnv(env ...string) ProcessExecutorOption {
	return func(e *ProcessExecutor) {
		e.workerEnv = append(e.workerEnv, env...)
	}
}

// NewProcessExecutor creates a ProcessExecutor. By default workers are the
// running executable invoked with the worker subcommand.
func NewProcessExecutor(logger *zap.Logger, config *Config, opts ...ProcessExecutorOption) (*ProcessExecutor, error) {
	executor := &ProcessExecutor{
		logger:     logger,
		config:     config,
		workerArgs: []string{WorkerCommand},
	}

	for _, opt := range opts {
		opt(executor)
	}

	if executor.workerPath == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve worker executable: %w", err)
		}
		executor.workerPath = self
	}

	return executor, nil
}

// Execute evaluates the request in a new worker process. The context is not
// used for cancellation: the configured timeout bounds every execution.
// No live process or open channel remains once Execute returns.
func (e *ProcessExecutor) Execute(_ context.Context, req ExecutionRequest) (result ExecutionResult) {
	logger := e.logger.With(zap.String("execution_id", xid.New().String()))
	start := time.Now()

	defer func() {
		logger.Info("code execution completed",
			zap.String("status", string(result.Status)),
			zap.Int("output_len", len(result.Output)),
			zap.Duration("duration", time.Since(start)))
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("coordinator panic", zap.Any("panic", r), zap.Stack("stack"))
			result = Failed(internalErrorOutput(r))
		}
	}()

	channel, err := OpenResultChannel(int64(e.config.MaxOutputBytes)*6 + resultOverhead)
	if err != nil {
		logger.Error("failed to open result channel", zap.Error(err))
		return Failed(spawnErrorOutput(err))
	}
	defer func() {
		if closeErr := channel.Close(); closeErr != nil {
			logger.Warn("failed to release result channel", zap.Error(closeErr))
		}
	}()

	payload, err := json.Marshal(WorkerRequest{Code: req.Code, MaxOutputBytes: e.config.MaxOutputBytes})
	if err != nil {
		logger.Error("failed to encode worker request", zap.Error(err))
		return Failed(spawnErrorOutput(err))
	}

	stderr := newOutputSink(maxWorkerStderr)

	cmd := exec.Command(e.workerPath, e.workerArgs...) //nolint:gosec // worker binary comes from configuration
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = stderr
	cmd.Stderr = stderr
	cmd.ExtraFiles = []*os.File{channel.WorkerEnd()}
	cmd.Env = append(os.Environ(), e.workerEnv...)
	cmd.WaitDelay = workerWaitDelay

	proc := newProcess(cmd)
	if err := proc.Start(); err != nil {
		logger.Error("failed to spawn worker", zap.String("worker", e.workerPath), zap.Error(err))
		return Failed(spawnErrorOutput(err))
	}
	defer func() {
		if proc.Alive() {
			if killErr := proc.Kill(); killErr != nil {
				logger.Error("failed to terminate worker", zap.Error(killErr))
			}
		}
		if reapErr := proc.Reap(); reapErr != nil {
			logger.Warn("failed to reap worker", zap.Error(reapErr))
		}
	}()

	logger.Debug("worker started", zap.Int("pid", proc.Pid()))
	if e.onSpawn != nil {
		e.onSpawn(proc)
	}

	if err := channel.ReleaseWorkerEnd(); err != nil {
		logger.Warn("failed to release worker end of result channel", zap.Error(err))
	}

	if !e.waitBounded(proc) {
		logger.Warn("code execution timed out, terminating worker",
			zap.Int("pid", proc.Pid()),
			zap.Duration("timeout", e.config.Timeout))
		if err := proc.Kill(); err != nil {
			logger.Error("failed to terminate worker", zap.Error(err))
		}
		if err := proc.Reap(); err != nil {
			logger.Warn("failed to reap worker", zap.Error(err))
		}
		return Failed(TimeoutOutput(e.config.Timeout))
	}

	if err := proc.Reap(); err != nil {
		logger.Warn("failed to reap worker", zap.Error(err))
	}
	if proc.ExitCode() != workerExitOK {
		logger.Warn("worker exited abnormally",
			zap.Int("exit_code", proc.ExitCode()),
			zap.NamedError("wait_error", proc.WaitErr()),
			zap.String("worker_output", stderr.String()))
	}

	res, err := channel.Receive(resultDrainGrace)
	if err != nil {
		if stackOverflowed(stderr.String()) {
			logger.Warn("worker exhausted its stack", zap.Error(err))
			return Failed(truncate(recursionFault().Output(), e.config.MaxOutputBytes))
		}
		logger.Warn("worker produced no result", zap.Error(err))
		return Failed(OutputNoResult)
	}
	return res
}

// waitBounded blocks until the process exits or the timeout elapses. It
// reports false only when the process is still running at the timeout.
func (e *ProcessExecutor) waitBounded(proc *Process) bool {
	timer := time.NewTimer(e.config.Timeout)
	defer timer.Stop()

	select {
	case <-proc.Done():
		return true
	case <-timer.C:
	}

	select {
	case <-proc.Done():
		return true
	default:
		return false
	}
}
