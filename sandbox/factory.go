package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/evalbox/config"
)

// NewExecutor creates an appropriate sandbox executor based on the configuration
func NewExecutor(logger *zap.Logger, cfg *config.Config) (SandboxExecutor, error) {
	executorConfig := &Config{
		Timeout:        cfg.GetTimeout(),
		MaxOutputBytes: cfg.MaxOutputBytes(),
	}

	switch cfg.Sandbox.Backend {
	case config.BackendProcess:
		var opts []ProcessExecutorOption
		if cfg.Sandbox.WorkerPath != "" {
			opts = append(opts, WithWorkerCommand(cfg.Sandbox.WorkerPath, WorkerCommand))
		}
		return NewProcessExecutor(logger, executorConfig, opts...)
	case config.BackendInline:
		if !cfg.Sandbox.EnableInlineBackend {
			return nil, fmt.Errorf("inline backend is disabled")
		}
		return NewInlineExecutor(logger, executorConfig), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
