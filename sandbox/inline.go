package sandbox

import (
	"context"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"
)

// inlineCancelGrace bounds the wait for a cancelled evaluation to unwind.
const inlineCancelGrace = 5 * time.Second

// InlineExecutor implements SandboxExecutor by evaluating inside the host
// process (for development only). Each request still gets a fresh
// execution context, but there is no process boundary: the timeout is
// enforced by cancelling the interpreter thread, and recursive calls are
// rejected since nothing would survive a stack overflow.
type InlineExecutor struct {
	logger *zap.Logger
	config *Config

	// onRelease observes each output sink once it has been closed.
	onRelease func(*outputSink)
}

// NewInlineExecutor creates a new InlineExecutor
func NewInlineExecutor(logger *zap.Logger, config *Config) *InlineExecutor {
	return &InlineExecutor{
		logger: logger,
		config: config,
	}
}

// Execute evaluates the request in a goroutine bounded by the timeout.
func (e *InlineExecutor) Execute(_ context.Context, req ExecutionRequest) ExecutionResult {
	logger := e.logger.With(zap.String("execution_id", xid.New().String()))

	sink := newOutputSink(e.config.MaxOutputBytes)
	ev := newEvaluation(sink, inlineFileOptions)

	// the goroutine owns the sink; it is released once evaluation stops
	done := make(chan ExecutionResult, 1)
	go func() {
		res := resultFrom(sink, ev.run(req.Code), e.config.MaxOutputBytes)
		_ = sink.Close()
		if e.onRelease != nil {
			e.onRelease(sink)
		}
		done <- res
	}()

	timer := time.NewTimer(e.config.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res
	case <-timer.C:
	}

	logger.Warn("inline execution timed out, cancelling", zap.Duration("timeout", e.config.Timeout))
	ev.cancel("timeout")

	grace := time.NewTimer(inlineCancelGrace)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
		logger.Error("cancelled evaluation did not stop", zap.Duration("grace", inlineCancelGrace))
	}

	return Failed(TimeoutOutput(e.config.Timeout))
}
