// Package sandbox provides request-scoped code execution.
//
// The sandbox package evaluates Starlark snippets (a Python dialect) and
// reports their captured output or fault. The ProcessExecutor spawns one
// worker process per request, hands it a one-shot result channel, bounds it
// with a wall-clock timeout and kills and reaps it on every exit path. The
// InlineExecutor evaluates inside the host process (for development).
//
// This is not a security boundary: there are no syscall, memory, CPU,
// network or filesystem restrictions. Isolation means a separate process,
// an explicit output sink and a bounded lifetime.
//
// Usage:
//
//	executor, err := sandbox.NewExecutor(logger, cfg)
//	result := executor.Execute(ctx, sandbox.ExecutionRequest{
//	    Code: `print("Hello, World!")`,
//	})
//
// The binary hosting the ProcessExecutor must dispatch the worker
// subcommand to RunWorker:
//
//	if len(os.Args) > 1 && os.Args[1] == sandbox.WorkerCommand {
//	    os.Exit(sandbox.RunWorker(logger))
//	}
package sandbox
