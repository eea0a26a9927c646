package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Fault kinds reported in the first line of an Error output
const (
	KindSyntax       = "SyntaxError"
	KindName         = "NameError"
	KindZeroDivision = "ZeroDivisionError"
	KindType         = "TypeError"
	KindIndex        = "IndexError"
	KindKey          = "KeyError"
	KindAttribute    = "AttributeError"
	KindValue        = "ValueError"
	KindRecursion    = "RecursionError"
	KindFailure      = "Failure"
	KindCancelled    = "CancelledError"
	KindEval         = "EvalError"
	KindInternal     = "InternalError"
)

const (
	traceHeaderStatic  = "Traceback (most recent call last):"
	staticTraceLineFmt = "  %s: %s"
)

// Fault is a runtime fault raised while evaluating a snippet.
type Fault struct {
	Kind    string
	Message string
	Trace   string
}

func (f *Fault) Error() string {
	return f.Kind + ": " + f.Message
}

// Output renders the fault the way it is reported to callers.
func (f *Fault) Output() string {
	return f.Kind + ": " + f.Message + "\n" + f.Trace
}

// classify turns an interpreter error into a Fault.
func classify(err error) *Fault {
	if err == nil {
		return nil
	}

	var fault *Fault
	if errors.As(err, &fault) {
		return fault
	}

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return &Fault{
			Kind:    kindOf(evalErr.Msg),
			Message: evalErr.Msg,
			Trace:   evalErr.Backtrace(),
		}
	}

	var syntaxErr syntax.Error
	if errors.As(err, &syntaxErr) {
		return &Fault{
			Kind:    KindSyntax,
			Message: syntaxErr.Msg,
			Trace:   staticTrace(fmt.Sprintf(staticTraceLineFmt, syntaxErr.Pos, syntaxErr.Msg)),
		}
	}

	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) && len(resolveErrs) > 0 {
		first := resolveErrs[0]
		kind := KindSyntax
		if strings.HasPrefix(first.Msg, "undefined:") {
			kind = KindName
		}
		lines := make([]string, 0, len(resolveErrs))
		for _, e := range resolveErrs {
			lines = append(lines, fmt.Sprintf(staticTraceLineFmt, e.Pos, e.Msg))
		}
		return &Fault{
			Kind:    kind,
			Message: first.Msg,
			Trace:   staticTrace(lines...),
		}
	}

	return &Fault{Kind: KindEval, Message: err.Error(), Trace: staticTrace()}
}

// recursionFault reports a snippet that recursed until the worker ran out
// of stack. The interpreter frames are lost with the worker, so the trace
// only names the limit.
func recursionFault() *Fault {
	return &Fault{
		Kind:    KindRecursion,
		Message: "maximum recursion depth exceeded",
		Trace:   staticTrace(fmt.Sprintf(staticTraceLineFmt, snippetFilename, fmt.Sprintf("call stack exceeded %d MiB", workerMaxStack>>20))),
	}
}

func staticTrace(lines ...string) string {
	return strings.Join(append([]string{traceHeaderStatic}, lines...), "\n")
}

// kindOf maps an interpreter message onto a fault kind.
func kindOf(msg string) string {
	switch {
	case strings.Contains(msg, "computation cancelled"):
		return KindCancelled
	case strings.HasPrefix(msg, "fail: "):
		return KindFailure
	case strings.Contains(msg, "called recursively"):
		return KindRecursion
	case strings.Contains(msg, "division by zero"), strings.Contains(msg, "modulo by zero"):
		return KindZeroDivision
	case strings.Contains(msg, "referenced before assignment"), strings.HasPrefix(msg, "undefined:"):
		return KindName
	case strings.Contains(msg, "out of range"):
		return KindIndex
	case strings.HasPrefix(msg, "key ") && strings.Contains(msg, " not in "):
		return KindKey
	case strings.Contains(msg, "has no ."):
		return KindAttribute
	case strings.Contains(msg, "unknown binary op"),
		strings.Contains(msg, "unknown unary op"),
		strings.Contains(msg, "non-function"),
		strings.Contains(msg, "unhashable"),
		strings.Contains(msg, "not iterable"),
		strings.Contains(msg, "want "):
		return KindType
	case strings.Contains(msg, "invalid"):
		return KindValue
	default:
		return KindEval
	}
}
