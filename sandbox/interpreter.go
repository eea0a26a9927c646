package sandbox

import (
	"bytes"
	"fmt"
	"io"
	"runtime/debug"
	"unicode/utf8"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

const (
	snippetFilename = "snippet.star"
	truncatedMarker = "\n[output truncated]"
)

// fileOptions enables the dialect features Python snippets commonly rely on.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// inlineFileOptions rejects recursive calls. Without a worker process the
// only bound on call depth is the host's own stack.
var inlineFileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"json":   starlarkjson.Module,
		"math":   starlarkmath.Module,
		"time":   starlarktime.Module,
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
}

// evaluation is one execution context: a thread and the globals the
// snippet defines. It is never reused.
type evaluation struct {
	thread  *starlark.Thread
	opts    *syntax.FileOptions
	globals starlark.StringDict
}

func newEvaluation(out io.Writer, opts *syntax.FileOptions) *evaluation {
	return &evaluation{
		opts: opts,
		thread: &starlark.Thread{
			Name: "snippet",
			Print: func(_ *starlark.Thread, msg string) {
				_, _ = fmt.Fprintln(out, msg)
			},
		},
	}
}

// run evaluates code and discards the execution context afterwards.
// The returned error, if any, is a *Fault.
func (e *evaluation) run(code string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Fault{Kind: KindInternal, Message: fmt.Sprint(r), Trace: string(debug.Stack())}
		}
		for name := range e.globals {
			delete(e.globals, name)
		}
		e.globals = nil
	}()

	globals, execErr := starlark.ExecFileOptions(e.opts, e.thread, snippetFilename, code, predeclared())
	e.globals = globals
	if execErr != nil {
		return classify(execErr)
	}
	return nil
}

func (e *evaluation) cancel(reason string) {
	e.thread.Cancel(reason)
}

// Evaluate runs code against a brand-new execution context, writing
// everything the snippet prints to out. It returns a *Fault when the
// snippet fails.
func Evaluate(code string, out io.Writer) error {
	return newEvaluation(out, fileOptions).run(code)
}

// evaluateIsolated runs code and folds the outcome into a result.
func evaluateIsolated(code string, maxOutput int) ExecutionResult {
	sink := newOutputSink(maxOutput)
	defer sink.Close()

	return resultFrom(sink, newEvaluation(sink, fileOptions).run(code), maxOutput)
}

func resultFrom(sink *outputSink, err error, maxOutput int) ExecutionResult {
	if err != nil {
		return Failed(truncate(classify(err).Output(), maxOutput))
	}
	return Succeeded(sink.String())
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:runeBoundary([]byte(s), limit)] + truncatedMarker
}

// runeBoundary backs n off so that p[:n] does not end inside a
// multi-byte character.
func runeBoundary(p []byte, n int) int {
	for n > 0 && n < len(p) && !utf8.RuneStart(p[n]) {
		n--
	}
	return n
}

// outputSink is the private in-memory buffer a snippet prints into.
// Writes past the limit are dropped.
type outputSink struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newOutputSink(limit int) *outputSink {
	return &outputSink{limit: limit}
}

func (s *outputSink) Write(p []byte) (int, error) {
	if s.truncated {
		return len(p), nil
	}
	if s.limit > 0 {
		remaining := s.limit - s.buf.Len()
		if remaining < len(p) {
			s.truncated = true
			if remaining > 0 {
				s.buf.Write(p[:runeBoundary(p, remaining)])
			}
			return len(p), nil
		}
	}
	return s.buf.Write(p)
}

func (s *outputSink) String() string {
	if s.truncated {
		return s.buf.String() + truncatedMarker
	}
	return s.buf.String()
}

// Close releases the buffer.
func (s *outputSink) Close() error {
	s.buf.Reset()
	return nil
}
