package sandbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	// ErrResultAlreadyWritten is returned on a second write to a result channel.
	ErrResultAlreadyWritten = errors.New("result already written")

	// ErrNoResult indicates the worker ended without a usable result.
	ErrNoResult = errors.New("no result produced")

	// ErrResultConsumed is returned on a second read of a result channel.
	ErrResultConsumed = errors.New("result already consumed")
)

// ResultWriter is the worker side of the result channel. It accepts one
// result and refuses any other.
type ResultWriter struct {
	mu      sync.Mutex
	w       io.WriteCloser
	written bool
	closed  bool
}

// NewResultWriter wraps the write end of a result channel.
func NewResultWriter(w io.WriteCloser) *ResultWriter {
	return &ResultWriter{w: w}
}

// Write encodes res onto the channel.
func (rw *ResultWriter) Write(res ExecutionResult) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.written {
		return ErrResultAlreadyWritten
	}
	if rw.closed {
		return os.ErrClosed
	}
	rw.written = true

	if err := json.NewEncoder(rw.w).Encode(res); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// Close releases the write end. It is safe to call more than once.
func (rw *ResultWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.closed {
		return nil
	}
	rw.closed = true
	return rw.w.Close()
}

// ResultChannel is the coordinator side of the one-shot handoff between a
// worker process and its coordinator. It is an OS pipe whose write end is
// inherited by the worker. The read end is drained concurrently from the
// moment the channel opens, so a large result never blocks the worker.
type ResultChannel struct {
	r     *os.File
	w     *os.File
	limit int64

	done     chan struct{}
	data     []byte
	readErr  error
	consumed bool

	mu        sync.Mutex
	closeOnce sync.Once
}

// OpenResultChannel creates a fresh channel accepting up to limit bytes.
func OpenResultChannel(limit int64) (*ResultChannel, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create result pipe: %w", err)
	}

	c := &ResultChannel{
		r:     r,
		w:     w,
		limit: limit,
		done:  make(chan struct{}),
	}
	go c.drain()
	return c, nil
}

func (c *ResultChannel) drain() {
	defer close(c.done)

	data, err := io.ReadAll(io.LimitReader(c.r, c.limit+1))
	if err == nil && int64(len(data)) > c.limit {
		err = fmt.Errorf("result exceeds %d bytes", c.limit)
		_, _ = io.Copy(io.Discard, c.r)
	}
	c.data, c.readErr = data, err
}

// WorkerEnd returns the write end to hand to the worker process.
func (c *ResultChannel) WorkerEnd() *os.File {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w
}

// ReleaseWorkerEnd closes the coordinator's copy of the write end. Once the
// worker exits, the drain then sees end of file.
func (c *ResultChannel) ReleaseWorkerEnd() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.w == nil {
		return nil
	}
	err := c.w.Close()
	c.w = nil
	return err
}

// Receive waits up to grace for the drain to finish and decodes the result.
// It returns ErrNoResult when nothing usable was written.
func (c *ResultChannel) Receive(grace time.Duration) (ExecutionResult, error) {
	c.mu.Lock()
	if c.consumed {
		c.mu.Unlock()
		return ExecutionResult{}, ErrResultConsumed
	}
	c.consumed = true
	c.mu.Unlock()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		return ExecutionResult{}, fmt.Errorf("%w: channel not drained within %s", ErrNoResult, grace)
	}

	if c.readErr != nil {
		return ExecutionResult{}, fmt.Errorf("%w: %v", ErrNoResult, c.readErr)
	}
	if len(bytes.TrimSpace(c.data)) == 0 {
		return ExecutionResult{}, ErrNoResult
	}

	var res ExecutionResult
	if err := json.Unmarshal(c.data, &res); err != nil {
		return ExecutionResult{}, fmt.Errorf("%w: %v", ErrNoResult, err)
	}
	if !res.Status.valid() {
		return ExecutionResult{}, fmt.Errorf("%w: unknown status %q", ErrNoResult, res.Status)
	}
	return res, nil
}

// Close drains and releases both ends of the channel. It is safe to call
// more than once and on every exit path.
func (c *ResultChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = errors.Join(c.ReleaseWorkerEnd(), c.r.Close())
		<-c.done
		c.data = nil
	})
	return err
}
