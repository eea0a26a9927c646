package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Status is the outcome class of one execution
type Status string

// Execution statuses. They are the only two values a caller ever sees.
const (
	StatusSuccess Status = "Success"
	StatusError   Status = "Error"
)

// Outputs synthesized outside the isolation unit
const (
	OutputNoCode   = "No code provided"
	OutputNoResult = "No result produced"
)

// ExecutionRequest represents the parameters for code execution
type ExecutionRequest struct {
	Code string `json:"code"`
}

// ExecutionResult represents the result of code execution
type ExecutionResult struct {
	Status Status `json:"status"`
	Output string `json:"output"`
}

// SandboxExecutor defines the interface for sandbox execution.
// Execute always returns exactly one well-formed result; faults of any
// kind are reported through the result, never returned or raised.
type SandboxExecutor interface {
	Execute(ctx context.Context, req ExecutionRequest) ExecutionResult
}

// Config holds the settings shared by every executor
type Config struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

// Succeeded builds a Success result
func Succeeded(output string) ExecutionResult {
	return ExecutionResult{Status: StatusSuccess, Output: output}
}

// Failed builds an Error result
func Failed(output string) ExecutionResult {
	return ExecutionResult{Status: StatusError, Output: output}
}

// Validate rejects requests that must never reach an executor.
func Validate(req ExecutionRequest) (ExecutionResult, bool) {
	if req.Code == "" {
		return Failed(OutputNoCode), false
	}
	return ExecutionResult{}, true
}

// TimeoutOutput is the output reported when a snippet outlives its timeout.
func TimeoutOutput(timeout time.Duration) string {
	return fmt.Sprintf("Timeout Error: Code execution exceeded %s seconds", formatSeconds(timeout))
}

func spawnErrorOutput(err error) string {
	return "Spawn Error: " + err.Error()
}

func internalErrorOutput(v any) string {
	return fmt.Sprintf("Internal Error: %v", v)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func (s Status) valid() bool {
	return s == StatusSuccess || s == StatusError
}
