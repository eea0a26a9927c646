package httpapi

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/isdmx/evalbox/sandbox"
)

// OutputNotJSON is reported for bodies that are not a JSON object.
const OutputNotJSON = "Request must be JSON"

const maxRequestBytes = 1 << 20

// ExecuteHandler serves POST /api/execute.
type ExecuteHandler struct {
	exec   sandbox.SandboxExecutor
	logger *zap.Logger
}

// NewExecuteHandler creates an ExecuteHandler.
func NewExecuteHandler(exec sandbox.SandboxExecutor, logger *zap.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:   exec,
		logger: logger,
	}
}

// HandleExecute decodes the request, runs it and writes the result.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeJSON(w, http.StatusBadRequest, sandbox.Failed(OutputNotJSON))
		return
	}

	var req sandbox.ExecutionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.logger.Warn("invalid execution request body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, sandbox.Failed(OutputNotJSON))
		return
	}

	if rejected, ok := sandbox.Validate(req); !ok {
		writeJSON(w, http.StatusBadRequest, rejected)
		return
	}

	writeJSON(w, http.StatusOK, h.exec.Execute(r.Context(), req))
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json" ||
		(strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json"))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// headers are already sent, so an encoding failure cannot be reported
	_ = json.NewEncoder(w).Encode(data)
}
