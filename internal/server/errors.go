package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/errors"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Status    string                 `json:"status"`
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// writeError maps err to an HTTP response. Errors that are not
// *errors.PipelineError are reported as internal errors.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var perr *errors.PipelineError
	if !stderrors.As(err, &perr) {
		perr = errors.InternalError("unexpected error", err)
	}

	statusCode := perr.HTTPStatus()
	if statusCode >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get(HeaderRequestID)),
			zap.Error(err))
	}

	writeJSON(w, statusCode, ErrorResponse{
		Status:    "error",
		ErrorCode: perr.Code.String(),
		Message:   perr.Error(),
		Details:   perr.Details,
		RequestID: r.Header.Get(HeaderRequestID),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
