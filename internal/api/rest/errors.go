package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/kubilitics/kubilitics-knative/internal/k8s"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/logger"
	"github.com/kubilitics/kubilitics-knative/internal/service"
	"github.com/kubilitics/kubilitics-knative/internal/sink"
)

// APIError is the body of every error response.
type APIError struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeCircuitBreaker   = "CIRCUIT_BREAKER_OPEN"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
)

func respondErrorWithCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{
		Error:     message,
		Code:      code,
		Message:   message,
		RequestID: logger.FromContext(r.Context()),
	})
}

// respondServiceError maps service, sink and cluster errors to a status and code.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	respondErrorWithCode(w, r, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, sink.ErrMissingSource),
		errors.Is(err, sink.ErrMissingTarget),
		errors.Is(err, sink.ErrSameResource),
		errors.Is(err, sink.ErrMissingKafkaConnectionInfo),
		errors.Is(err, service.ErrInvalidReference),
		errors.Is(err, service.ErrUnknownKind),
		errors.Is(err, service.ErrUnknownDomain):
		return http.StatusBadRequest, ErrCodeValidationFailed
	case errors.Is(err, k8s.ErrCircuitOpen):
		return http.StatusServiceUnavailable, ErrCodeCircuitBreaker
	case apierrors.IsNotFound(err):
		return http.StatusNotFound, ErrCodeNotFound
	case apierrors.IsForbidden(err):
		return http.StatusForbidden, ErrCodeForbidden
	case apierrors.IsConflict(err):
		return http.StatusConflict, ErrCodeConflict
	case apierrors.IsTimeout(err), apierrors.IsServerTimeout(err):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}
