package types

import (
	"errors"
	"net/http"

	"github.com/iac-studio/envforge/internal/tagging"
	appErr "github.com/iac-studio/envforge/pkg/errors"
)

// StatusFor maps an error to its HTTP status. Resources owned by another
// tenant are reported as missing.
func StatusFor(err error) int {
	if errors.Is(err, tagging.ErrNotOwned) {
		return http.StatusNotFound
	}
	switch appErr.CodeOf(err) {
	case appErr.CodeInvalid:
		return http.StatusBadRequest
	case appErr.CodeNotFound:
		return http.StatusNotFound
	case appErr.CodeConflict, appErr.CodeAlreadyExists, appErr.CodeFailedPrecondition:
		return http.StatusConflict
	case appErr.CodeUnauthorized:
		return http.StatusUnauthorized
	case appErr.CodeForbidden:
		return http.StatusForbidden
	case appErr.CodeUnavailable, appErr.CodeNotReady:
		return http.StatusServiceUnavailable
	case appErr.CodeDeadline:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	if errors.Is(err, tagging.ErrNotOwned) {
		return &APIError{Code: string(appErr.CodeNotFound), Message: "resource not found"}
	}
	var e *appErr.AppError
	if errors.As(err, &e) {
		out := &APIError{Code: string(e.Code), Message: e.Message}
		if e.Err != nil && e.Code != appErr.CodeInternal {
			out.Details = e.Err.Error()
		}
		return out
	}
	return &APIError{Code: string(appErr.CodeUnknown), Message: err.Error()}
}
