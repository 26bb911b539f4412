package apperr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// Status maps an error to the HTTP status code reported to clients.
func Status(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidTransition, KindInsufficientBalance, KindInsufficientNotice, KindInvalidState, KindMaxRetriesExceeded:
		return http.StatusUnprocessableEntity
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON renders err as {"error":{"code","message"}}. Server side failures
// are logged and replaced with a generic message.
func WriteJSON(w http.ResponseWriter, logger *logging.Logger, err error) {
	if logger == nil {
		logger = logging.Default()
	}
	status := Status(err)
	detail := errorDetail{Code: CodeOf(err)}

	var appErr *Error
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "code", detail.Code, "error", err)
		detail.Message = http.StatusText(status)
	case errors.As(err, &appErr) && appErr.Message != "":
		detail.Message = appErr.Message
	default:
		detail.Message = http.StatusText(status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}
