// Package respond holds the JSON helpers shared by the HTTP handlers.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

const maxBodyBytes = 1 << 20

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func Error(w http.ResponseWriter, logger *logging.Logger, err error) {
	apperr.WriteJSON(w, logger, err)
}

// Decode reads a JSON body into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("empty_body", "request body is required")
		}
		return apperr.Validation("invalid_body", "invalid request body: %v", err)
	}
	return nil
}

// Actor returns the authenticated caller.
func Actor(r *http.Request) (domain.Actor, error) {
	actor, ok := domain.ActorFromContext(r.Context())
	if !ok {
		return domain.Actor{}, apperr.Forbidden("unauthenticated", "authentication required")
	}
	return actor, nil
}

// Page reads limit/offset query parameters with a default and a ceiling.
func Page(r *http.Request, def, max int) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
