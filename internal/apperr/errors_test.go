package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("bookings: create: %w", Conflict("booking_conflict", "slot already taken"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, &Error{Kind: KindConflict, Code: "booking_conflict"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindConflict, Code: "capacity_exceeded"}))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "booking_conflict", CodeOf(err))
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal", CodeOf(err))
	assert.Equal(t, http.StatusInternalServerError, Status(err))
}

func TestErrorMessageFormatting(t *testing.T) {
	err := NotFound("booking_not_found", "booking %s not found", "b-1")
	assert.Equal(t, "booking_not_found: booking b-1 not found", err.Error())

	gw := Gateway("intent_create_failed", errors.New("timeout"))
	assert.Contains(t, gw.Error(), "timeout")
	assert.ErrorIs(t, gw, ErrGateway)
}

func TestStatusMapping(t *testing.T) {
	cases := map[*Error]int{
		NotFound("x", "x"):                 http.StatusNotFound,
		Conflict("x", "x"):                 http.StatusConflict,
		InvalidTransition("x", "x"):        http.StatusUnprocessableEntity,
		Validation("x", "x"):               http.StatusBadRequest,
		InsufficientBalance("x", "x"):      http.StatusUnprocessableEntity,
		InsufficientNotice("x", "x"):       http.StatusUnprocessableEntity,
		Forbidden("x", "x"):                http.StatusForbidden,
		InvalidState("x", "x"):             http.StatusUnprocessableEntity,
		MaxRetriesExceeded("x", "x"):       http.StatusUnprocessableEntity,
		LedgerInvariantViolation("x", "x"): http.StatusInternalServerError,
		Gateway("x", nil):                  http.StatusBadGateway,
	}
	for err, want := range cases {
		assert.Equal(t, want, Status(err), "kind %s", err.Kind)
	}
}

func TestWriteJSONHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, nil, LedgerInvariantViolation("negative_net_balance", "net would be -5"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "negative_net_balance", body.Error.Code)
	assert.NotContains(t, body.Error.Message, "-5")
}

func TestWriteJSONClientError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, nil, Validation("invalid_rating", "rating must be between 1 and 5"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_rating", body.Error.Code)
	assert.Equal(t, "rating must be between 1 and 5", body.Error.Message)
}
