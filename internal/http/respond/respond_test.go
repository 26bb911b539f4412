package respond

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
)

func TestDecode(t *testing.T) {
	var body struct {
		Amount int64 `json:"amount"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 2500}`))
	require.NoError(t, Decode(req, &body))
	assert.EqualValues(t, 2500, body.Amount)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 1, "extra": true}`))
	assert.Equal(t, "invalid_body", apperr.CodeOf(Decode(req, &body)))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.Equal(t, "empty_body", apperr.CodeOf(Decode(req, &body)))
}

func TestActor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := Actor(req)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	want := domain.Actor{ID: uuid.New(), Role: domain.RoleClient}
	req = req.WithContext(domain.WithActor(req.Context(), want))
	got, err := Actor(req)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&offset=-3", nil)
	limit, offset := Page(req, 20, 100)
	assert.Equal(t, 100, limit)
	assert.Equal(t, 0, offset)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	limit, _ = Page(req, 20, 100)
	assert.Equal(t, 20, limit)
}
