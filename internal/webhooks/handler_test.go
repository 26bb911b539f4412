package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

const testSecret = "whsec_test"

type putCall struct {
	bucket string
	key    string
	body   []byte
}

type mockS3 struct {
	puts []putCall
}

func (m *mockS3) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.puts = append(m.puts, putCall{bucket: *input.Bucket, key: *input.Key, body: body})
	return &s3.PutObjectOutput{}, nil
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	valid := Sign(testSecret, payload, testNow)

	tests := []struct {
		name    string
		secret  string
		payload []byte
		header  string
		now     time.Time
		code    string
	}{
		{"valid", testSecret, payload, valid, testNow, ""},
		{"within tolerance", testSecret, payload, valid, testNow.Add(4 * time.Minute), ""},
		{"verification disabled", "", payload, "", testNow, ""},
		{"missing header", testSecret, payload, "", testNow, "invalid_signature"},
		{"tampered payload", testSecret, []byte(`{"id":"evt_2"}`), valid, testNow, "invalid_signature"},
		{"wrong secret", "whsec_other", payload, valid, testNow, "invalid_signature"},
		{"stale", testSecret, payload, valid, testNow.Add(6 * time.Minute), "stale_signature"},
		{"bad timestamp", testSecret, payload, "t=abc,v1=00", testNow, "invalid_signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.secret, tt.payload, tt.header, tt.now)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperr.ErrForbidden)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}

func newTestRouter(f fixture, archiver Archiver) http.Handler {
	h := NewHandler(f.ingestor, testSecret, logging.NewWithWriter(io.Discard, "error")).
		WithClock(func() time.Time { return testNow })
	if archiver != nil {
		h.WithArchiver(archiver)
	}
	r := chi.NewRouter()
	h.RegisterPublic(r)
	h.RegisterAdmin(r, func(next http.Handler) http.Handler { return next })
	return r
}

func deliver(r http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payments/webhooks/gateway", bytes.NewReader(payload))
	req.Header.Set(SignatureHeader, signature)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerReceive(t *testing.T) {
	f := newFixture(t)
	storage := &mockS3{}
	r := newTestRouter(f, NewS3Archiver(storage, "audit-bucket", nil))
	payload := intentEvent("evt_http", TypePaymentSucceeded, "pi_http", 8625).Payload

	rec := deliver(r, payload, Sign(testSecret, payload, testNow))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "completed", body["status"])

	rec = deliver(r, payload, Sign(testSecret, payload, testNow))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.applier.count())

	require.Len(t, storage.puts, 2)
	assert.Equal(t, "audit-bucket", storage.puts[0].bucket)
	assert.Equal(t, "webhooks/v1/by-date/2026/03/01/evt_http.json", storage.puts[0].key)
	assert.JSONEq(t, string(payload), string(storage.puts[0].body))

	rec = deliver(r, payload, "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	garbage := []byte(`{"type":"payment_intent.succeeded"}`)
	rec = deliver(r, garbage, Sign(testSecret, garbage, testNow))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAcknowledgesFailedDispatch(t *testing.T) {
	f := newFixture(t)
	f.applier.failures = 1
	r := newTestRouter(f, nil)
	payload := intentEvent("evt_fail", TypePaymentSucceeded, "pi_fail", 100).Payload

	rec := deliver(r, payload, Sign(testSecret, payload, testNow))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/webhooks/events?status=failed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "evt_fail")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/webhooks/events/evt_fail/retry", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/webhooks/events/evt_fail/retry", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/webhooks/events?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestS3ArchiverDisabled(t *testing.T) {
	var a *S3Archiver
	assert.False(t, a.Enabled())
	assert.NoError(t, NewS3Archiver(nil, "", nil).Archive(context.Background(), Event{ID: "evt"}, testNow))
}
