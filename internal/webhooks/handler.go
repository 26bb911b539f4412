package webhooks

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/http/respond"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

const maxPayloadBytes = 1 << 20

// Handler receives signed gateway deliveries and exposes the admin views.
type Handler struct {
	ingestor *Ingestor
	secret   string
	archiver Archiver
	logger   *logging.Logger
	now      func() time.Time
}

func NewHandler(ingestor *Ingestor, secret string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{ingestor: ingestor, secret: secret, logger: logger, now: time.Now}
}

func (h *Handler) WithArchiver(a Archiver) *Handler {
	h.archiver = a
	return h
}

func (h *Handler) WithClock(now func() time.Time) *Handler {
	if now != nil {
		h.now = now
	}
	return h
}

// RegisterPublic mounts the gateway callback, which authenticates by signature.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/payments/webhooks/gateway", h.Receive)
}

// RegisterAdmin mounts the operator routes behind adminOnly.
func (h *Handler) RegisterAdmin(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Route("/payments/webhooks/events", func(r chi.Router) {
		r.Use(adminOnly)
		r.Get("/", h.List)
		r.Post("/{eventID}/retry", h.Retry)
	})
}

// Receive handles POST /payments/webhooks/gateway. It answers 200 once the
// event is recorded, even when dispatch failed and the event awaits retry.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		respond.Error(w, h.logger, apperr.Validation("invalid_body", "could not read webhook body"))
		return
	}
	now := h.now()
	if err := VerifySignature(h.secret, payload, r.Header.Get(SignatureHeader), now); err != nil {
		h.logger.Warn("rejected webhook signature", "error", err, "remote_addr", r.RemoteAddr)
		respond.Error(w, h.logger, err)
		return
	}
	evt, err := ParseEvent(payload)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if h.archiver != nil {
		if err := h.archiver.Archive(r.Context(), evt, now); err != nil {
			h.logger.Warn("webhook archive failed", "event_id", evt.ID, "error", err)
		}
	}
	recorded, err := h.ingestor.Ingest(r.Context(), evt)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"received": true,
		"eventId":  recorded.EventID,
		"status":   recorded.Status,
	})
}

// List handles GET /payments/webhooks/events?status=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var status *domain.WebhookStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.WebhookStatus(raw)
		switch s {
		case domain.WebhookProcessing, domain.WebhookCompleted, domain.WebhookFailed:
		default:
			respond.Error(w, h.logger, apperr.Validation("invalid_status", "unknown webhook status %q", raw))
			return
		}
		status = &s
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	out, err := h.ingestor.Events(r.Context(), status, limit)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

// Retry handles POST /payments/webhooks/events/{eventID}/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	out, err := h.ingestor.Retry(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}
