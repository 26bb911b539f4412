package bookings

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/http/respond"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// Handler exposes booking operations over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts the booking routes on an authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{bookingID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Patch("/status", h.UpdateStatus)
			r.Patch("/reschedule", h.Reschedule)
			r.Post("/payment-intent", h.CreatePaymentIntent)
			r.Post("/payment-intent/confirm", h.ConfirmPayment)
			r.Post("/refunds", h.Refund)
			r.Post("/review", h.Review)
		})
	})
}

func bookingID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid_id", "booking id must be a UUID")
	}
	return id, nil
}

// Create handles POST /bookings. A replayed idempotency key answers 200 with
// the original booking instead of 201.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := respond.Actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	var req CreateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	b, created, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond.JSON(w, status, b)
}

// List handles GET /bookings?status=&clientId=&professionalId=&upcoming=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := respond.Actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	q, err := listQuery(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	out, err := h.service.List(r.Context(), actor, q)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

func listQuery(r *http.Request) (ListQuery, error) {
	var q ListQuery
	q.Limit, q.Offset = respond.Page(r, 50, 200)
	values := r.URL.Query()
	for name, dst := range map[string]**uuid.UUID{"clientId": &q.ClientID, "professionalId": &q.ProfessionalID} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return q, apperr.Validation("invalid_id", "%s must be a UUID", name)
		}
		*dst = &id
	}
	if raw := values.Get("status"); raw != "" {
		status := domain.BookingStatus(raw)
		if !status.Valid() {
			return q, apperr.Validation("invalid_status", "unknown booking status %q", raw)
		}
		q.Status = &status
	}
	if raw := values.Get("upcoming"); raw != "" {
		upcoming, err := strconv.ParseBool(raw)
		if err != nil {
			return q, apperr.Validation("invalid_upcoming", "upcoming must be a boolean")
		}
		q.Upcoming = upcoming
	}
	return q, nil
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, func(actor domain.Actor, id uuid.UUID) (any, error) {
		return h.service.Get(r.Context(), actor, id)
	})
}

// UpdateStatus handles PATCH /bookings/{id}/status?status=&notes=.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, func(actor domain.Actor, id uuid.UUID) (any, error) {
		q := r.URL.Query()
		return h.service.UpdateStatus(r.Context(), actor, id, domain.BookingStatus(q.Get("status")), q.Get("notes"))
	})
}

// Update handles PATCH /bookings/{id} with a JSON UpdateRequest body.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, func(actor domain.Actor, id uuid.UUID) (any, error) {
		var req UpdateRequest
		if err := respond.Decode(r, &req); err != nil {
			return nil, err
		}
		return h.service.Update(r.Context(), actor, id, req)
	})
}

// Reschedule handles PATCH /bookings/{id}/reschedule?newStartTime=&notes=.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, func(actor domain.Actor, id uuid.UUID) (any, error) {
		q := r.URL.Query()
		start, err := time.Parse(time.RFC3339, q.Get("newStartTime"))
		if err != nil {
			return nil, apperr.Validation("invalid_start_time", "newStartTime must be an RFC 3339 timestamp")
		}
		return h.service.Reschedule(r.Context(), actor, id, start, q.Get("notes"))
	})
}

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, func(actor domain.Actor, id uuid.UUID) (any, error) {
		return h.service.CreatePaymentIntent(r.Context(), actor, id)
	})
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, func(actor domain.Actor, id uuid.UUID) (any, error) {
		return h.service.ConfirmPayment(r.Context(), actor, id)
	})
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason"`
}

// Refund handles POST /bookings/{id}/refunds {amount?, reason}. Omitting the
// amount refunds everything still refundable.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, func(actor domain.Actor, id uuid.UUID) (any, error) {
		var req refundRequest
		if r.ContentLength != 0 {
			if err := respond.Decode(r, &req); err != nil {
				return nil, err
			}
		}
		var amount *money.Cents
		if req.Amount != nil {
			c := money.FromDecimal(*req.Amount)
			amount = &c
		}
		return h.service.Refund(r.Context(), actor, id, amount, req.Reason)
	})
}

type reviewRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, func(actor domain.Actor, id uuid.UUID) (any, error) {
		var req reviewRequest
		if err := respond.Decode(r, &req); err != nil {
			return nil, err
		}
		return h.service.AddReview(r.Context(), actor, id, req.Rating, req.Review)
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := respond.Actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	id, err := bookingID(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) withBooking(w http.ResponseWriter, r *http.Request, fn func(actor domain.Actor, id uuid.UUID) (any, error)) {
	actor, err := respond.Actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	id, err := bookingID(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	out, err := fn(actor, id)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}
