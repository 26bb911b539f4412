package availability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/http/respond"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// Handler exposes availability rules over HTTP.
type Handler struct {
	service   *Service
	minNotice time.Duration
	logger    *logging.Logger
}

func NewHandler(service *Service, minNotice time.Duration, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, minNotice: minNotice, logger: logger}
}

// Register mounts the availability routes on an authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/professionals/{professionalID}/availability", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/weekly", h.Weekly)
		r.Get("/slots", h.Slots)
	})
	r.Route("/availability/{ruleID}", func(r chi.Router) {
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Patch("/status", h.SetStatus)
		r.Patch("/toggle", h.Toggle)
	})
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid_id", "%s must be a UUID", name)
	}
	return id, nil
}

// List handles GET /professionals/{professionalID}/availability.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := respond.Actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	proID, err := pathID(r, "professionalID")
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	rules, err := h.service.ListRules(r.Context(), actor, proID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, rules)
}

func (h *Handler) Weekly(w http.ResponseWriter, r *http.Request) {
	proID, err := pathID(r, "professionalID")
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	rules, err := h.service.WeeklySchedule(r.Context(), proID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, rules)
}

// Slots handles GET /professionals/{professionalID}/availability/slots?date=&durationMinutes=.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	proID, err := pathID(r, "professionalID")
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	duration, err := strconv.Atoi(r.URL.Query().Get("durationMinutes"))
	if err != nil {
		respond.Error(w, h.logger, apperr.Validation("invalid_duration", "durationMinutes must be an integer"))
		return
	}
	slots, err := h.service.AvailableSlots(r.Context(), proID, r.URL.Query().Get("date"), duration, h.minNotice)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, slots)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := respond.Actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	proID, err := pathID(r, "professionalID")
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	var in RuleInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	rule, err := h.service.CreateRule(r.Context(), actor, proID, in)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, rule)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	h.withRule(w, r, func(actor domain.Actor, id uuid.UUID) (*domain.AvailabilityRule, error) {
		var in RuleInput
		if err := respond.Decode(r, &in); err != nil {
			return nil, err
		}
		return h.service.UpdateRule(r.Context(), actor, id, in)
	})
}

func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	h.withRule(w, r, func(actor domain.Actor, id uuid.UUID) (*domain.AvailabilityRule, error) {
		return h.service.SetStatus(r.Context(), actor, id, domain.RuleStatus(r.URL.Query().Get("status")))
	})
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	h.withRule(w, r, func(actor domain.Actor, id uuid.UUID) (*domain.AvailabilityRule, error) {
		return h.service.ToggleActive(r.Context(), actor, id)
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := respond.Actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	id, err := pathID(r, "ruleID")
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if err := h.service.DeleteRule(r.Context(), actor, id); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) withRule(w http.ResponseWriter, r *http.Request, fn func(actor domain.Actor, id uuid.UUID) (*domain.AvailabilityRule, error)) {
	actor, err := respond.Actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	id, err := pathID(r, "ruleID")
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	rule, err := fn(actor, id)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, rule)
}
