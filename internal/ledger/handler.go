package ledger

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/http/respond"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// Handler serves the /payments account and withdrawal endpoints.
type Handler struct {
	ledger *Ledger
	logger *logging.Logger
}

func NewHandler(l *Ledger, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{ledger: l, logger: logger}
}

// Register mounts the routes. Admin-only routes are guarded by adminOnly.
func (h *Handler) Register(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Route("/payments", func(r chi.Router) {
		r.Get("/account", h.GetAccount)
		r.Get("/transactions", h.ListTransactions)
		r.Get("/withdrawals", h.ListWithdrawals)
		r.Post("/withdrawals", h.CreateWithdrawal)
		r.With(adminOnly).Post("/withdrawals/{withdrawalID}/complete", h.CompleteWithdrawal)
		r.With(adminOnly).Post("/withdrawals/{withdrawalID}/fail", h.FailWithdrawal)
	})
}

type withdrawalRequest struct {
	Amount decimal.Decimal         `json:"amount"`
	Method domain.WithdrawalMethod `json:"method"`
	Notes  string                  `json:"notes,omitempty"`
}

type completeRequest struct {
	ApprovedAmount *decimal.Decimal `json:"approvedAmount,omitempty"`
	Notes          string           `json:"notes,omitempty"`
}

type failRequest struct {
	Reason string `json:"reason"`
}

// accountOwner resolves whose account a read targets: professionals read
// their own, admins pass ?professionalId=.
func accountOwner(r *http.Request) (uuid.UUID, error) {
	actor, err := respond.Actor(r)
	if err != nil {
		return uuid.Nil, err
	}
	switch {
	case actor.Role == domain.RoleProfessional:
		return actor.ID, nil
	case actor.IsAdmin():
		id, err := uuid.Parse(r.URL.Query().Get("professionalId"))
		if err != nil {
			return uuid.Nil, apperr.Validation("invalid_professional_id", "professionalId query parameter must be a UUID")
		}
		return id, nil
	}
	return uuid.Nil, apperr.Forbidden("professional_only", "only professionals hold service accounts")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := accountOwner(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	acc, err := h.ledger.Account(r.Context(), owner)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, acc)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, err := accountOwner(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	limit, offset := respond.Page(r, 50, 200)
	rows, err := h.ledger.Transactions(r.Context(), owner, limit, offset)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, rows)
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	owner, err := accountOwner(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	var status *domain.WithdrawalStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.WithdrawalStatus(raw)
		status = &s
	}
	out, err := h.ledger.Withdrawals(r.Context(), owner, status)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

// CreateWithdrawal handles POST /payments/withdrawals {amount, method}.
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, err := respond.Actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	var req withdrawalRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	out, err := h.ledger.CreateWithdrawal(r.Context(), actor, money.FromDecimal(req.Amount), req.Method, req.Notes)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, out)
}

func withdrawalID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "withdrawalID"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid_id", "withdrawal id must be a UUID")
	}
	return id, nil
}

// CompleteWithdrawal handles POST /payments/withdrawals/{id}/complete.
func (h *Handler) CompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, err := respond.Actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	id, err := withdrawalID(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	var req completeRequest
	if r.ContentLength != 0 {
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, h.logger, err)
			return
		}
	}
	var approved *money.Cents
	if req.ApprovedAmount != nil {
		c := money.FromDecimal(*req.ApprovedAmount)
		approved = &c
	}
	row, err := h.ledger.CompleteWithdrawal(r.Context(), actor, id, approved, req.Notes)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, row)
}

func (h *Handler) FailWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, err := respond.Actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	id, err := withdrawalID(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	var req failRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	out, err := h.ledger.FailWithdrawal(r.Context(), actor, id, req.Reason)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}
