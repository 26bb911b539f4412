package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/events"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/internal/pricing"
	"github.com/wolfman30/pro-marketplace/internal/store"
)

func requireProfessional(actor domain.Actor) error {
	if actor.Role != domain.RoleProfessional {
		return apperr.Forbidden("professional_only", "only professionals hold service accounts")
	}
	return nil
}

func requireAdmin(actor domain.Actor) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden("admin_only", "administrator access required")
	}
	return nil
}

// CreateWithdrawal files a PENDING request against the professional's net
// balance. No funds move until CompleteWithdrawal.
func (l *Ledger) CreateWithdrawal(ctx context.Context, actor domain.Actor, amount money.Cents, method domain.WithdrawalMethod, notes string) (*domain.WithdrawalRequest, error) {
	if err := requireProfessional(actor); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apperr.Validation("invalid_amount", "withdrawal amount must be positive")
	}
	if !method.Valid() {
		return nil, apperr.Validation("invalid_method", "unsupported withdrawal method %q", method)
	}
	cfg := l.pricing.Snapshot()

	var out *domain.WithdrawalRequest
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := tx.GetAccountForUpdate(ctx, actor.ID)
		if err != nil {
			return err
		}
		if acc.IsSuspended {
			return apperr.InvalidState("account_suspended", "service account is suspended")
		}
		if err := checkLimits(amount, acc.NetBalance, cfg); err != nil {
			return err
		}
		fee := pricing.WithdrawalFee(method, amount, cfg)
		w := &domain.WithdrawalRequest{
			ID:              uuid.New(),
			AccountID:       acc.ID,
			ProfessionalID:  acc.ProfessionalID,
			RequestedAmount: amount,
			ProcessingFee:   fee,
			NetAmount:       amount - fee,
			Method:          method,
			Status:          domain.WithdrawalPending,
			Notes:           strings.TrimSpace(notes),
		}
		if err := tx.InsertWithdrawal(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("withdrawal requested",
		"withdrawal_id", out.ID,
		"professional_id", out.ProfessionalID,
		"amount_cents", int64(amount),
		"method", method,
	)
	return out, nil
}

func checkLimits(amount, net money.Cents, cfg pricing.Config) error {
	switch {
	case amount < cfg.MinWithdrawal:
		return apperr.InsufficientBalance("below_minimum_withdrawal", "minimum withdrawal is %s", cfg.MinWithdrawal)
	case cfg.MaxWithdrawal > 0 && amount > cfg.MaxWithdrawal:
		return apperr.InsufficientBalance("above_maximum_withdrawal", "maximum withdrawal is %s", cfg.MaxWithdrawal)
	case amount > net:
		return apperr.InsufficientBalance("insufficient_balance", "cannot withdraw %s, available balance is %s", amount, net)
	}
	return nil
}

// CompleteWithdrawal approves a PENDING request and debits the net balance.
// approved defaults to the requested amount and may not exceed it.
func (l *Ledger) CompleteWithdrawal(ctx context.Context, actor domain.Actor, id uuid.UUID, approved *money.Cents, notes string) (*domain.AccountTransaction, error) {
	ctx, span := tracer.Start(ctx, "ledger.complete_withdrawal")
	defer span.End()
	span.SetAttributes(attribute.String("marketplace.withdrawal_id", id.String()))

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cfg := l.pricing.Snapshot()

	var row *domain.AccountTransaction
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.GetWithdrawalForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != domain.WithdrawalPending {
			return apperr.InvalidState("withdrawal_not_pending", "withdrawal %s is %s", id, w.Status)
		}
		amount := w.RequestedAmount
		if approved != nil {
			amount = *approved
		}
		if amount <= 0 || amount > w.RequestedAmount {
			return apperr.Validation("invalid_approved_amount", "approved amount must be between 0.01 and %s", w.RequestedAmount)
		}
		acc, err := tx.GetAccountForUpdate(ctx, w.ProfessionalID)
		if err != nil {
			return err
		}
		if amount > acc.NetBalance {
			return apperr.InsufficientBalance("insufficient_balance", "approved amount %s exceeds available balance %s", amount, acc.NetBalance)
		}

		withdrawalID := w.ID
		row = &domain.AccountTransaction{
			Type:         domain.TxWithdrawal,
			GrossAmount:  amount,
			NetAmount:    amount,
			WithdrawalID: &withdrawalID,
			Description:  fmt.Sprintf("Withdrawal %s via %s", w.ID, w.Method),
		}
		if err := l.apply(ctx, tx, acc, row); err != nil {
			return err
		}

		now := l.now().UTC()
		fee := pricing.WithdrawalFee(w.Method, amount, cfg)
		w.ApprovedAmount = &amount
		w.ProcessingFee = fee
		w.NetAmount = amount - fee
		w.Status = domain.WithdrawalCompleted
		w.ProcessedAt = &now
		if n := strings.TrimSpace(notes); n != "" {
			w.Notes = n
		}
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		return store.AppendEvent(ctx, tx, withdrawalAggregate(w), events.WithdrawalSettledV1{
			WithdrawalID:   w.ID.String(),
			ProfessionalID: w.ProfessionalID.String(),
			Status:         string(w.Status),
			AmountCents:    int64(amount),
			Method:         string(w.Method),
			SettledAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("withdrawal completed", "withdrawal_id", id, "amount_cents", int64(row.NetAmount), "admin_id", actor.ID)
	return row, nil
}

// FailWithdrawal closes a PENDING request without moving funds.
func (l *Ledger) FailWithdrawal(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.WithdrawalRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason_required", "a failure reason is required")
	}

	var out *domain.WithdrawalRequest
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.GetWithdrawalForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != domain.WithdrawalPending {
			return apperr.InvalidState("withdrawal_not_pending", "withdrawal %s is %s", id, w.Status)
		}
		now := l.now().UTC()
		w.Status = domain.WithdrawalFailed
		w.FailureReason = reason
		w.ProcessedAt = &now
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		out = w
		return store.AppendEvent(ctx, tx, withdrawalAggregate(w), events.WithdrawalSettledV1{
			WithdrawalID:   w.ID.String(),
			ProfessionalID: w.ProfessionalID.String(),
			Status:         string(w.Status),
			AmountCents:    int64(w.RequestedAmount),
			Method:         string(w.Method),
			SettledAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}
	l.logger.Warn("withdrawal failed", "withdrawal_id", id, "reason", reason)
	return out, nil
}

func withdrawalAggregate(w *domain.WithdrawalRequest) string {
	return "professional:" + w.ProfessionalID.String()
}

// Account returns the professional's service account.
func (l *Ledger) Account(ctx context.Context, professionalID uuid.UUID) (*domain.ServiceAccount, error) {
	var acc *domain.ServiceAccount
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		acc, err = tx.GetAccount(ctx, professionalID)
		return err
	})
	return acc, err
}

// Transactions lists the journal newest first.
func (l *Ledger) Transactions(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]domain.AccountTransaction, error) {
	var rows []domain.AccountTransaction
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := tx.GetAccount(ctx, professionalID)
		if err != nil {
			return err
		}
		rows, err = tx.ListTransactions(ctx, acc.ID, limit, offset)
		return err
	})
	return rows, err
}

func (l *Ledger) Withdrawals(ctx context.Context, professionalID uuid.UUID, status *domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error) {
	var out []domain.WithdrawalRequest
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := tx.GetAccount(ctx, professionalID)
		if err != nil {
			return err
		}
		out, err = tx.ListWithdrawals(ctx, acc.ID, status)
		return err
	})
	return out, err
}
