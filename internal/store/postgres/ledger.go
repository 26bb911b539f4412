package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/money"
)

const accountColumns = `id, professional_id, gross_balance, net_balance, is_suspended, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.ServiceAccount, error) {
	var (
		a          domain.ServiceAccount
		gross, net int64
	)
	if err := row.Scan(&a.ID, &a.ProfessionalID, &gross, &net, &a.IsSuspended, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.GrossBalance, a.NetBalance = money.Cents(gross), money.Cents(net)
	return &a, nil
}

func (t *tx) EnsureAccount(ctx context.Context, professionalID uuid.UUID) (*domain.ServiceAccount, error) {
	insert := `
		INSERT INTO service_accounts (id, professional_id)
		VALUES ($1, $2)
		ON CONFLICT (professional_id) DO NOTHING
	`
	if _, err := t.q.Exec(ctx, insert, uuid.New(), professionalID); err != nil {
		return nil, fmt.Errorf("postgres: ensure account: %w", err)
	}
	return t.GetAccountForUpdate(ctx, professionalID)
}

func (t *tx) GetAccount(ctx context.Context, professionalID uuid.UUID) (*domain.ServiceAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM service_accounts WHERE professional_id = $1`
	a, err := scanAccount(t.q.QueryRow(ctx, query, professionalID))
	if err != nil {
		return nil, notFound(err, "account_not_found", "no service account for professional %s", professionalID)
	}
	return a, nil
}

func (t *tx) GetAccountForUpdate(ctx context.Context, professionalID uuid.UUID) (*domain.ServiceAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM service_accounts WHERE professional_id = $1 FOR UPDATE`
	a, err := scanAccount(t.q.QueryRow(ctx, query, professionalID))
	if err != nil {
		return nil, notFound(err, "account_not_found", "no service account for professional %s", professionalID)
	}
	return a, nil
}

func (t *tx) UpdateAccount(ctx context.Context, a *domain.ServiceAccount) error {
	query := `
		UPDATE service_accounts
		SET gross_balance = $2, net_balance = $3, is_suspended = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := t.q.QueryRow(ctx, query, a.ID, int64(a.GrossBalance), int64(a.NetBalance), a.IsSuspended).Scan(&a.UpdatedAt)
	if err != nil {
		return notFound(mapError(err), "account_not_found", "service account %s not found", a.ID)
	}
	return nil
}

const transactionColumns = `id, account_id, type, status, gross_amount, net_amount, platform_fee, gateway_fee,
	gross_before, net_before, gross_after, net_after, booking_id, withdrawal_id, payment_intent_id,
	description, created_at`

func scanTransaction(row pgx.Row) (*domain.AccountTransaction, error) {
	var (
		t                                   domain.AccountTransaction
		txType, status                      string
		gross, net, platformFee, gatewayFee int64
		grossBefore, netBefore              int64
		grossAfter, netAfter                int64
	)
	if err := row.Scan(
		&t.ID, &t.AccountID, &txType, &status, &gross, &net, &platformFee, &gatewayFee,
		&grossBefore, &netBefore, &grossAfter, &netAfter, &t.BookingID, &t.WithdrawalID, &t.PaymentIntentID,
		&t.Description, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	t.Type = domain.TransactionType(txType)
	t.Status = domain.TransactionStatus(status)
	t.GrossAmount, t.NetAmount = money.Cents(gross), money.Cents(net)
	t.PlatformFee, t.GatewayFee = money.Cents(platformFee), money.Cents(gatewayFee)
	t.Before = domain.Balances{Gross: money.Cents(grossBefore), Net: money.Cents(netBefore)}
	t.After = domain.Balances{Gross: money.Cents(grossAfter), Net: money.Cents(netAfter)}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.AccountTransaction, error) {
	defer rows.Close()
	var out []domain.AccountTransaction
	for rows.Next() {
		row, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan transaction: %w", err)
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (t *tx) InsertTransaction(ctx context.Context, row *domain.AccountTransaction) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	query := `
		INSERT INTO service_account_transactions (
			id, account_id, type, status, gross_amount, net_amount, platform_fee, gateway_fee,
			gross_before, net_before, gross_after, net_after, booking_id, withdrawal_id,
			payment_intent_id, description
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at
	`
	err := t.q.QueryRow(ctx, query,
		row.ID, row.AccountID, string(row.Type), string(row.Status),
		int64(row.GrossAmount), int64(row.NetAmount), int64(row.PlatformFee), int64(row.GatewayFee),
		int64(row.Before.Gross), int64(row.Before.Net), int64(row.After.Gross), int64(row.After.Net),
		row.BookingID, row.WithdrawalID, row.PaymentIntentID, row.Description,
	).Scan(&row.CreatedAt)
	if err != nil {
		return mapError(fmt.Errorf("postgres: insert transaction: %w", err))
	}
	return nil
}

func (t *tx) ListTransactionsForBookings(ctx context.Context, accountID uuid.UUID, bookingIDs []uuid.UUID) ([]domain.AccountTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM service_account_transactions
		WHERE account_id = $1 AND booking_id = ANY($2)
		ORDER BY created_at`
	rows, err := t.q.Query(ctx, query, accountID, bookingIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: list booking transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (t *tx) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.AccountTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + transactionColumns + ` FROM service_account_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := t.q.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	return collectTransactions(rows)
}

const withdrawalColumns = `id, account_id, professional_id, requested_amount, approved_amount, processing_fee,
	net_amount, method, status, notes, failure_reason, processed_at, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (*domain.WithdrawalRequest, error) {
	var (
		w              domain.WithdrawalRequest
		requested, fee int64
		net            int64
		approved       *int64
		method, status string
	)
	if err := row.Scan(
		&w.ID, &w.AccountID, &w.ProfessionalID, &requested, &approved, &fee,
		&net, &method, &status, &w.Notes, &w.FailureReason, &w.ProcessedAt, &w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		return nil, err
	}
	w.RequestedAmount, w.ProcessingFee, w.NetAmount = money.Cents(requested), money.Cents(fee), money.Cents(net)
	if approved != nil {
		a := money.Cents(*approved)
		w.ApprovedAmount = &a
	}
	w.Method = domain.WithdrawalMethod(method)
	w.Status = domain.WithdrawalStatus(status)
	return &w, nil
}

func approvedArg(w *domain.WithdrawalRequest) *int64 {
	if w.ApprovedAmount == nil {
		return nil
	}
	v := int64(*w.ApprovedAmount)
	return &v
}

func (t *tx) InsertWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	query := `
		INSERT INTO withdrawal_requests (
			id, account_id, professional_id, requested_amount, approved_amount, processing_fee,
			net_amount, method, status, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := t.q.QueryRow(ctx, query,
		w.ID, w.AccountID, w.ProfessionalID, int64(w.RequestedAmount), approvedArg(w), int64(w.ProcessingFee),
		int64(w.NetAmount), string(w.Method), string(w.Status), w.Notes,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return mapError(fmt.Errorf("postgres: insert withdrawal: %w", err))
	}
	return nil
}

func (t *tx) GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`
	w, err := scanWithdrawal(t.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "withdrawal_not_found", "withdrawal %s not found", id)
	}
	return w, nil
}

func (t *tx) UpdateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	query := `
		UPDATE withdrawal_requests
		SET approved_amount = $2, processing_fee = $3, net_amount = $4, status = $5,
			notes = $6, failure_reason = $7, processed_at = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := t.q.QueryRow(ctx, query,
		w.ID, approvedArg(w), int64(w.ProcessingFee), int64(w.NetAmount), string(w.Status),
		w.Notes, w.FailureReason, w.ProcessedAt,
	).Scan(&w.UpdatedAt)
	if err != nil {
		return notFound(mapError(err), "withdrawal_not_found", "withdrawal %s not found", w.ID)
	}
	return nil
}

func (t *tx) ListWithdrawals(ctx context.Context, accountID uuid.UUID, status *domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error) {
	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
		WHERE account_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC`
	rows, err := t.q.Query(ctx, query, accountID, statusArg)
	if err != nil {
		return nil, fmt.Errorf("postgres: list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan withdrawal: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}
