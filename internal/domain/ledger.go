package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/money"
)

// ServiceAccount carries a professional's running balances.
type ServiceAccount struct {
	ID             uuid.UUID   `json:"id"`
	ProfessionalID uuid.UUID   `json:"professionalId"`
	GrossBalance   money.Cents `json:"grossBalanceCents"`
	NetBalance     money.Cents `json:"netBalanceCents"`
	IsSuspended    bool        `json:"isSuspended"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

type TransactionType string

const (
	TxPayment    TransactionType = "payment"
	TxRefund     TransactionType = "refund"
	TxWithdrawal TransactionType = "withdrawal"
	TxFee        TransactionType = "fee"
	TxAdjustment TransactionType = "adjustment"
	TxBonus      TransactionType = "bonus"
)

// Credit reports whether the type adds to balances.
func (t TransactionType) Credit() bool {
	switch t {
	case TxPayment, TxBonus, TxAdjustment:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

// Balances is a gross/net pair.
type Balances struct {
	Gross money.Cents `json:"grossCents"`
	Net   money.Cents `json:"netCents"`
}

// AccountTransaction is an immutable journal row.
type AccountTransaction struct {
	ID              uuid.UUID         `json:"id"`
	AccountID       uuid.UUID         `json:"accountId"`
	Type            TransactionType   `json:"type"`
	Status          TransactionStatus `json:"status"`
	GrossAmount     money.Cents       `json:"grossAmountCents"`
	NetAmount       money.Cents       `json:"netAmountCents"`
	PlatformFee     money.Cents       `json:"platformFeeCents"`
	GatewayFee      money.Cents       `json:"gatewayFeeCents"`
	Before          Balances          `json:"balanceBefore"`
	After           Balances          `json:"balanceAfter"`
	BookingID       *uuid.UUID        `json:"bookingId,omitempty"`
	WithdrawalID    *uuid.UUID        `json:"withdrawalId,omitempty"`
	PaymentIntentID *string           `json:"paymentIntentId,omitempty"`
	Description     string            `json:"description,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

type WithdrawalMethod string

const (
	WithdrawStripeTransfer WithdrawalMethod = "stripe_transfer"
	WithdrawBankTransfer   WithdrawalMethod = "bank_transfer"
	WithdrawCheck          WithdrawalMethod = "check"
	WithdrawPaypal         WithdrawalMethod = "paypal"
)

func (m WithdrawalMethod) Valid() bool {
	switch m {
	case WithdrawStripeTransfer, WithdrawBankTransfer, WithdrawCheck, WithdrawPaypal:
		return true
	}
	return false
}

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

type WithdrawalRequest struct {
	ID              uuid.UUID        `json:"id"`
	AccountID       uuid.UUID        `json:"accountId"`
	ProfessionalID  uuid.UUID        `json:"professionalId"`
	RequestedAmount money.Cents      `json:"requestedAmountCents"`
	ApprovedAmount  *money.Cents     `json:"approvedAmountCents,omitempty"`
	ProcessingFee   money.Cents      `json:"processingFeeCents"`
	NetAmount       money.Cents      `json:"netAmountCents"`
	Method          WithdrawalMethod `json:"method"`
	Status          WithdrawalStatus `json:"status"`
	Notes           string           `json:"notes,omitempty"`
	FailureReason   string           `json:"failureReason,omitempty"`
	ProcessedAt     *time.Time       `json:"processedAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}
