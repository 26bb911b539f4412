// Package memory is a serialized in-process implementation of store.Store.
// Transactions run one at a time against a copy of the state that replaces
// the committed state only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/events"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
)

type outboxRow struct {
	env       events.Envelope
	delivered bool
}

type state struct {
	rules        map[uuid.UUID]domain.AvailabilityRule
	bookings     map[uuid.UUID]domain.Booking
	accounts     map[uuid.UUID]domain.ServiceAccount // keyed by professional id
	transactions []domain.AccountTransaction
	withdrawals  map[uuid.UUID]domain.WithdrawalRequest
	webhooks     map[string]domain.WebhookEvent
	outbox       []outboxRow
}

func newState() *state {
	return &state{
		rules:       map[uuid.UUID]domain.AvailabilityRule{},
		bookings:    map[uuid.UUID]domain.Booking{},
		accounts:    map[uuid.UUID]domain.ServiceAccount{},
		withdrawals: map[uuid.UUID]domain.WithdrawalRequest{},
		webhooks:    map[string]domain.WebhookEvent{},
	}
}

func (s *state) clone() *state {
	c := &state{
		rules:        make(map[uuid.UUID]domain.AvailabilityRule, len(s.rules)),
		bookings:     make(map[uuid.UUID]domain.Booking, len(s.bookings)),
		accounts:     make(map[uuid.UUID]domain.ServiceAccount, len(s.accounts)),
		transactions: append([]domain.AccountTransaction(nil), s.transactions...),
		withdrawals:  make(map[uuid.UUID]domain.WithdrawalRequest, len(s.withdrawals)),
		webhooks:     make(map[string]domain.WebhookEvent, len(s.webhooks)),
		outbox:       append([]outboxRow(nil), s.outbox...),
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range s.webhooks {
		c.webhooks[k] = v
	}
	return c
}

// Store keeps all marketplace state in memory.
type Store struct {
	mu  sync.Mutex
	cur *state
	now func() time.Time
}

var (
	_ store.Store         = (*Store)(nil)
	_ events.OutboxSource = (*Store)(nil)
)

func New() *Store {
	return &Store{cur: newState(), now: time.Now}
}

// WithClock overrides the time source used for row timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := &tx{st: s.cur.clone(), now: s.now}
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.cur = work.st
	return nil
}

// FetchPending returns undelivered outbox envelopes in insertion order.
func (s *Store) FetchPending(ctx context.Context, limit int32) ([]events.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Envelope
	for _, row := range s.cur.outbox {
		if row.delivered {
			continue
		}
		if limit > 0 && int32(len(out)) >= limit {
			break
		}
		out = append(out, row.env)
	}
	return out, nil
}

func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cur.outbox {
		if s.cur.outbox[i].env.EventID == id && !s.cur.outbox[i].delivered {
			s.cur.outbox[i].delivered = true
			return true, nil
		}
	}
	return false, nil
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) LockProfessional(ctx context.Context, professionalID uuid.UUID) error {
	// The store mutex already serializes every transaction.
	return nil
}

func (t *tx) stamp(created, updated *time.Time) {
	now := t.now().UTC()
	if created != nil && created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}

// Availability rules

func (t *tx) InsertRule(ctx context.Context, rule *domain.AvailabilityRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if _, exists := t.st.rules[rule.ID]; exists {
		return apperr.Conflict("rule_exists", "availability rule %s already exists", rule.ID)
	}
	t.stamp(&rule.CreatedAt, &rule.UpdatedAt)
	t.st.rules[rule.ID] = *rule
	return nil
}

func (t *tx) UpdateRule(ctx context.Context, rule *domain.AvailabilityRule) error {
	existing, ok := t.st.rules[rule.ID]
	if !ok || !existing.Live() {
		return apperr.NotFound("rule_not_found", "availability rule %s not found", rule.ID)
	}
	t.stamp(nil, &rule.UpdatedAt)
	t.st.rules[rule.ID] = *rule
	return nil
}

func (t *tx) GetRule(ctx context.Context, id uuid.UUID) (*domain.AvailabilityRule, error) {
	rule, ok := t.st.rules[id]
	if !ok || !rule.Live() {
		return nil, apperr.NotFound("rule_not_found", "availability rule %s not found", id)
	}
	return &rule, nil
}

func (t *tx) ListRules(ctx context.Context, professionalID uuid.UUID) ([]domain.AvailabilityRule, error) {
	var out []domain.AvailabilityRule
	for _, rule := range t.st.rules {
		if rule.ProfessionalID == professionalID && rule.Live() {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Window.Start != out[j].Window.Start {
			return out[i].Window.Start < out[j].Window.Start
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *tx) AdjustRuleBookings(ctx context.Context, ruleID uuid.UUID, delta int) error {
	rule, ok := t.st.rules[ruleID]
	if !ok {
		return apperr.NotFound("rule_not_found", "availability rule %s not found", ruleID)
	}
	rule.CurrentBookings += delta
	if rule.CurrentBookings < 0 {
		rule.CurrentBookings = 0
	}
	t.stamp(nil, &rule.UpdatedAt)
	t.st.rules[ruleID] = rule
	return nil
}

// Bookings

func (t *tx) checkBookingUniqueness(b *domain.Booking) error {
	for id, other := range t.st.bookings {
		if id == b.ID {
			continue
		}
		if b.IdempotencyKey != nil && other.IdempotencyKey != nil && *b.IdempotencyKey == *other.IdempotencyKey {
			return apperr.Conflict("duplicate_idempotency_key", "idempotency key already used")
		}
		if b.PaymentIntentID != nil && other.PaymentIntentID != nil && *b.PaymentIntentID == *other.PaymentIntentID {
			return apperr.Conflict("duplicate_payment_intent", "payment intent already attached to another booking")
		}
		if !other.Live() || !other.Status.HoldsSlot() || !b.Status.HoldsSlot() || other.ProfessionalID != b.ProfessionalID {
			continue
		}
		if other.Interval().Overlaps(b.Interval()) {
			return apperr.Conflict("booking_conflict", "professional already has a booking in this time range")
		}
	}
	return nil
}

func (t *tx) InsertBooking(ctx context.Context, b *domain.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if _, exists := t.st.bookings[b.ID]; exists {
		return apperr.Conflict("booking_exists", "booking %s already exists", b.ID)
	}
	if err := t.checkBookingUniqueness(b); err != nil {
		return err
	}
	t.stamp(&b.CreatedAt, &b.UpdatedAt)
	t.st.bookings[b.ID] = *b
	return nil
}

func (t *tx) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	existing, ok := t.st.bookings[b.ID]
	if !ok || !existing.Live() {
		return apperr.NotFound("booking_not_found", "booking %s not found", b.ID)
	}
	if err := t.checkBookingUniqueness(b); err != nil {
		return err
	}
	t.stamp(nil, &b.UpdatedAt)
	t.st.bookings[b.ID] = *b
	return nil
}

func (t *tx) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok || !b.Live() {
		return nil, apperr.NotFound("booking_not_found", "booking %s not found", id)
	}
	return &b, nil
}

func (t *tx) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return t.GetBooking(ctx, id)
}

func (t *tx) GetBookingByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	for _, b := range t.st.bookings {
		if b.IdempotencyKey != nil && *b.IdempotencyKey == key && b.Live() {
			return &b, nil
		}
	}
	return nil, apperr.NotFound("booking_not_found", "no booking for idempotency key")
}

func (t *tx) GetBookingByPaymentIntent(ctx context.Context, intentID string) (*domain.Booking, error) {
	for _, b := range t.st.bookings {
		if b.PaymentIntentID != nil && *b.PaymentIntentID == intentID && b.Live() {
			return &b, nil
		}
	}
	return nil, apperr.NotFound("booking_not_found", "no booking for payment intent %s", intentID)
}

func (t *tx) ListOverlapping(ctx context.Context, professionalID uuid.UUID, iv timeslot.Interval, excludeID *uuid.UUID) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range t.st.bookings {
		if b.ProfessionalID != professionalID || !b.Live() || !b.Status.HoldsSlot() {
			continue
		}
		if excludeID != nil && b.ID == *excludeID {
			continue
		}
		if b.Interval().Overlaps(iv) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (t *tx) ListBookings(ctx context.Context, f store.BookingFilter) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range t.st.bookings {
		if !b.Live() {
			continue
		}
		if f.ClientID != nil && b.ClientID != *f.ClientID {
			continue
		}
		if f.ProfessionalID != nil && b.ProfessionalID != *f.ProfessionalID {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.StartsAfter != nil && !b.StartTime.After(*f.StartsAfter) {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return paginate(out, f.Limit, f.Offset), nil
}

func sortBookings(bs []domain.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].StartTime.Equal(bs[j].StartTime) {
			return bs[i].StartTime.Before(bs[j].StartTime)
		}
		return bs[i].ID.String() < bs[j].ID.String()
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// Ledger

func (t *tx) EnsureAccount(ctx context.Context, professionalID uuid.UUID) (*domain.ServiceAccount, error) {
	if acc, ok := t.st.accounts[professionalID]; ok {
		return &acc, nil
	}
	acc := domain.ServiceAccount{ID: uuid.New(), ProfessionalID: professionalID}
	t.stamp(&acc.CreatedAt, &acc.UpdatedAt)
	t.st.accounts[professionalID] = acc
	return &acc, nil
}

func (t *tx) GetAccount(ctx context.Context, professionalID uuid.UUID) (*domain.ServiceAccount, error) {
	return t.GetAccountForUpdate(ctx, professionalID)
}

func (t *tx) GetAccountForUpdate(ctx context.Context, professionalID uuid.UUID) (*domain.ServiceAccount, error) {
	acc, ok := t.st.accounts[professionalID]
	if !ok {
		return nil, apperr.NotFound("account_not_found", "no service account for professional %s", professionalID)
	}
	return &acc, nil
}

func (t *tx) UpdateAccount(ctx context.Context, account *domain.ServiceAccount) error {
	if _, ok := t.st.accounts[account.ProfessionalID]; !ok {
		return apperr.NotFound("account_not_found", "no service account for professional %s", account.ProfessionalID)
	}
	t.stamp(nil, &account.UpdatedAt)
	t.st.accounts[account.ProfessionalID] = *account
	return nil
}

func (t *tx) InsertTransaction(ctx context.Context, row *domain.AccountTransaction) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	t.stamp(&row.CreatedAt, nil)
	t.st.transactions = append(t.st.transactions, *row)
	return nil
}

func (t *tx) ListTransactionsForBookings(ctx context.Context, accountID uuid.UUID, bookingIDs []uuid.UUID) ([]domain.AccountTransaction, error) {
	wanted := make(map[uuid.UUID]struct{}, len(bookingIDs))
	for _, id := range bookingIDs {
		wanted[id] = struct{}{}
	}
	var out []domain.AccountTransaction
	for _, row := range t.st.transactions {
		if row.AccountID != accountID || row.BookingID == nil {
			continue
		}
		if _, ok := wanted[*row.BookingID]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (t *tx) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.AccountTransaction, error) {
	var out []domain.AccountTransaction
	for i := len(t.st.transactions) - 1; i >= 0; i-- {
		if t.st.transactions[i].AccountID == accountID {
			out = append(out, t.st.transactions[i])
		}
	}
	return paginate(out, limit, offset), nil
}

func (t *tx) InsertWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	t.stamp(&w.CreatedAt, &w.UpdatedAt)
	t.st.withdrawals[w.ID] = *w
	return nil
}

func (t *tx) GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	w, ok := t.st.withdrawals[id]
	if !ok {
		return nil, apperr.NotFound("withdrawal_not_found", "withdrawal %s not found", id)
	}
	return &w, nil
}

func (t *tx) UpdateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	if _, ok := t.st.withdrawals[w.ID]; !ok {
		return apperr.NotFound("withdrawal_not_found", "withdrawal %s not found", w.ID)
	}
	t.stamp(nil, &w.UpdatedAt)
	t.st.withdrawals[w.ID] = *w
	return nil
}

func (t *tx) ListWithdrawals(ctx context.Context, accountID uuid.UUID, status *domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error) {
	var out []domain.WithdrawalRequest
	for _, w := range t.st.withdrawals {
		if w.AccountID != accountID {
			continue
		}
		if status != nil && w.Status != *status {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Webhook events

func (t *tx) InsertWebhookEvent(ctx context.Context, e *domain.WebhookEvent) (bool, error) {
	if _, exists := t.st.webhooks[e.EventID]; exists {
		return false, nil
	}
	t.stamp(&e.CreatedAt, &e.UpdatedAt)
	t.st.webhooks[e.EventID] = *e
	return true, nil
}

func (t *tx) GetWebhookEventForUpdate(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	e, ok := t.st.webhooks[eventID]
	if !ok {
		return nil, apperr.NotFound("webhook_event_not_found", "webhook event %s not found", eventID)
	}
	return &e, nil
}

func (t *tx) UpdateWebhookEvent(ctx context.Context, e *domain.WebhookEvent) error {
	if _, ok := t.st.webhooks[e.EventID]; !ok {
		return apperr.NotFound("webhook_event_not_found", "webhook event %s not found", e.EventID)
	}
	t.stamp(nil, &e.UpdatedAt)
	t.st.webhooks[e.EventID] = *e
	return nil
}

func (t *tx) ListRetryableWebhookEvents(ctx context.Context, maxRetries int, staleBefore time.Time, limit int) ([]domain.WebhookEvent, error) {
	var out []domain.WebhookEvent
	for _, e := range t.st.webhooks {
		switch {
		case e.Status == domain.WebhookFailed && e.RetryCount < maxRetries:
			out = append(out, e)
		case e.Status == domain.WebhookProcessing && e.UpdatedAt.Before(staleBefore):
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, limit, 0), nil
}

func (t *tx) ListWebhookEvents(ctx context.Context, status *domain.WebhookStatus, limit int) ([]domain.WebhookEvent, error) {
	var out []domain.WebhookEvent
	for _, e := range t.st.webhooks {
		if status == nil || e.Status == *status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, 0), nil
}

// Outbox

func (t *tx) InsertOutbox(ctx context.Context, env events.Envelope) error {
	t.st.outbox = append(t.st.outbox, outboxRow{env: env})
	return nil
}
