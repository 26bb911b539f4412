package bookings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/directory"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/events"
	"github.com/wolfman30/pro-marketplace/internal/gateway"
	"github.com/wolfman30/pro-marketplace/internal/ledger"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/internal/pricing"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/internal/store/memory"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// Sunday morning; the schedule under test is the following Monday.
var (
	testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	monday  = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc      *Service
	store    *memory.Store
	dir      *directory.Static
	provider *pricing.Provider
	ledger  *ledger.Ledger
	gateway *gateway.FakeClient
	rule    domain.AvailabilityRule
	service domain.Service
	pro     domain.Actor
	client  domain.Actor
	admin   domain.Actor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	quiet := logging.NewWithWriter(io.Discard, "error")
	clock := func() time.Time { return testNow }

	proID := uuid.New()
	dir := directory.NewStatic()
	dir.AddProfessional(domain.Professional{ID: proID, Active: true, Timezone: "UTC", BaseTravelFee: 1500})
	svcDef := domain.Service{ID: uuid.New(), ProfessionalID: proID, Name: "Deep tissue massage", BasePrice: 7500, DurationMinutes: 60, Active: true}
	require.NoError(t, dir.AddService(svcDef))

	st := memory.New().WithClock(clock)
	cfg := pricing.DefaultConfig()
	provider := pricing.NewProvider(pricing.StaticSource(cfg), cfg, quiet)
	led := ledger.New(st, provider, nil, quiet).WithClock(clock)
	gw := gateway.NewFakeClient(quiet)
	svc := NewService(st, dir, provider, led, quiet).
		WithGateway(gw, "usd").
		WithMinNotice(2 * time.Hour).
		WithClock(clock)

	day := time.Monday
	work, err := timeslot.NewWindow(timeslot.MustClock("09:00"), timeslot.MustClock("18:00"))
	require.NoError(t, err)
	lunch, err := timeslot.NewWindow(timeslot.MustClock("12:00"), timeslot.MustClock("13:00"))
	require.NoError(t, err)
	max := 8
	rule := domain.AvailabilityRule{
		ID:             uuid.New(),
		ProfessionalID: proID,
		DayOfWeek:      &day,
		Window:         work,
		Break:          &lunch,
		Status:         domain.RuleAvailable,
		MaxBookings:    &max,
		IsActive:       true,
	}
	require.NoError(t, st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertRule(ctx, &rule)
	}))

	return fixture{
		svc:      svc,
		store:    st,
		dir:      dir,
		provider: provider,
		ledger:  led,
		gateway: gw,
		rule:    rule,
		service: svcDef,
		pro:     domain.Actor{ID: proID, Role: domain.RoleProfessional},
		client:  domain.Actor{ID: uuid.New(), Role: domain.RoleClient},
		admin:   domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin},
	}
}

func at(hhmm string) time.Time {
	c := timeslot.MustClock(hhmm)
	return c.On(monday, time.UTC)
}

func (f fixture) request(start time.Time) CreateRequest {
	return CreateRequest{ProfessionalID: f.pro.ID, ServiceID: f.service.ID, StartTime: start}
}

func (f fixture) book(t *testing.T, start time.Time) *domain.Booking {
	t.Helper()
	b, created, err := f.svc.Create(context.Background(), f.client, f.request(start))
	require.NoError(t, err)
	require.True(t, created)
	return b
}

// pay runs the client payment flow and applies the gateway's success event.
func (f fixture) pay(t *testing.T, b *domain.Booking) *domain.Booking {
	t.Helper()
	ctx := context.Background()
	intent, err := f.svc.CreatePaymentIntent(ctx, f.client, b.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return f.svc.ApplyPaymentSucceeded(ctx, tx, intent.IntentID, intent.Amount)
	}))
	return f.reload(t, b.ID)
}

func (f fixture) reload(t *testing.T, id uuid.UUID) *domain.Booking {
	t.Helper()
	b, err := f.svc.Get(context.Background(), f.admin, id)
	require.NoError(t, err)
	return b
}

func (f fixture) ruleBookings(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		r, err := tx.GetRule(ctx, f.rule.ID)
		if err != nil {
			return err
		}
		n = r.CurrentBookings
		return nil
	}))
	return n
}

func (f fixture) outbox(t *testing.T, eventType string) []events.Envelope {
	t.Helper()
	pending, err := f.store.FetchPending(context.Background(), 0)
	require.NoError(t, err)
	var out []events.Envelope
	for _, env := range pending {
		if env.EventType == eventType {
			out = append(out, env)
		}
	}
	return out
}

func TestCreateMondaySchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.book(t, at("11:00"))
	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Equal(t, domain.PaymentPending, b.PaymentStatus)
	assert.Equal(t, at("12:00"), b.EndTime)
	assert.Equal(t, money.Cents(7500), b.Price.ServicePrice)
	assert.Equal(t, money.Cents(1125), b.Price.PlatformFee)
	assert.Equal(t, money.Cents(8625), b.Price.Total)
	require.NotNil(t, b.RuleID)
	assert.Equal(t, f.rule.ID, *b.RuleID)
	assert.Equal(t, 1, f.ruleBookings(t))
	assert.Len(t, f.outbox(t, events.TypeBookingCreated), 1)

	tests := []struct {
		name  string
		start time.Time
		code  string
	}{
		{"overlaps existing booking", at("11:30"), "booking_conflict"},
		{"crosses the break", at("12:30"), "break_overlap"},
		{"runs past closing", at("17:30"), "outside_hours"},
		{"no tuesday schedule", at("11:00").AddDate(0, 0, 1), "no_availability"},
		{"inside platform notice", testNow.Add(time.Hour), "insufficient_notice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.Create(ctx, f.client, f.request(tt.start))
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}

	adjacent := f.book(t, at("10:00"))
	assert.Equal(t, at("11:00"), adjacent.EndTime)
	assert.Equal(t, 2, f.ruleBookings(t))
}

func TestCreateRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, f.pro, f.request(at("11:00")))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	req := f.request(at("11:00"))
	req.Discount = 500
	_, _, err = f.svc.Create(ctx, f.client, req)
	assert.Equal(t, "discount_not_allowed", apperr.CodeOf(err))

	_, _, err = f.svc.Create(ctx, f.admin, req)
	assert.Equal(t, "client_required", apperr.CodeOf(err))

	req.ClientID = &f.client.ID
	b, created, err := f.svc.Create(ctx, f.admin, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, f.client.ID, b.ClientID)
	assert.Equal(t, money.Cents(8125), b.Price.Total)
}

func TestCreateHomeVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request(at("14:00"))
	req.BookingType = domain.BookingHomeVisit
	_, _, err := f.svc.Create(ctx, f.client, req)
	assert.Equal(t, "location_required", apperr.CodeOf(err))

	req.Location = &domain.Location{Address: "12 Harbour St", City: "Sydney"}
	b, _, err := f.svc.Create(ctx, f.client, req)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(1500), b.Price.TravelFee)
	assert.Equal(t, money.Cents(1350), b.Price.PlatformFee)
	assert.Equal(t, money.Cents(10350), b.Price.Total)
}

func TestCreateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(at("11:00"))
	req.IdempotencyKey = "checkout-42"

	first, created, err := f.svc.Create(ctx, f.client, req)
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := f.svc.Create(ctx, f.client, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, f.ruleBookings(t))

	other := domain.Actor{ID: uuid.New(), Role: domain.RoleClient}
	_, _, err = f.svc.Create(ctx, other, req)
	assert.Equal(t, "duplicate_idempotency_key", apperr.CodeOf(err))
}

func TestConcurrentCreatesBookOnce(t *testing.T) {
	f := newFixture(t)
	const attempts = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := domain.Actor{ID: uuid.New(), Role: domain.RoleClient}
			start := at("10:00").Add(time.Duration(i%4) * 15 * time.Minute)
			_, _, err := f.svc.Create(context.Background(), client, f.request(start))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.CodeOf(err) == "booking_conflict":
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
	assert.Equal(t, 1, f.ruleBookings(t))
}

// gatedDirectory holds every caller of GetProfessional until two have arrived.
type gatedDirectory struct {
	directory.Directory
	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func (g *gatedDirectory) GetProfessional(ctx context.Context, id uuid.UUID) (*domain.Professional, error) {
	g.mu.Lock()
	g.arrived++
	if g.arrived == 2 {
		close(g.release)
	}
	g.mu.Unlock()
	<-g.release
	return g.Directory.GetProfessional(ctx, id)
}

func TestConcurrentSameKeyReturnsOneBooking(t *testing.T) {
	f := newFixture(t)
	gated := &gatedDirectory{Directory: f.dir, release: make(chan struct{})}
	svc := NewService(f.store, gated, f.provider, f.ledger, logging.NewWithWriter(io.Discard, "error")).
		WithMinNotice(2 * time.Hour).
		WithClock(func() time.Time { return testNow })
	req := f.request(at("10:00"))
	req.IdempotencyKey = "retry-after-timeout"

	type result struct {
		booking *domain.Booking
		created bool
		err     error
	}
	results := make([]result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, created, err := svc.Create(context.Background(), f.client, req)
			results[i] = result{b, created, err}
		}(i)
	}
	wg.Wait()

	require.NoError(t, results[0].err)
	require.NoError(t, results[1].err)
	assert.True(t, results[0].created != results[1].created, "exactly one request creates the booking")
	assert.Equal(t, results[0].booking.ID, results[1].booking.ID)
	assert.Equal(t, 1, f.ruleBookings(t))
	assert.Len(t, f.outbox(t, events.TypeBookingCreated), 1)
}

func TestCreateCapacityScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.AdjustRuleBookings(ctx, f.rule.ID, 7)
	}))

	_, _, err := f.svc.Create(ctx, f.client, f.request(at("12:30")))
	assert.Equal(t, "break_overlap", apperr.CodeOf(err))
	assert.Equal(t, 7, f.ruleBookings(t))

	f.book(t, at("11:00"))
	assert.Equal(t, 8, f.ruleBookings(t))

	_, _, err = f.svc.Create(ctx, f.client, f.request(at("14:00")))
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "capacity_exceeded", apperr.CodeOf(err))
	assert.Equal(t, 8, f.ruleBookings(t))
}

// outboxDownStore fails every outbox write, which is the last step of a
// booking transaction.
type outboxDownStore struct {
	*memory.Store
}

type outboxDownTx struct {
	store.Tx
}

func (outboxDownTx) InsertOutbox(context.Context, events.Envelope) error {
	return errors.New("outbox unavailable")
}

func (s outboxDownStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, outboxDownTx{tx})
	})
}

func TestCreateRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	svc := NewService(outboxDownStore{f.store}, f.dir, f.provider, f.ledger, logging.NewWithWriter(io.Discard, "error")).
		WithMinNotice(2 * time.Hour).
		WithClock(func() time.Time { return testNow })

	_, _, err := svc.Create(context.Background(), f.client, f.request(at("10:00")))
	require.Error(t, err)
	assert.Zero(t, f.ruleBookings(t))

	b := f.book(t, at("10:00"))
	assert.Equal(t, at("10:00"), b.StartTime)
	assert.Equal(t, 1, f.ruleBookings(t))
}

func TestUpdateRepricesAtSnapshottedFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, at("11:00"))

	// The booking was quoted while the platform fee was 10%.
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		stored, err := tx.GetBookingForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		stored.Price.PlatformFeeBps = 1000
		return tx.UpdateBooking(ctx, stored)
	}))

	homeVisit := domain.BookingHomeVisit
	_, err := f.svc.Update(ctx, f.client, b.ID, UpdateRequest{BookingType: &homeVisit})
	assert.Equal(t, "location_required", apperr.CodeOf(err))

	notes := "  ring the side door  "
	got, err := f.svc.Update(ctx, f.client, b.ID, UpdateRequest{
		BookingType: &homeVisit,
		Location:    &domain.Location{Address: "1 Main St", City: "Springfield"},
		Notes:       &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingHomeVisit, got.BookingType)
	assert.Equal(t, money.Cents(7500), got.Price.ServicePrice)
	assert.Equal(t, money.Cents(1500), got.Price.TravelFee)
	assert.Equal(t, money.Cents(900), got.Price.PlatformFee)
	assert.Equal(t, money.Cents(9900), got.Price.Total)
	assert.Equal(t, 1000, got.Price.PlatformFeeBps)
	assert.Equal(t, "ring the side door", got.ClientNotes)
	assert.Equal(t, b.StartTime, got.StartTime)
	assert.Equal(t, 1, f.ruleBookings(t))

	proNotes := "bring the portable table"
	got, err = f.svc.Update(ctx, f.pro, b.ID, UpdateRequest{Notes: &proNotes})
	require.NoError(t, err)
	assert.Equal(t, proNotes, got.ProfessionalNotes)
	assert.Equal(t, "ring the side door", got.ClientNotes)
	assert.Equal(t, money.Cents(9900), got.Price.Total)

	updates := f.outbox(t, events.TypeBookingUpdated)
	require.Len(t, updates, 2)
	var first events.BookingUpdatedV1
	require.NoError(t, updates[0].Decode(&first))
	assert.Equal(t, int64(8625), first.PreviousTotalCents)
	assert.Equal(t, int64(9900), first.TotalCents)
}

func TestUpdateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	virtual := domain.BookingVirtual
	notes := "note"

	pending := f.book(t, at("10:00"))
	_, err := f.svc.Update(ctx, domain.Actor{ID: uuid.New(), Role: domain.RoleClient}, pending.ID, UpdateRequest{Notes: &notes})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.CreatePaymentIntent(ctx, f.client, pending.ID)
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, f.client, pending.ID, UpdateRequest{BookingType: &virtual})
	assert.Equal(t, "payment_in_progress", apperr.CodeOf(err))
	got, err := f.svc.Update(ctx, f.client, pending.ID, UpdateRequest{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "note", got.ClientNotes)

	paid := f.pay(t, f.book(t, at("14:00")))
	_, err = f.svc.Update(ctx, f.client, paid.ID, UpdateRequest{Notes: &notes})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, "booking_not_pending", apperr.CodeOf(err))

	_, err = f.svc.Update(ctx, f.client, uuid.New(), UpdateRequest{Notes: &notes})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPaymentConfirmsBooking(t *testing.T) {
	f := newFixture(t)
	b := f.pay(t, f.book(t, at("11:00")))

	assert.Equal(t, domain.BookingConfirmed, b.Status)
	assert.Equal(t, domain.PaymentPaid, b.PaymentStatus)
	require.NotNil(t, b.PaymentIntentID)

	req, ok := f.gateway.Request(*b.PaymentIntentID)
	require.True(t, ok)
	assert.Equal(t, money.Cents(8625), req.Amount)
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, b.ID.String(), req.Metadata["booking_id"])

	acc, err := f.ledger.Account(context.Background(), f.pro.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(7500), acc.GrossBalance)
	assert.Equal(t, money.Cents(6375), acc.NetBalance)
	assert.Len(t, f.outbox(t, events.TypeBookingConfirmed), 1)

	// A redelivered success event moves nothing.
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return f.svc.ApplyPaymentSucceeded(ctx, tx, *b.PaymentIntentID, b.Price.Total)
	}))
	acc, err = f.ledger.Account(context.Background(), f.pro.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(7500), acc.GrossBalance)

	_, err = f.svc.CreatePaymentIntent(context.Background(), f.client, b.ID)
	assert.Equal(t, "already_paid", apperr.CodeOf(err))
}

func TestPaymentAmountMismatch(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, at("11:00"))
	intent, err := f.svc.CreatePaymentIntent(context.Background(), f.client, b.ID)
	require.NoError(t, err)

	err = f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return f.svc.ApplyPaymentSucceeded(ctx, tx, intent.IntentID, 100)
	})
	assert.Equal(t, "amount_mismatch", apperr.CodeOf(err))
	assert.Equal(t, domain.PaymentPending, f.reload(t, b.ID).PaymentStatus)
}

func TestPaymentFailureAllowsRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, at("11:00"))

	first, err := f.svc.CreatePaymentIntent(ctx, f.client, b.ID)
	require.NoError(t, err)
	same, err := f.svc.CreatePaymentIntent(ctx, f.client, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first.IntentID, same.IntentID)

	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return f.svc.ApplyPaymentFailed(ctx, tx, first.IntentID)
	}))
	assert.Equal(t, domain.PaymentFailed, f.reload(t, b.ID).PaymentStatus)

	retry, err := f.svc.CreatePaymentIntent(ctx, f.client, b.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.IntentID, retry.IntentID)

	reloaded := f.reload(t, b.ID)
	assert.Equal(t, domain.PaymentPending, reloaded.PaymentStatus)
	assert.Equal(t, retry.IntentID, *reloaded.PaymentIntentID)

	confirmed, err := f.svc.ConfirmPayment(ctx, f.client, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", confirmed.Status)
}

func TestCancelRefundsSettledPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.pay(t, f.book(t, at("11:00")))
	require.Equal(t, 1, f.ruleBookings(t))

	cancelled, err := f.svc.UpdateStatus(ctx, f.client, b.ID, domain.BookingCancelled, "change of plans")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, cancelled.Status)
	assert.Equal(t, domain.PaymentFullyRefunded, cancelled.PaymentStatus)
	assert.Equal(t, "change of plans", cancelled.CancellationNote)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, f.client.ID, *cancelled.CancelledBy)
	assert.Equal(t, 0, f.ruleBookings(t))

	acc, err := f.ledger.Account(ctx, f.pro.ID)
	require.NoError(t, err)
	assert.Zero(t, acc.GrossBalance)
	assert.Zero(t, acc.NetBalance)

	envs := f.outbox(t, events.TypeBookingCancelled)
	require.Len(t, envs, 1)
	var evt events.BookingCancelledV1
	require.NoError(t, envs[0].Decode(&evt))
	assert.Equal(t, int64(7500), evt.RefundCents)
	assert.Equal(t, "client", evt.CancelledBy)

	again := f.book(t, at("11:00"))
	assert.NotEqual(t, b.ID, again.ID, "cancelled bookings release their slot")
}

func TestLatePaymentOnCancelledBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, at("11:00"))
	intent, err := f.svc.CreatePaymentIntent(ctx, f.client, b.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.pro, b.ID, domain.BookingCancelled, "")
	require.NoError(t, err)

	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return f.svc.ApplyPaymentSucceeded(ctx, tx, intent.IntentID, intent.Amount)
	}))

	reloaded := f.reload(t, b.ID)
	assert.Equal(t, domain.BookingCancelled, reloaded.Status)
	assert.Equal(t, domain.PaymentFullyRefunded, reloaded.PaymentStatus)

	acc, err := f.ledger.Account(ctx, f.pro.ID)
	require.NoError(t, err)
	assert.Zero(t, acc.GrossBalance)

	envs := f.outbox(t, events.TypeRefundRequired)
	require.Len(t, envs, 1)
	var evt events.RefundRequiredV1
	require.NoError(t, envs[0].Decode(&evt))
	assert.Equal(t, intent.IntentID, evt.PaymentIntentID)
	assert.Equal(t, int64(8625), evt.AmountCents)
}

func TestRescheduleCarriesPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := f.pay(t, f.book(t, at("11:00")))

	_, err := f.svc.Reschedule(ctx, f.client, original.ID, at("12:30"), "")
	assert.Equal(t, "break_overlap", apperr.CodeOf(err))

	moved, err := f.svc.Reschedule(ctx, f.client, original.ID, at("14:00"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, moved.Status)
	assert.Equal(t, domain.PaymentPaid, moved.PaymentStatus)
	assert.Equal(t, at("15:00"), moved.EndTime)
	assert.Equal(t, original.Price, moved.Price)
	assert.Equal(t, original.PaymentIntentID, moved.PaymentIntentID)
	require.NotNil(t, moved.RescheduledFrom)
	assert.Equal(t, original.ID, *moved.RescheduledFrom)
	assert.Equal(t, "Rescheduled from 2026-03-02T11:00:00Z", moved.ProfessionalNotes)
	assert.Equal(t, 1, f.ruleBookings(t))

	old := f.reload(t, original.ID)
	assert.Equal(t, domain.BookingRescheduled, old.Status)
	assert.Nil(t, old.PaymentIntentID)
	require.NotNil(t, old.RescheduledTo)
	assert.Equal(t, moved.ID, *old.RescheduledTo)

	_, err = f.svc.Reschedule(ctx, f.client, original.ID, at("16:00"), "")
	assert.Equal(t, "cannot_reschedule", apperr.CodeOf(err))

	f.book(t, at("11:00"))

	cancelled, err := f.svc.UpdateStatus(ctx, f.client, moved.ID, domain.BookingCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFullyRefunded, cancelled.PaymentStatus)
	acc, err := f.ledger.Account(ctx, f.pro.ID)
	require.NoError(t, err)
	assert.Zero(t, acc.GrossBalance, "refund follows the reschedule lineage")
}

func TestRescheduleWithinOwnSlot(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, at("10:00"))

	moved, err := f.svc.Reschedule(context.Background(), f.pro, b.ID, at("10:30"), "running late")
	require.NoError(t, err)
	assert.Equal(t, at("10:30"), moved.StartTime)
	assert.Equal(t, "running late", moved.ProfessionalNotes)
}

func TestPartialRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.pay(t, f.book(t, at("11:00")))

	_, err := f.svc.Refund(ctx, f.client, b.ID, nil, "")
	assert.Equal(t, "refund_not_allowed", apperr.CodeOf(err))

	part := money.Cents(2500)
	refunded, err := f.svc.Refund(ctx, f.pro, b.ID, &part, "late arrival")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPartiallyRefunded, refunded.PaymentStatus)

	refunded, err = f.svc.Refund(ctx, f.admin, b.ID, nil, "")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFullyRefunded, refunded.PaymentStatus)

	_, err = f.svc.Refund(ctx, f.admin, b.ID, nil, "")
	assert.Equal(t, "payment_not_settled", apperr.CodeOf(err))
	assert.Len(t, f.outbox(t, events.TypeRefundRequired), 2)
}

func TestCompleteReviewDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.pay(t, f.book(t, at("11:00")))

	_, err := f.svc.AddReview(ctx, f.client, b.ID, 5, "great")
	assert.Equal(t, "booking_not_completed", apperr.CodeOf(err))
	assert.Equal(t, "booking_not_finished", apperr.CodeOf(f.svc.Delete(ctx, f.client, b.ID)))

	_, err = f.svc.UpdateStatus(ctx, f.client, b.ID, domain.BookingCompleted, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	done, err := f.svc.UpdateStatus(ctx, f.pro, b.ID, domain.BookingCompleted, "all good")
	require.NoError(t, err)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, "all good", done.ProfessionalNotes)

	_, err = f.svc.UpdateStatus(ctx, f.pro, b.ID, domain.BookingCancelled, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = f.svc.AddReview(ctx, f.client, b.ID, 6, "")
	assert.Equal(t, "invalid_rating", apperr.CodeOf(err))
	reviewed, err := f.svc.AddReview(ctx, f.client, b.ID, 5, "great")
	require.NoError(t, err)
	assert.Equal(t, 5, *reviewed.Rating)
	_, err = f.svc.AddReview(ctx, f.client, b.ID, 4, "")
	assert.Equal(t, "already_reviewed", apperr.CodeOf(err))

	require.NoError(t, f.svc.Delete(ctx, f.client, b.ID))
	_, err = f.svc.Get(ctx, f.admin, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListScopesToActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.book(t, at("10:00"))
	other := domain.Actor{ID: uuid.New(), Role: domain.RoleClient}
	_, _, err := f.svc.Create(ctx, other, f.request(at("14:00")))
	require.NoError(t, err)

	got, err := f.svc.List(ctx, f.client, ListQuery{ClientID: &other.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)

	got, err = f.svc.List(ctx, f.pro, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = f.svc.List(ctx, f.admin, ListQuery{Upcoming: true})
	require.NoError(t, err)
	assert.Empty(t, got, "upcoming defaults to confirmed bookings")

	_, err = f.svc.Get(ctx, other, mine.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestHandlerCreateAndReplay(t *testing.T) {
	f := newFixture(t)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(domain.WithActor(req.Context(), f.client)))
		})
	})
	NewHandler(f.svc, logging.NewWithWriter(io.Discard, "error")).Register(r)

	body, err := json.Marshal(map[string]any{
		"professionalId": f.pro.ID,
		"serviceId":      f.service.ID,
		"startTime":      at("11:00"),
	})
	require.NoError(t, err)
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewReader(body))
		req.Header.Set("Idempotency-Key", "web-1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	var created domain.Booking
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))
	assert.Equal(t, money.Cents(8625), created.Price.Total)

	replay := send()
	assert.Equal(t, http.StatusOK, replay.Code)

	rec := httptest.NewRecorder()
	edit := `{"bookingType":"home_visit","location":{"address":"1 Main St","city":"Springfield"}}`
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/bookings/"+created.ID.String(), strings.NewReader(edit)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var edited domain.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &edited))
	assert.Equal(t, money.Cents(10350), edited.Price.Total)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/bookings/"+created.ID.String(), strings.NewReader(`{"startTime":"2026-03-02T14:00:00Z"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/bookings/"+created.ID.String()+"/reschedule?newStartTime=2026-03-02T12:30:00Z", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "break_overlap"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/bookings/"+created.ID.String()+"/status?status=cancelled", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
