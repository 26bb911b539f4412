package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

type badEvent struct{}

func (badEvent) EventType() string { return "" }

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	env, err := NewEnvelope("professional:123", "corr-1", BookingConfirmedV1{
		BookingSnapshot: BookingSnapshot{BookingID: "b-1", TotalCents: 10350, Status: "confirmed"},
		ConfirmedAt:     fixedNow,
	}, WithEventID(id))
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if env.EventID != id {
		t.Fatalf("expected event id override, got %s", env.EventID)
	}
	if env.TimestampMicros != fixedNow.UnixMicro() {
		t.Fatalf("unexpected timestamp: %d", env.TimestampMicros)
	}
	if !env.OccurredAt().Equal(fixedNow) {
		t.Fatalf("unexpected occurred at: %s", env.OccurredAt())
	}
	if env.EventType != TypeBookingConfirmed {
		t.Fatalf("unexpected type: %s", env.EventType)
	}
	if env.Aggregate != "professional:123" {
		t.Fatalf("unexpected aggregate: %s", env.Aggregate)
	}

	var decoded BookingConfirmedV1
	if err := env.Decode(&decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.BookingID != "b-1" || decoded.TotalCents != 10350 {
		t.Fatalf("unexpected payload: %#v", decoded)
	}
}

func TestNewEnvelopeValidation(t *testing.T) {
	if _, err := NewEnvelope(" ", "", BookingCreatedV1{}); err != errMissingAggregate {
		t.Fatalf("expected missing aggregate error, got %v", err)
	}
	if _, err := NewEnvelope("professional:1", "", nil); err != errNilEvent {
		t.Fatalf("expected nil event error, got %v", err)
	}
	if _, err := NewEnvelope("professional:1", "", badEvent{}); err == nil {
		t.Fatal("expected error for empty event type")
	}
}

func TestWithTimestampIgnoresZero(t *testing.T) {
	env := Envelope{TimestampMicros: 42}
	WithTimestamp(time.Time{})(&env)
	if env.TimestampMicros != 42 {
		t.Fatalf("zero timestamp should not override, got %d", env.TimestampMicros)
	}
}
