package models

import (
	"time"

	"github.com/google/uuid"
)

// Kafka topics carrying domain events.
const (
	TopicBookingStateChanged = "activity.bookings.state"
	TopicMatchingCompleted   = "activity.matching.completed"
	TopicInvoicesCreated     = "activity.invoices.created"
	TopicPaymentReceived     = "activity.payments.received"
)

var Topics = []string{
	TopicBookingStateChanged,
	TopicMatchingCompleted,
	TopicInvoicesCreated,
	TopicPaymentReceived,
}

type BookingStateChangedEvent struct {
	EventID    string       `json:"event_id"`
	BookingID  string       `json:"booking_id"`
	PeriodID   string       `json:"period_id"`
	OccasionID string       `json:"occasion_id"`
	Username   string       `json:"username"`
	From       BookingState `json:"from"`
	To         BookingState `json:"to"`
	Timestamp  time.Time    `json:"timestamp"`
}

func NewBookingStateChangedEvent(b *Booking, from BookingState) BookingStateChangedEvent {
	return BookingStateChangedEvent{
		EventID:    uuid.NewString(),
		BookingID:  b.ID,
		PeriodID:   b.PeriodID,
		OccasionID: b.OccasionID,
		Username:   b.Username,
		From:       from,
		To:         b.State,
		Timestamp:  time.Now().UTC(),
	}
}

type MatchingCompletedEvent struct {
	EventID     string    `json:"event_id"`
	PeriodID    string    `json:"period_id"`
	Accepted    int       `json:"accepted"`
	Denied      int       `json:"denied"`
	Happiness   float64   `json:"happiness"`
	Operability float64   `json:"operability"`
	Timestamp   time.Time `json:"timestamp"`
}

type InvoicesCreatedEvent struct {
	EventID   string    `json:"event_id"`
	PeriodID  string    `json:"period_id"`
	Invoices  int       `json:"invoices"`
	Finalized bool      `json:"finalized"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentReceivedEvent is consumed from the payments topic. Reference is
// any invoice reference regardless of scheme.
type PaymentReceivedEvent struct {
	Reference string    `json:"reference"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}
