package booking_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"ms-activity/internal/booking"
	"ms-activity/internal/booking/db"
	"ms-activity/internal/database/dbtest"
	"ms-activity/internal/logger"
	"ms-activity/internal/models"
	"ms-activity/internal/utils"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

// stateChanges returns the booking events published so far.
func (m *MockPublisher) stateChanges() []models.BookingStateChangedEvent {
	var events []models.BookingStateChangedEvent
	for _, call := range m.Calls {
		if e, ok := call.Arguments.Get(3).(models.BookingStateChangedEvent); ok {
			events = append(events, e)
		}
	}
	return events
}

type testEnv struct {
	svc *booking.Service
	db  *db.DB
	fx  *dbtest.Fixtures
	pub *MockPublisher
}

// newTestEnv builds a service on a fresh database with the clock at the
// fixture base instant, inside the default period's wishlist window.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	bunDB := dbtest.NewSQLite(t)
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	database := db.New(bunDB)
	svc := booking.NewService(database, pub, logger.Discard(), 3)
	svc.Now = utils.FixedClock(dbtest.Base)
	return &testEnv{svc: svc, db: database, fx: dbtest.NewFixtures(t, bunDB), pub: pub}
}

// inBookingWindow moves the clock into the default period's booking window.
func (e *testEnv) inBookingWindow() {
	e.svc.Now = utils.FixedClock(dbtest.Base.AddDate(0, 0, 15))
}

func (e *testEnv) reload(t *testing.T, b *models.Booking) *models.Booking {
	t.Helper()
	got, err := e.db.GetBooking(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("reload booking %s: %v", b.ID, err)
	}
	return got
}
