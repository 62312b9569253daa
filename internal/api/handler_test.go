package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-activity/internal/analytics"
	"ms-activity/internal/api"
	"ms-activity/internal/billing"
	billingdb "ms-activity/internal/billing/db"
	"ms-activity/internal/booking"
	bookingdb "ms-activity/internal/booking/db"
	"ms-activity/internal/database/dbtest"
	"ms-activity/internal/kafka"
	"ms-activity/internal/lock"
	"ms-activity/internal/logger"
	"ms-activity/internal/matching"
	"ms-activity/internal/models"
	"ms-activity/internal/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	handler http.Handler
	fx      *dbtest.Fixtures
	locker  lock.Locker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	bunDB := dbtest.NewSQLite(t)
	log := logger.Discard()
	clock := utils.FixedClock(dbtest.Base)

	bookings := booking.NewService(bookingdb.New(bunDB), kafka.Discard{}, log, 3)
	bookings.Now = clock
	matcher := matching.NewService(bookingdb.New(bunDB), kafka.Discard{}, log)
	bills := billing.NewService(billingdb.New(bunDB), kafka.Discard{}, log, billing.NewReferencer("123456"), billing.Settings{
		Currency:     "CHF",
		CreditorName: "Holiday Pass Association",
		CreditorIBAN: "CH44 3199 9123 0008 8901 2",
	})
	bills.Now = clock
	sqlAgg := analytics.NewSQL(bunDB)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	locker := lock.NewRedisLocker(client, lock.NewRegistry(true), time.Minute, log)

	h := api.NewHandler(bookings, matcher, bills, analytics.NewService(sqlAgg, sqlAgg), locker, log, "admin")
	return &testServer{handler: h.Routes(), fx: dbtest.NewFixtures(t, bunDB), locker: locker}
}

func token(t *testing.T, username string, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": username, "preferred_username": username}
	if len(roles) > 0 {
		claims["realm_access"] = map[string]interface{}{"roles": roles}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("gateway"))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") != "image/png" && rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestRoutes_Authentication(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/periods", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/periods", token(t, "anna"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/periods", token(t, "anna"), map[string]string{"title": "Autumn"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)
	p := s.fx.Period()
	o := s.fx.Occasion(p, 1, 2)
	anna := token(t, "anna")

	rec, env := s.do(t, http.MethodPost, "/api/attendees", anna, map[string]interface{}{
		"name":       "Lea",
		"birth_date": dbtest.Base.AddDate(-9, 0, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var attendee models.Attendee
	require.NoError(t, json.Unmarshal(env.Data, &attendee))
	assert.Equal(t, "anna", attendee.Username)

	rec, env = s.do(t, http.MethodPost, "/api/bookings", anna, map[string]string{
		"occasion_id": o.ID,
		"attendee_id": attendee.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var b models.Booking
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.Equal(t, models.BookingOpen, b.State)

	rec, env = s.do(t, http.MethodPost, "/api/bookings", anna, map[string]string{
		"occasion_id": o.ID,
		"attendee_id": attendee.ID,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "DUPLICATE_BOOKING", env.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/star", token(t, "bert"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users must not see the booking")

	rec, _ = s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/star", anna, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodGet, "/api/bookings?period="+p.ID, anna, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Booking
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, 1, listed[0].Priority)

	rec, env = s.do(t, http.MethodGet, "/api/bookings?period="+p.ID, token(t, "bert"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Empty(t, listed)

	rec, _ = s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/accept", anna, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/cancel", anna, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.Equal(t, models.BookingCancelled, b.State)
}

func TestCreateOccasion_Validation(t *testing.T) {
	s := newTestServer(t)
	p := s.fx.Period()
	a := s.fx.Activity()
	anna := token(t, "anna")

	rec, env := s.do(t, http.MethodPost, "/api/occasions", anna, map[string]interface{}{
		"activity_id": a.ID,
		"period_id":   p.ID,
		"spots":       map[string]int{"min": 5, "max": 2},
		"age":         map[string]int{"min": 6, "max": 12},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_RANGE", env.Code)

	start := p.ExecutionStart.Add(9 * time.Hour)
	rec, env = s.do(t, http.MethodPost, "/api/occasions", anna, map[string]interface{}{
		"activity_id": a.ID,
		"period_id":   p.ID,
		"spots":       map[string]int{"min": 2, "max": 8},
		"age":         map[string]int{"min": 6, "max": 12},
		"cost":        15,
		"dates":       []map[string]interface{}{{"start": start, "end": start.Add(3 * time.Hour)}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o models.Occasion
	require.NoError(t, json.Unmarshal(env.Data, &o))
	assert.Equal(t, 8, o.Spots.Max())
	assert.Equal(t, models.DurationHalf, o.Durations)

	rec, env = s.do(t, http.MethodGet, "/api/occasions/missing", anna, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestMatchingAndBilling(t *testing.T) {
	s := newTestServer(t)
	p := s.fx.Period()
	o := s.fx.Occasion(p, 1, 1, func(o *models.Occasion) { o.Cost = 40 })
	s.fx.Booking(s.fx.Attendee("anna", 9), o, dbtest.Starred)
	s.fx.Booking(s.fx.Attendee("bert", 9), o)
	admin := token(t, "root", "admin")

	rec, env := s.do(t, http.MethodPost, "/api/periods/"+p.ID+"/matching", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary matching.Summary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.Accepted)
	assert.Equal(t, 1, summary.Denied)

	rec, env = s.do(t, http.MethodGet, "/api/periods/"+p.ID+"/matching?state=full", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report analytics.Report
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.Len(t, report.Occasions, 1)
	assert.InDelta(t, 0.5, report.Happiness, 1e-9)

	rec, env = s.do(t, http.MethodPost, "/api/periods/"+p.ID+"/invoices", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PERIOD_NOT_CONFIRMED", env.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/periods/"+p.ID+"/confirm", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/api/periods/"+p.ID+"/invoices", admin, map[string]bool{"finalize": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CONFIRMATION_REQUIRED", env.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/periods/"+p.ID+"/invoices", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodGet, "/api/periods/"+p.ID+"/invoices", token(t, "anna"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var invoices []models.Invoice
	require.NoError(t, json.Unmarshal(env.Data, &invoices))
	require.Len(t, invoices, 1)
	assert.Equal(t, "anna", invoices[0].Username)
	assert.InDelta(t, 40, invoices[0].Total(), 1e-9)

	rec, _ = s.do(t, http.MethodGet, "/api/invoices/"+invoices[0].ID, token(t, "bert"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/invoices/"+invoices[0].ID+"/qr", token(t, "anna"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte("\x89PNG"), rec.Body.Bytes()[:4])

	rec, env = s.do(t, http.MethodPost, "/api/invoices/"+invoices[0].ID+"/paid", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var paid models.Invoice
	require.NoError(t, json.Unmarshal(env.Data, &paid))
	assert.True(t, paid.Paid())
}

func TestPeriodLockContention(t *testing.T) {
	s := newTestServer(t)
	p := s.fx.Period()
	ctx := context.Background()

	lease, err := s.locker.TryLock(ctx, lock.NamespacePeriod, p.ID)
	require.NoError(t, err)

	rec, env := s.do(t, http.MethodPost, "/api/periods/"+p.ID+"/matching", token(t, "root", "admin"), nil)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "LOCKED", env.Code)

	require.NoError(t, lease.Unlock(ctx))
	rec, _ = s.do(t, http.MethodPost, "/api/periods/"+p.ID+"/matching", token(t, "root", "admin"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
