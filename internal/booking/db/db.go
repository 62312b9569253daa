package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-activity/internal/database"
	"ms-activity/internal/models"
)

// DB holds the period, occasion, attendee and booking queries. Bun is either
// the pool or a transaction handed out by RunInTx.
type DB struct {
	Bun bun.IDB
}

func New(db bun.IDB) *DB {
	return &DB{Bun: db}
}

// RunInTx runs fn with a DB bound to a single transaction.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &DB{Bun: tx})
	})
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
	}
	return err
}

// Periods

func (d *DB) CreatePeriod(ctx context.Context, p *models.Period) error {
	_, err := d.Bun.NewInsert().Model(p).Exec(ctx)
	return err
}

func (d *DB) UpdatePeriod(ctx context.Context, p *models.Period) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := d.Bun.NewUpdate().
		Model(p).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	return err
}

func (d *DB) GetPeriod(ctx context.Context, id string) (*models.Period, error) {
	var p models.Period
	err := d.Bun.NewSelect().
		Model(&p).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "period", id)
	}
	return &p, nil
}

func (d *DB) ListPeriods(ctx context.Context) ([]models.Period, error) {
	var periods []models.Period
	err := d.Bun.NewSelect().
		Model(&periods).
		Order("prebooking_start DESC", "id").
		Scan(ctx)
	return periods, err
}

// DeactivateOthers clears the active flag of every period except id.
func (d *DB) DeactivateOthers(ctx context.Context, id string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Period)(nil)).
		Set("active = ?", false).
		Where("id <> ?", id).
		Where("active = ?", true).
		Exec(ctx)
	return err
}

func (d *DB) ListArchivablePeriods(ctx context.Context, now time.Time) ([]models.Period, error) {
	var periods []models.Period
	err := d.Bun.NewSelect().
		Model(&periods).
		Where("finalized = ?", true).
		Where("archived = ?", false).
		Where("execution_end < ?", now).
		Order("execution_end").
		Scan(ctx)
	return periods, err
}

// DeletePeriod removes a period and everything hanging off it, children
// before parents so no foreign key is ever violated.
func (d *DB) DeletePeriod(ctx context.Context, periodID string) error {
	invoices := d.Bun.NewSelect().
		Model((*models.Invoice)(nil)).
		Column("id").
		Where("period_id = ?", periodID)
	occasions := d.Bun.NewSelect().
		Model((*models.Occasion)(nil)).
		Column("id").
		Where("period_id = ?", periodID)

	steps := []struct {
		model interface{}
		where string
		arg   interface{}
	}{
		{(*models.InvoiceItem)(nil), "invoice_id IN (?)", invoices},
		{(*models.InvoiceReference)(nil), "invoice_id IN (?)", invoices},
		{(*models.Invoice)(nil), "period_id = ?", periodID},
		{(*models.Booking)(nil), "period_id = ?", periodID},
		{(*models.OccasionDate)(nil), "occasion_id IN (?)", occasions},
		{(*models.OccasionNeed)(nil), "occasion_id IN (?)", occasions},
		{(*models.Occasion)(nil), "period_id = ?", periodID},
		{(*models.Period)(nil), "id = ?", periodID},
	}
	for _, s := range steps {
		q := d.Bun.NewDelete().Model(s.model).Where(s.where, s.arg)
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("delete %s: %w", q.GetTableName(), err)
		}
	}
	return nil
}

// Activities

func (d *DB) CreateActivity(ctx context.Context, a *models.Activity) error {
	_, err := d.Bun.NewInsert().Model(a).Exec(ctx)
	return err
}

func (d *DB) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	var a models.Activity
	err := d.Bun.NewSelect().Model(&a).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "activity", id)
	}
	return &a, nil
}

// Occasions

func (d *DB) CreateOccasion(ctx context.Context, o *models.Occasion) error {
	if _, err := d.Bun.NewInsert().Model(o).Exec(ctx); err != nil {
		return err
	}
	for _, date := range o.Dates {
		date.OccasionID = o.ID
		if err := d.CreateOccasionDate(ctx, date); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) GetOccasion(ctx context.Context, id string) (*models.Occasion, error) {
	var o models.Occasion
	err := d.Bun.NewSelect().
		Model(&o).
		Relation("Dates", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("start_at", "id")
		}).
		Where("occasion.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "occasion", id)
	}
	return &o, nil
}

// LockOccasion reloads the occasion, holding its row lock on Postgres until
// the transaction ends.
func (d *DB) LockOccasion(ctx context.Context, id string) (*models.Occasion, error) {
	var o models.Occasion
	q := d.Bun.NewSelect().Model(&o).Where("id = ?", id).Limit(1)
	if err := database.ForUpdate(d.Bun, q).Scan(ctx); err != nil {
		return nil, notFound(err, "occasion", id)
	}
	var dates []*models.OccasionDate
	err := d.Bun.NewSelect().
		Model(&dates).
		Where("occasion_id = ?", id).
		Order("start_at", "id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	o.Dates = dates
	return &o, nil
}

func (d *DB) ListOccasions(ctx context.Context, periodID string) ([]*models.Occasion, error) {
	var occasions []*models.Occasion
	err := d.Bun.NewSelect().
		Model(&occasions).
		Relation("Dates", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("start_at", "id")
		}).
		Where("occasion.period_id = ?", periodID).
		Order("occasion.created_at", "occasion.id").
		Scan(ctx)
	return occasions, err
}

// ListOccasionsByID loads the given occasions with their dates, keyed by id.
func (d *DB) ListOccasionsByID(ctx context.Context, ids []string) (map[string]*models.Occasion, error) {
	result := make(map[string]*models.Occasion, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var occasions []*models.Occasion
	err := d.Bun.NewSelect().
		Model(&occasions).
		Relation("Dates").
		Where("occasion.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range occasions {
		result[o.ID] = o
	}
	return result, nil
}

func (d *DB) UpdateOccasion(ctx context.Context, o *models.Occasion) error {
	_, err := d.Bun.NewUpdate().
		Model(o).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	return err
}

// SyncBookingPeriod copies the occasion's period onto its bookings.
func (d *DB) SyncBookingPeriod(ctx context.Context, occasionID, periodID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("period_id = ?", periodID).
		Where("occasion_id = ?", occasionID).
		Exec(ctx)
	return err
}

func (d *DB) CreateOccasionDate(ctx context.Context, date *models.OccasionDate) error {
	_, err := d.Bun.NewInsert().Model(date).Exec(ctx)
	return err
}

func (d *DB) GetOccasionDate(ctx context.Context, id string) (*models.OccasionDate, error) {
	var date models.OccasionDate
	err := d.Bun.NewSelect().Model(&date).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "occasion date", id)
	}
	return &date, nil
}

func (d *DB) UpdateOccasionDate(ctx context.Context, date *models.OccasionDate) error {
	_, err := d.Bun.NewUpdate().
		Model(date).
		Column("start_at", "end_at", "timezone").
		WherePK().
		Exec(ctx)
	return err
}

func (d *DB) DeleteOccasionDate(ctx context.Context, id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.OccasionDate)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (d *DB) CreateOccasionNeed(ctx context.Context, need *models.OccasionNeed) error {
	_, err := d.Bun.NewInsert().Model(need).Exec(ctx)
	return err
}

// Attendees

func (d *DB) CreateAttendee(ctx context.Context, a *models.Attendee) error {
	_, err := d.Bun.NewInsert().Model(a).Exec(ctx)
	return err
}

func (d *DB) GetAttendee(ctx context.Context, id string) (*models.Attendee, error) {
	var a models.Attendee
	err := d.Bun.NewSelect().Model(&a).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "attendee", id)
	}
	return &a, nil
}

// LockAttendee loads the attendee and locks its row until the transaction
// ends. Checks over all bookings of an attendee (overlap, limits, stars)
// run under this lock. It is taken before any occasion lock.
func (d *DB) LockAttendee(ctx context.Context, id string) (*models.Attendee, error) {
	var a models.Attendee
	q := d.Bun.NewSelect().Model(&a).Where("id = ?", id).Limit(1)
	if err := database.ForUpdate(d.Bun, q).Scan(ctx); err != nil {
		return nil, notFound(err, "attendee", id)
	}
	return &a, nil
}

// TryLockAttendee is LockAttendee without waiting. It returns nil when the
// row is locked by another transaction.
func (d *DB) TryLockAttendee(ctx context.Context, id string) (*models.Attendee, error) {
	var a models.Attendee
	q := d.Bun.NewSelect().Model(&a).Where("id = ?", id).Limit(1)
	err := database.ForUpdateSkipLocked(d.Bun, q).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *DB) ListAttendees(ctx context.Context, username string) ([]models.Attendee, error) {
	var attendees []models.Attendee
	q := d.Bun.NewSelect().Model(&attendees).Order("name", "id")
	if username != "" {
		q = q.Where("username = ?", username)
	}
	err := q.Scan(ctx)
	return attendees, err
}

// ListAttendeesByID loads the given attendees keyed by id.
func (d *DB) ListAttendeesByID(ctx context.Context, ids []string) (map[string]*models.Attendee, error) {
	result := make(map[string]*models.Attendee, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var attendees []*models.Attendee
	err := d.Bun.NewSelect().
		Model(&attendees).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range attendees {
		result[a.ID] = a
	}
	return result, nil
}

// Bookings

func (d *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	_, err := d.Bun.NewInsert().Model(b).Exec(ctx)
	return err
}

func (d *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().Model(&b).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return &b, nil
}

func (d *DB) BookingExists(ctx context.Context, attendeeID, occasionID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("attendee_id = ?", attendeeID).
		Where("occasion_id = ?", occasionID).
		Exists(ctx)
}

// UpdateBooking persists the mutable booking fields.
func (d *DB) UpdateBooking(ctx context.Context, b *models.Booking) error {
	b.UpdatedAt = time.Now().UTC()
	_, err := d.Bun.NewUpdate().
		Model(b).
		Column("state", "priority", "group_code", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

// BookingFilter narrows ListBookings. Empty fields match everything.
type BookingFilter struct {
	PeriodID   string
	OccasionID string
	AttendeeID string
	Username   string
	States     []models.BookingState
}

func (d *DB) ListBookings(ctx context.Context, f BookingFilter) ([]*models.Booking, error) {
	var bookings []*models.Booking
	q := d.Bun.NewSelect().Model(&bookings)
	if f.PeriodID != "" {
		q = q.Where("period_id = ?", f.PeriodID)
	}
	if f.OccasionID != "" {
		q = q.Where("occasion_id = ?", f.OccasionID)
	}
	if f.AttendeeID != "" {
		q = q.Where("attendee_id = ?", f.AttendeeID)
	}
	if f.Username != "" {
		q = q.Where("username = ?", f.Username)
	}
	if len(f.States) > 0 {
		q = q.Where("state IN (?)", bun.In(f.States))
	}
	err := q.Order("created_at", "id").Scan(ctx)
	return bookings, err
}

func (d *DB) CountBookings(ctx context.Context, f BookingFilter) (int, error) {
	q := d.Bun.NewSelect().Model((*models.Booking)(nil))
	if f.PeriodID != "" {
		q = q.Where("period_id = ?", f.PeriodID)
	}
	if f.OccasionID != "" {
		q = q.Where("occasion_id = ?", f.OccasionID)
	}
	if f.AttendeeID != "" {
		q = q.Where("attendee_id = ?", f.AttendeeID)
	}
	if len(f.States) > 0 {
		q = q.Where("state IN (?)", bun.In(f.States))
	}
	return q.Count(ctx)
}

// CountStarred counts the attendee's starred bookings in a period, leaving
// out excludeID and cancelled bookings.
func (d *DB) CountStarred(ctx context.Context, attendeeID, periodID, excludeID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("attendee_id = ?", attendeeID).
		Where("period_id = ?", periodID).
		Where("id <> ?", excludeID).
		Where("priority > 0").
		Where("state <> ?", models.BookingCancelled).
		Count(ctx)
}

// SetBookingStates moves the given bookings to state in one statement.
func (d *DB) SetBookingStates(ctx context.Context, ids []string, state models.BookingState) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("state = ?", state).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	return err
}

// MoveBookings changes every booking of the period currently in one of from
// to state, returning the number of rows touched.
func (d *DB) MoveBookings(ctx context.Context, periodID string, from []models.BookingState, to models.BookingState) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("state = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("period_id = ?", periodID).
		Where("state IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
