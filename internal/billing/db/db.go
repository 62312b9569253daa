package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-activity/internal/database"
	"ms-activity/internal/models"
)

// DB holds the invoice queries. Bun is either the pool or a transaction
// handed out by RunInTx.
type DB struct {
	Bun bun.IDB
}

func New(db bun.IDB) *DB {
	return &DB{Bun: db}
}

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

// LockPeriod loads the period, holding its row lock on Postgres so two
// billing runs of one period serialize.
func (d *DB) LockPeriod(ctx context.Context, id string) (*models.Period, error) {
	var p models.Period
	q := d.Bun.NewSelect().Model(&p).Where("id = ?", id).Limit(1)
	if err := database.ForUpdate(d.Bun, q).Scan(ctx); err != nil {
		return nil, notFound(err, "period", id)
	}
	return &p, nil
}

func (d *DB) FinalizePeriod(ctx context.Context, id string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Period)(nil)).
		Set("finalized = ?", true).
		Set("confirmed = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// AcceptedBookings loads the accepted bookings of a period together with
// their occasion, its dates and activity, and the attendee.
func (d *DB) AcceptedBookings(ctx context.Context, periodID string) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Relation("Occasion").
		Relation("Occasion.Activity").
		Relation("Occasion.Dates").
		Relation("Attendee").
		Where("booking.period_id = ?", periodID).
		Where("booking.state = ?", models.BookingAccepted).
		Order("booking.username", "booking.created_at", "booking.id").
		Scan(ctx)
	return bookings, err
}

// UsernamesWithTag lists the users carrying tag.
func (d *DB) UsernamesWithTag(ctx context.Context, tag string) ([]string, error) {
	var usernames []string
	err := d.Bun.NewSelect().
		Model((*models.UserTag)(nil)).
		Column("username").
		Where("tag = ?", tag).
		Order("username").
		Scan(ctx, &usernames)
	return usernames, err
}

// Invoices

func (d *DB) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	_, err := d.Bun.NewInsert().Model(inv).Exec(ctx)
	return err
}

func invoiceRelations(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("created_at", "id")
		}).
		Relation("References", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("scheme")
		})
}

func (d *DB) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	var inv models.Invoice
	err := invoiceRelations(d.Bun.NewSelect().Model(&inv)).
		Where("invoice.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return &inv, nil
}

// InvoiceFor returns the invoice of username in the period, or
// models.ErrNotFound.
func (d *DB) InvoiceFor(ctx context.Context, periodID, username string) (*models.Invoice, error) {
	var inv models.Invoice
	err := invoiceRelations(d.Bun.NewSelect().Model(&inv)).
		Where("invoice.period_id = ?", periodID).
		Where("invoice.username = ?", username).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "invoice of", username)
	}
	return &inv, nil
}

// ListInvoices lists the invoices of a period, optionally of one user.
func (d *DB) ListInvoices(ctx context.Context, periodID, username string) ([]*models.Invoice, error) {
	var invoices []*models.Invoice
	q := invoiceRelations(d.Bun.NewSelect().Model(&invoices)).
		Where("invoice.period_id = ?", periodID)
	if username != "" {
		q = q.Where("invoice.username = ?", username)
	}
	err := q.Order("invoice.username").Scan(ctx)
	return invoices, err
}

// Items

func (d *DB) CreateItem(ctx context.Context, item *models.InvoiceItem) error {
	_, err := d.Bun.NewInsert().Model(item).Exec(ctx)
	return err
}

func (d *DB) GetItem(ctx context.Context, id string) (*models.InvoiceItem, error) {
	var item models.InvoiceItem
	err := d.Bun.NewSelect().Model(&item).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "invoice item", id)
	}
	return &item, nil
}

// UpdateItemContent rewrites what an item bills for. Payment state is
// left alone.
func (d *DB) UpdateItemContent(ctx context.Context, item *models.InvoiceItem) error {
	_, err := d.Bun.NewUpdate().
		Model(item).
		Column("item_group", "text", "amount").
		WherePK().
		Exec(ctx)
	return err
}

func (d *DB) DeleteItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := d.Bun.NewDelete().
		Model((*models.InvoiceItem)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	return err
}

func (d *DB) SetItemPaid(ctx context.Context, id string, paid bool) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.InvoiceItem)(nil)).
		Set("paid = ?", paid).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// SetInvoicePaid marks every item of the invoice.
func (d *DB) SetInvoicePaid(ctx context.Context, invoiceID string, paid bool) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.InvoiceItem)(nil)).
		Set("paid = ?", paid).
		Where("invoice_id = ?", invoiceID).
		Exec(ctx)
	return err
}

// References

func (d *DB) CreateReference(ctx context.Context, ref *models.InvoiceReference) error {
	_, err := d.Bun.NewInsert().Model(ref).Exec(ctx)
	return err
}

func (d *DB) ReferenceExists(ctx context.Context, scheme models.ReferenceScheme, reference string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.InvoiceReference)(nil)).
		Where("scheme = ?", scheme).
		Where("reference = ?", reference).
		Exists(ctx)
}

// FindReference looks a normalized reference up across all schemes.
func (d *DB) FindReference(ctx context.Context, reference string) (*models.InvoiceReference, error) {
	var ref models.InvoiceReference
	err := d.Bun.NewSelect().
		Model(&ref).
		Where("reference = ?", reference).
		Order("scheme").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "invoice reference", reference)
	}
	return &ref, nil
}
