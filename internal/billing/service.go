// Package billing turns accepted bookings into invoices and tracks their
// payment.
package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-activity/internal/billing/db"
	"ms-activity/internal/logger"
	"ms-activity/internal/models"
	"ms-activity/internal/utils"
)

type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Settings are the billing defaults taken from the configuration.
type Settings struct {
	Currency       string
	CreditorName   string
	CreditorIBAN   string
	Schemes        []models.ReferenceScheme
	QRCodeSize     int
	BookingGroup   string
	InclusiveLabel string
}

type Service struct {
	DB         *db.DB
	Publisher  EventPublisher
	Logger     *logger.Logger
	Referencer *Referencer
	Settings   Settings
	Now        utils.Clock
}

func NewService(database *db.DB, publisher EventPublisher, log *logger.Logger, referencer *Referencer, settings Settings) *Service {
	if settings.BookingGroup == "" {
		settings.BookingGroup = "Activities"
	}
	if settings.InclusiveLabel == "" {
		settings.InclusiveLabel = "All-inclusive pass"
	}
	if len(settings.Schemes) == 0 {
		settings.Schemes = []models.ReferenceScheme{models.SchemeGeneric}
	}
	return &Service{
		DB:         database,
		Publisher:  publisher,
		Logger:     log,
		Referencer: referencer,
		Settings:   settings,
		Now:        utils.SystemClock,
	}
}

// CreateOptions control an invoice run.
type CreateOptions struct {
	// Finalize closes the period for good once the invoices are written.
	Finalize bool
	// Acknowledged must be set together with Finalize.
	Acknowledged bool
}

// RunSummary counts what an invoice run changed.
type RunSummary struct {
	PeriodID  string `json:"period_id"`
	Invoices  int    `json:"invoices"`
	Created   int    `json:"items_created"`
	Updated   int    `json:"items_updated"`
	Removed   int    `json:"items_removed"`
	Finalized bool   `json:"finalized"`
}

// CreateInvoices writes one invoice per user with one item per accepted
// booking. Running it again on unchanged bookings changes nothing; manual
// and paid items are never touched.
func (s *Service) CreateInvoices(ctx context.Context, periodID string, opts CreateOptions) (*RunSummary, error) {
	const op = "billing.CreateInvoices"
	if opts.Finalize && !opts.Acknowledged {
		return nil, fmt.Errorf("%s: %w", op, models.ErrConfirmationRequired)
	}

	summary := &RunSummary{PeriodID: periodID}
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		period, err := tx.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Finalized {
			return models.ErrAlreadyFinalized
		}
		if !period.Confirmed {
			return models.ErrPeriodNotConfirmed
		}

		bookings, err := tx.AcceptedBookings(ctx, periodID)
		if err != nil {
			return fmt.Errorf("load accepted bookings: %w", err)
		}
		existing, err := tx.ListInvoices(ctx, periodID, "")
		if err != nil {
			return fmt.Errorf("load invoices: %w", err)
		}

		byUser := make(map[string][]*models.Booking)
		for _, b := range bookings {
			byUser[b.Username] = append(byUser[b.Username], b)
		}
		invoices := make(map[string]*models.Invoice, len(existing))
		for _, inv := range existing {
			invoices[inv.Username] = inv
			if _, ok := byUser[inv.Username]; !ok {
				byUser[inv.Username] = nil
			}
		}

		usernames := make([]string, 0, len(byUser))
		for u := range byUser {
			usernames = append(usernames, u)
		}
		sort.Strings(usernames)

		for _, username := range usernames {
			inv, ok := invoices[username]
			if !ok {
				if inv, err = s.createInvoice(ctx, tx, periodID, username); err != nil {
					return err
				}
			}
			if err := s.syncItems(ctx, tx, inv, s.derivedItems(period, byUser[username]), summary); err != nil {
				return fmt.Errorf("invoice of %s: %w", username, err)
			}
		}
		summary.Invoices = len(usernames)

		if opts.Finalize {
			if err := tx.FinalizePeriod(ctx, periodID); err != nil {
				return err
			}
			summary.Finalized = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.Logger.LogBilling("invoices", periodID, fmt.Sprintf("%d invoices, %d items created, %d updated, %d removed, finalized=%t",
		summary.Invoices, summary.Created, summary.Updated, summary.Removed, summary.Finalized))

	event := models.InvoicesCreatedEvent{
		EventID:   uuid.NewString(),
		PeriodID:  periodID,
		Invoices:  summary.Invoices,
		Finalized: summary.Finalized,
		Timestamp: time.Now().UTC(),
	}
	if err := s.Publisher.Publish(ctx, models.TopicInvoicesCreated, periodID, event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish invoice run of %s: %v", periodID, err))
	}
	return summary, nil
}

// derivedItems are the items billing wants on an invoice, keyed by booking
// or, for the all-inclusive pass, by attendee.
func (s *Service) derivedItems(period *models.Period, bookings []*models.Booking) []*models.InvoiceItem {
	var items []*models.InvoiceItem
	passes := make(map[string]*models.Attendee)

	for _, b := range bookings {
		amount := b.Occasion.Cost
		if !period.AllInclusive {
			amount += period.BookingCost
		}
		items = append(items, &models.InvoiceItem{
			Kind:      models.ItemBooking,
			Group:     s.groupFor(b.Attendee),
			Text:      bookingText(b),
			Amount:    models.RoundAmount(amount),
			BookingID: b.ID,
		})
		if period.AllInclusive && b.Attendee != nil {
			passes[b.AttendeeID] = b.Attendee
		}
	}

	ids := make([]string, 0, len(passes))
	for id := range passes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		items = append(items, &models.InvoiceItem{
			Kind:       models.ItemAllInclusive,
			Group:      s.groupFor(passes[id]),
			Text:       s.Settings.InclusiveLabel,
			Amount:     models.RoundAmount(period.BookingCost),
			AttendeeID: id,
		})
	}
	return items
}

// groupFor groups items by attendee, falling back to the configured group.
func (s *Service) groupFor(a *models.Attendee) string {
	if a == nil || a.Name == "" {
		return s.Settings.BookingGroup
	}
	return a.Name
}

func bookingText(b *models.Booking) string {
	title := "Activity"
	if b.Occasion != nil && b.Occasion.Activity != nil {
		title = b.Occasion.Activity.Title
	}
	if b.Occasion != nil {
		if start := b.Occasion.Start(); !start.IsZero() {
			return fmt.Sprintf("%s (%s)", title, start.Format("02.01.2006"))
		}
	}
	return title
}

func itemKey(item *models.InvoiceItem) string {
	if item.Kind == models.ItemAllInclusive {
		return "attendee:" + item.AttendeeID
	}
	return "booking:" + item.BookingID
}

// syncItems upserts the wanted derived items and drops unpaid derived items
// that are no longer wanted.
func (s *Service) syncItems(ctx context.Context, tx *db.DB, inv *models.Invoice, wanted []*models.InvoiceItem, summary *RunSummary) error {
	have := make(map[string]*models.InvoiceItem)
	for _, item := range inv.Items {
		if item.Kind.Derived() {
			have[itemKey(item)] = item
		}
	}

	now := s.Now()
	for i, w := range wanted {
		key := itemKey(w)
		current, ok := have[key]
		delete(have, key)

		if !ok {
			w.ID = utils.GenerateID()
			w.InvoiceID = inv.ID
			w.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
			if err := tx.CreateItem(ctx, w); err != nil {
				return err
			}
			summary.Created++
			continue
		}
		if current.Paid {
			continue
		}
		if current.Group == w.Group && current.Text == w.Text && current.Amount == w.Amount {
			continue
		}
		current.Group, current.Text, current.Amount = w.Group, w.Text, w.Amount
		if err := tx.UpdateItemContent(ctx, current); err != nil {
			return err
		}
		summary.Updated++
	}

	var stale []string
	for _, item := range have {
		if !item.Paid {
			stale = append(stale, item.ID)
		}
	}
	sort.Strings(stale)
	if err := tx.DeleteItems(ctx, stale); err != nil {
		return err
	}
	summary.Removed += len(stale)
	return nil
}

// createInvoice inserts an empty invoice with one reference per configured
// scheme.
func (s *Service) createInvoice(ctx context.Context, tx *db.DB, periodID, username string) (*models.Invoice, error) {
	inv := &models.Invoice{
		ID:        utils.GenerateID(),
		PeriodID:  periodID,
		Username:  username,
		CreatedAt: s.Now(),
	}
	if err := tx.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice of %s: %w", username, err)
	}
	for _, scheme := range s.Settings.Schemes {
		ref, err := s.newReference(ctx, tx, scheme)
		if err != nil {
			return nil, err
		}
		ref.InvoiceID = inv.ID
		if err := tx.CreateReference(ctx, ref); err != nil {
			return nil, fmt.Errorf("create %s reference: %w", scheme, err)
		}
		inv.References = append(inv.References, ref)
	}
	return inv, nil
}

// newReference draws references until one is unused.
func (s *Service) newReference(ctx context.Context, tx *db.DB, scheme models.ReferenceScheme) (*models.InvoiceReference, error) {
	for attempt := 0; attempt < 10; attempt++ {
		value, err := s.Referencer.New(scheme)
		if err != nil {
			return nil, err
		}
		taken, err := tx.ReferenceExists(ctx, scheme, value)
		if err != nil {
			return nil, err
		}
		if !taken {
			return &models.InvoiceReference{ID: utils.GenerateID(), Scheme: scheme, Reference: value}, nil
		}
	}
	return nil, fmt.Errorf("no free %s reference after 10 attempts", scheme)
}

// Target selects the users a manual item is added for. Exactly one of the
// fields is used, in the order Username, Usernames, Tag.
type Target struct {
	Username  string   `json:"username,omitempty"`
	Usernames []string `json:"usernames,omitempty"`
	Tag       string   `json:"tag,omitempty"`
}

// ManualItem is a discount (negative amount) or surcharge.
type ManualItem struct {
	Target Target  `json:"target"`
	Group  string  `json:"group"`
	Text   string  `json:"text"`
	Amount float64 `json:"amount"`
}

func (s *Service) resolve(ctx context.Context, tx *db.DB, t Target) ([]string, error) {
	var usernames []string
	switch {
	case t.Username != "":
		usernames = []string{t.Username}
	case len(t.Usernames) > 0:
		usernames = t.Usernames
	case t.Tag != "":
		tagged, err := tx.UsernamesWithTag(ctx, t.Tag)
		if err != nil {
			return nil, err
		}
		usernames = tagged
	default:
		return nil, fmt.Errorf("%w: manual item needs a target", models.ErrInvalidInput)
	}

	seen := make(map[string]bool)
	var out []string
	for _, u := range usernames {
		u = strings.TrimSpace(u)
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out, nil
}

// AddManualItem adds the item to the invoice of every targeted user,
// creating missing invoices. It works on finalized periods too.
func (s *Service) AddManualItem(ctx context.Context, periodID string, m ManualItem) ([]*models.InvoiceItem, error) {
	if strings.TrimSpace(m.Text) == "" || m.Amount == 0 {
		return nil, fmt.Errorf("%w: manual items need a text and a non-zero amount", models.ErrInvalidInput)
	}
	if m.Group == "" {
		m.Group = "Adjustments"
	}

	var created []*models.InvoiceItem
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		if _, err := tx.LockPeriod(ctx, periodID); err != nil {
			return err
		}
		usernames, err := s.resolve(ctx, tx, m.Target)
		if err != nil {
			return err
		}
		for _, username := range usernames {
			inv, err := tx.InvoiceFor(ctx, periodID, username)
			if errors.Is(err, models.ErrNotFound) {
				inv, err = s.createInvoice(ctx, tx, periodID, username)
			}
			if err != nil {
				return err
			}
			item := &models.InvoiceItem{
				ID:        utils.GenerateID(),
				InvoiceID: inv.ID,
				Kind:      models.ItemManual,
				Group:     m.Group,
				Text:      m.Text,
				Amount:    models.RoundAmount(m.Amount),
				CreatedAt: s.Now(),
			}
			if err := tx.CreateItem(ctx, item); err != nil {
				return err
			}
			created = append(created, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add manual item to %s: %w", periodID, err)
	}

	s.Logger.LogBilling("manual", periodID, fmt.Sprintf("%q %.2f added to %d invoices", m.Text, m.Amount, len(created)))
	return created, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	return s.DB.GetInvoice(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, periodID, username string) ([]*models.Invoice, error) {
	return s.DB.ListInvoices(ctx, periodID, username)
}

// SetItemPaid toggles the payment state of one item. It is allowed at any
// time.
func (s *Service) SetItemPaid(ctx context.Context, itemID string, paid bool) (*models.InvoiceItem, error) {
	var item *models.InvoiceItem
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		it, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		it.Paid = paid
		item = it
		return tx.SetItemPaid(ctx, itemID, paid)
	})
	if err != nil {
		return nil, fmt.Errorf("set item %s paid: %w", itemID, err)
	}
	return item, nil
}

// SetInvoicePaid toggles the payment state of every item of the invoice.
func (s *Service) SetInvoicePaid(ctx context.Context, invoiceID string, paid bool) (*models.Invoice, error) {
	var invoice *models.Invoice
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		if _, err := tx.GetInvoice(ctx, invoiceID); err != nil {
			return err
		}
		if err := tx.SetInvoicePaid(ctx, invoiceID, paid); err != nil {
			return err
		}
		inv, err := tx.GetInvoice(ctx, invoiceID)
		invoice = inv
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("set invoice %s paid: %w", invoiceID, err)
	}

	s.Logger.LogBilling("paid", invoice.PeriodID, fmt.Sprintf("invoice %s of %s paid=%t", invoiceID, invoice.Username, paid))
	return invoice, nil
}
