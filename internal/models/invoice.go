package models

import (
	"math"
	"time"

	"github.com/uptrace/bun"
)

type InvoiceItemKind string

const (
	ItemBooking      InvoiceItemKind = "booking"
	ItemAllInclusive InvoiceItemKind = "all-inclusive"
	ItemManual       InvoiceItemKind = "manual"
)

// Derived reports whether billing regenerates the item from bookings.
// Manual items are never touched by an automatic run.
func (k InvoiceItemKind) Derived() bool {
	return k == ItemBooking || k == ItemAllInclusive
}

type ReferenceScheme string

const (
	SchemeGeneric ReferenceScheme = "generic"
	SchemeESR     ReferenceScheme = "esr-v1"
	SchemeQRIBAN  ReferenceScheme = "qr-iban"
)

type Invoice struct {
	bun.BaseModel `bun:"table:invoices"`

	ID        string    `bun:"id,pk" json:"id"`
	PeriodID  string    `bun:"period_id,notnull,unique:user_period" json:"period_id"`
	Username  string    `bun:"username,notnull,unique:user_period" json:"username"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`

	Items      []*InvoiceItem      `bun:"rel:has-many,join:id=invoice_id" json:"items"`
	References []*InvoiceReference `bun:"rel:has-many,join:id=invoice_id" json:"references"`
}

type InvoiceItem struct {
	bun.BaseModel `bun:"table:invoice_items"`

	ID         string          `bun:"id,pk" json:"id"`
	InvoiceID  string          `bun:"invoice_id,notnull" json:"invoice_id"`
	Kind       InvoiceItemKind `bun:"kind,notnull" json:"kind"`
	Group      string          `bun:"item_group,notnull" json:"group"`
	Text       string          `bun:"text,notnull" json:"text"`
	Amount     float64         `bun:"amount,notnull" json:"amount"`
	Paid       bool            `bun:"paid,notnull,default:false" json:"paid"`
	BookingID  string          `bun:"booking_id,nullzero" json:"booking_id,omitempty"`
	AttendeeID string          `bun:"attendee_id,nullzero" json:"attendee_id,omitempty"`
	CreatedAt  time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type InvoiceReference struct {
	bun.BaseModel `bun:"table:invoice_references"`

	ID        string          `bun:"id,pk" json:"id"`
	InvoiceID string          `bun:"invoice_id,notnull" json:"invoice_id"`
	Scheme    ReferenceScheme `bun:"scheme,notnull,unique:scheme_reference" json:"scheme"`
	Reference string          `bun:"reference,notnull,unique:scheme_reference" json:"reference"`
}

// RoundAmount rounds to the cent.
func RoundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}

func (i *Invoice) Total() float64 {
	var total float64
	for _, item := range i.Items {
		total += item.Amount
	}
	return RoundAmount(total)
}

func (i *Invoice) PaidTotal() float64 {
	var total float64
	for _, item := range i.Items {
		if item.Paid {
			total += item.Amount
		}
	}
	return RoundAmount(total)
}

func (i *Invoice) Outstanding() float64 {
	return RoundAmount(i.Total() - i.PaidTotal())
}

// Paid is true when every item is paid. An invoice without items is not.
func (i *Invoice) Paid() bool {
	if len(i.Items) == 0 {
		return false
	}
	for _, item := range i.Items {
		if !item.Paid {
			return false
		}
	}
	return true
}

func (i *Invoice) Reference(scheme ReferenceScheme) *InvoiceReference {
	for _, r := range i.References {
		if r.Scheme == scheme {
			return r
		}
	}
	return nil
}
