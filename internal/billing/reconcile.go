package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-activity/internal/billing/db"
	"ms-activity/internal/models"
)

// ReconcilePayment books an incoming payment against the invoice carrying
// its reference. The invoice is marked paid when the amount covers what is
// still outstanding; smaller amounts are only logged. It reports whether
// the invoice is paid afterwards.
func (s *Service) ReconcilePayment(ctx context.Context, payment models.PaymentReceivedEvent) (bool, error) {
	reference := NormalizeReference(payment.Reference)
	if reference == "" {
		return false, fmt.Errorf("%w: payment without reference", models.ErrInvalidInput)
	}

	var invoice *models.Invoice
	paid := false
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		ref, err := tx.FindReference(ctx, reference)
		if err != nil {
			return err
		}
		inv, err := tx.GetInvoice(ctx, ref.InvoiceID)
		if err != nil {
			return err
		}
		invoice = inv

		outstanding := inv.Outstanding()
		if outstanding <= 0 {
			paid = inv.Paid()
			return nil
		}
		if models.RoundAmount(payment.Amount) < outstanding {
			return nil
		}
		paid = true
		return tx.SetInvoicePaid(ctx, inv.ID, true)
	})
	if err != nil {
		return false, fmt.Errorf("reconcile payment %s: %w", reference, err)
	}

	if paid {
		s.Logger.LogBilling("payment", invoice.PeriodID, fmt.Sprintf("invoice %s of %s paid with %.2f", invoice.ID, invoice.Username, payment.Amount))
	} else {
		s.Logger.Warn("BILLING", fmt.Sprintf("Payment of %.2f for %s does not cover invoice %s (%.2f outstanding)",
			payment.Amount, reference, invoice.ID, invoice.Outstanding()))
	}
	return paid, nil
}

// HandlePayment is the kafka handler of the payments topic.
func (s *Service) HandlePayment(ctx context.Context, msg kafka.Message) error {
	var payment models.PaymentReceivedEvent
	if err := json.Unmarshal(msg.Value, &payment); err != nil {
		return fmt.Errorf("decode payment: %w", err)
	}
	_, err := s.ReconcilePayment(ctx, payment)
	return err
}
