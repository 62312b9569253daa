package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"ms-activity/internal/models"
)

// PaymentSlip renders the QR code of an invoice's payment slip as PNG. The
// payload follows the Swiss QR bill layout; a QR-IBAN reference is used as
// structured reference when present, otherwise the first reference goes
// into the message.
func (s *Service) PaymentSlip(ctx context.Context, invoiceID string) ([]byte, error) {
	inv, err := s.DB.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if s.Settings.CreditorIBAN == "" {
		return nil, fmt.Errorf("%w: no creditor account configured", models.ErrInvalidInput)
	}

	size := s.Settings.QRCodeSize
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(slipPayload(inv, s.Settings), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode payment slip of %s: %w", invoiceID, err)
	}
	return png, nil
}

func slipPayload(inv *models.Invoice, settings Settings) string {
	refType, ref, message := "NON", "", "Invoice "+inv.ID
	if r := inv.Reference(models.SchemeQRIBAN); r != nil {
		refType, ref = "QRR", r.Reference
	} else if len(inv.References) > 0 {
		first := inv.References[0]
		message = FormatReference(first.Scheme, first.Reference)
	}

	amount := ""
	if due := inv.Outstanding(); due > 0 {
		amount = fmt.Sprintf("%.2f", due)
	}

	lines := []string{
		"SPC", "0200", "1",
		strings.ReplaceAll(settings.CreditorIBAN, " ", ""),
		"K", settings.CreditorName, "", "", "", "", "CH",
		"", "", "", "", "", "", "",
		amount, settings.Currency,
		"", "", "", "", "", "", "",
		refType, ref, message,
		"EPD",
	}
	return strings.Join(lines, "\n")
}
