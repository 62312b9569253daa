package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-activity/internal/auth"
	"ms-activity/internal/billing"
	"ms-activity/internal/models"
)

func (h *Handler) CreateInvoices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Finalize     bool `json:"finalize"`
		Acknowledged bool `json:"acknowledged"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	var summary *billing.RunSummary
	err := h.withPeriodLock(r.Context(), id, func(ctx context.Context) error {
		var err error
		summary, err = h.Billing.CreateInvoices(ctx, id, billing.CreateOptions{
			Finalize:     req.Finalize,
			Acknowledged: req.Acknowledged,
		})
		return err
	})
	if err != nil {
		h.fail(w, r, "failed to create invoices", err)
		return
	}
	ok(w, r, http.StatusOK, "invoices created", summary)
}

// ListInvoices lists the invoices of a period; non-admins get only their
// own.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if !h.isAdmin(r) {
		username = auth.Username(r.Context())
	}
	invoices, err := h.Billing.ListInvoices(r.Context(), chi.URLParam(r, "id"), username)
	if err != nil {
		h.fail(w, r, "failed to list invoices", err)
		return
	}
	ok(w, r, http.StatusOK, "invoices", invoices)
}

func (h *Handler) AddManualItem(w http.ResponseWriter, r *http.Request) {
	var req billing.ManualItem
	if !decode(w, r, &req) {
		return
	}
	items, err := h.Billing.AddManualItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, "failed to add manual item", err)
		return
	}
	ok(w, r, http.StatusCreated, "manual items added", items)
}

func (h *Handler) ownInvoice(w http.ResponseWriter, r *http.Request) (*models.Invoice, bool) {
	inv, err := h.Billing.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err == nil && !h.owns(r, inv.Username) {
		err = models.ErrNotFound
	}
	if err != nil {
		h.fail(w, r, "failed to get invoice", err)
		return nil, false
	}
	return inv, true
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, found := h.ownInvoice(w, r)
	if !found {
		return
	}
	ok(w, r, http.StatusOK, "invoice", inv)
}

// InvoiceQR serves the payment slip QR code as PNG.
func (h *Handler) InvoiceQR(w http.ResponseWriter, r *http.Request) {
	inv, found := h.ownInvoice(w, r)
	if !found {
		return
	}
	png, err := h.Billing.PaymentSlip(r.Context(), inv.ID)
	if err != nil {
		h.fail(w, r, "failed to render payment slip", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Warn("API", "Failed to write payment slip: "+err.Error())
	}
}

type paidRequest struct {
	Paid *bool `json:"paid"`
}

// value defaults to true for an empty body.
func (p paidRequest) value() bool {
	return p.Paid == nil || *p.Paid
}

func (h *Handler) SetInvoicePaid(w http.ResponseWriter, r *http.Request) {
	var req paidRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	inv, err := h.Billing.SetInvoicePaid(r.Context(), chi.URLParam(r, "id"), req.value())
	if err != nil {
		h.fail(w, r, "failed to update invoice", err)
		return
	}
	ok(w, r, http.StatusOK, "invoice updated", inv)
}

func (h *Handler) SetItemPaid(w http.ResponseWriter, r *http.Request) {
	var req paidRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	item, err := h.Billing.SetItemPaid(r.Context(), chi.URLParam(r, "id"), req.value())
	if err != nil {
		h.fail(w, r, "failed to update invoice item", err)
		return
	}
	ok(w, r, http.StatusOK, "invoice item updated", item)
}
