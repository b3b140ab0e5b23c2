package invoices

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Status values for an invoice. Payment status is externally driven by
// manual reconciliation, so unlike orders there is no transition table:
// any known status may be set at any time.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// ValidStatus reports whether s names a known invoice status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// Invoice is derived one-to-one from an order, copying its totals at
// generation time. Payment fields evolve independently thereafter.
type Invoice struct {
	ID              int64
	InvoiceNumber   string
	OrderID         int64
	Status          Status
	SubtotalCents   int64
	DiscountCents   int64
	TaxCents        int64
	TotalCents      int64
	AmountPaidCents int64
	DueDate         time.Time
	SentAt          *time.Time
	PaidAt          *time.Time
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InvoiceWithOrder joins an invoice with its order's display fields.
type InvoiceWithOrder struct {
	Invoice
	OrderNumber  string
	CustomerName string
}

// StatusInput carries a payment status update.
type StatusInput struct {
	Status          Status
	AmountPaidCents *int64
}

var displayPrinter = message.NewPrinter(language.English)

// DisplayAmount renders cents as a grouped decimal string for invoice
// documents, e.g. 123456789 -> "$1,234,567.89".
func DisplayAmount(cents int64) string {
	return displayPrinter.Sprintf("$%v", number.Decimal(float64(cents)/100,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
