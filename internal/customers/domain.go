package customers

import "time"

// Customer is a CRM contact. Soft-deleted so orders keep their reference.
type Customer struct {
	ID        int64
	Name      string
	Email     string
	Phone     *string
	Company   *string
	Address   *string
	City      *string
	Country   *string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Input carries create/update fields for a customer.
type Input struct {
	Name    string
	Email   string
	Phone   *string
	Company *string
	Address *string
	City    *string
	Country *string
	Notes   *string
}

// ListFilter narrows customer listings.
type ListFilter struct {
	Search string
}
