package shared

import "errors"

var (
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness conflict (duplicate SKU, email, invoice per order).
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation indicates malformed input rejected before business logic runs.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates a status change not permitted from the current state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInsufficientStock indicates a mutation would drive on-hand quantity negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrEditNotAllowed indicates the order left draft and can no longer be edited.
	ErrEditNotAllowed = errors.New("edit not allowed")
	// ErrDeleteNotAllowed indicates the order left draft and can no longer be deleted.
	ErrDeleteNotAllowed = errors.New("delete not allowed")
	// ErrOrderNotReady indicates the order is not in an invoiceable status.
	ErrOrderNotReady = errors.New("order not ready for invoicing")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
