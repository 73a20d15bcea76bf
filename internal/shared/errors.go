package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrTenantRequired indicates a request reached tenant-scoped code
	// without a resolved tenant.
	ErrTenantRequired = errors.New("tenant required")
	// ErrInvalidAPIKey indicates tenant API key verification failure.
	ErrInvalidAPIKey = errors.New("invalid api key")
)
