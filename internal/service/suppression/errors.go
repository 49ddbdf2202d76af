package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrNotFound       = errors.New("suppression entry not found")
	ErrEmailRequired  = errors.New("email is required")
	ErrDomainRequired = errors.New("domain is required")
	ErrInvalidEmail   = errors.New("email address is not valid")
	ErrInvalidDomain  = errors.New("domain is not valid")
	ErrInvalidScope   = errors.New("scope must be global or domain")
)
