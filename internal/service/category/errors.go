package category

import "errors"

// Sentinel errors for the category service layer.
var (
	ErrNotFound     = errors.New("category not found")
	ErrExists       = errors.New("category name or slug already exists")
	ErrNameRequired = errors.New("category name is required")
)
