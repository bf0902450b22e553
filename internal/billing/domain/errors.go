package domain

import "errors"

var (
	// ErrInvalidProduct is returned when a product fails validation.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrInvalidProductType is returned for an unknown product type string.
	ErrInvalidProductType = errors.New("invalid product type")
	// ErrInvalidPurchase is returned when a purchase fails validation.
	ErrInvalidPurchase = errors.New("invalid purchase")
	// ErrInvalidPeriod is returned for a malformed ISO-8601 period.
	ErrInvalidPeriod = errors.New("invalid period")
)
