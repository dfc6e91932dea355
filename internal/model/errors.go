// Package model holds the domain types shared by the ghost simulation packages:
// star catalogs, reflectance tables, ghost records and run bookkeeping.
package model

import "github.com/rotisserie/eris"

// Configuration error kinds. Callers test for them with errors.Is; the wrapped
// message always names the offending value, key or columns.
var (
	// ErrTableType is returned when a table is not the expected structured type.
	ErrTableType = eris.New("unexpected table type")
	// ErrMissingColumns is returned when required catalog columns are absent.
	ErrMissingColumns = eris.New("missing required columns")
	// ErrInvalidValue is returned for unsupported selectors (scaling mode, band, mount).
	ErrInvalidValue = eris.New("invalid value")
	// ErrMissingReflectance is returned when a reflectance key does not resolve.
	ErrMissingReflectance = eris.New("missing reflectance")
)
