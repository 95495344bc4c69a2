package domain

import "errors"

// Pipeline errors. Callers wrap these with context and test them with errors.Is.
var (
	// ErrInputNotFound is returned when a panel, ticker table or artifact file is missing.
	ErrInputNotFound = errors.New("input not found")

	// ErrEmptyDataset is returned when no rows survive price or date filtering.
	ErrEmptyDataset = errors.New("empty dataset")

	// ErrSchemaMismatch is returned when inference features disagree with the
	// fitted schema, or when a model and scaler do not belong to the same run.
	ErrSchemaMismatch = errors.New("feature schema mismatch")

	// ErrInsufficientHistory is returned when a series has no usable observations.
	// A short but non-empty series still forecasts with ReducedConfidence set.
	ErrInsufficientHistory = errors.New("insufficient history")
)
