package errors

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaError reports required columns missing from an input dataset.
// It is structural and aborts the affected pipeline stage.
type SchemaError struct {
	Dataset string
	Missing []string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Dataset, strings.Join(e.Missing, ", "))
}

// NewSchemaError creates a SchemaError for the given dataset.
func NewSchemaError(dataset string, missing []string) *SchemaError {
	return &SchemaError{Dataset: dataset, Missing: missing}
}

// DuplicateRecordError reports client-period pairs that occur more than
// once in an input dataset. Like SchemaError it is structural: the
// extract fails validation instead of silently keeping one of the rows.
type DuplicateRecordError struct {
	Dataset string
	Keys    []string
}

// Error implements the error interface.
func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("%s: %d duplicate client-period rows (first: %s)",
		e.Dataset, len(e.Keys), e.Keys[0])
}

// MissingMarginError reports that a panel cell has no matching reference
// margin. It is recoverable: the cell is logged and excluded from coverage
// output rather than failing the run.
type MissingMarginError struct {
	Level  string
	Cell   string
	Period string
}

// Error implements the error interface.
func (e *MissingMarginError) Error() string {
	return fmt.Sprintf("no reference margin for %s cell %q at %s", e.Level, e.Cell, e.Period)
}

// InsufficientDataError reports that a statistical result has too few
// observations to be estimated. The specific result is omitted; the run
// continues.
type InsufficientDataError struct {
	Op   string
	Need int
	Got  int
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need %d observations, got %d", e.Op, e.Need, e.Got)
}

// ErrNotConverged is reported when raking exhausts its iteration budget.
// Callers receive the best weight vector found together with this
// condition; it is reportable, never silently dropped.
var ErrNotConverged = errors.New("raking did not converge within iteration limit")

// IsRecoverable reports whether err is a local statistical condition that
// should be surfaced as an omitted or flagged result instead of aborting
// the stage.
func IsRecoverable(err error) bool {
	var missing *MissingMarginError
	var insufficient *InsufficientDataError
	return errors.As(err, &missing) || errors.As(err, &insufficient) || errors.Is(err, ErrNotConverged)
}
