package index

import "fmt"

// DimensionMismatchError reports a vector whose length does not match the
// index's embedding dimension. A precondition violation: raised before any
// network call and never retried.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// SchemaError reports a failed index creation for a reason other than
// pre-existence (invalid mapping, insufficient privileges, ...).
type SchemaError struct {
	Index string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("index schema %s: %v", e.Index, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
