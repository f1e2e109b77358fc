package vectorstore

import (
	"errors"
	"fmt"
)

var ErrSchema = errors.New("vector store schema failure")

// SchemaError reports a failed drop or create of the collection.
type SchemaError struct {
	Collection string
	Op         string
	Err        error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s collection %s: %v", e.Op, e.Collection, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// InsertError is returned when a batch could not be written at all. Failures
// of individual objects are reported in the InsertReport instead.
type InsertError struct {
	Collection string
	Count      int
	Err        error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("insert %d objects into %s: %v", e.Count, e.Collection, e.Err)
}

func (e *InsertError) Unwrap() error {
	return e.Err
}
