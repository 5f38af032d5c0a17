package compute

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// AssembleRecord builds a record from columns matching schema, validating
// column count, types, and that all columns have equal length. The record
// holds its own references; the caller keeps ownership of cols.
func AssembleRecord(schema *arrow.Schema, cols []arrow.Array) (arrow.Record, error) {
	if len(cols) != schema.NumFields() {
		return nil, fmt.Errorf("%w: %d columns for %d fields", ErrShapeMismatch, len(cols), schema.NumFields())
	}

	rows := -1
	for i, col := range cols {
		field := schema.Field(i)
		if !arrow.TypeEqual(col.DataType(), field.Type) {
			return nil, fmt.Errorf("%w: column %q is %s, declared %s", ErrTypeMismatch, field.Name, col.DataType(), field.Type)
		}
		if rows == -1 {
			rows = col.Len()
		} else if col.Len() != rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d", ErrShapeMismatch, field.Name, col.Len(), rows)
		}
	}
	if rows == -1 {
		rows = 0
	}

	return array.NewRecord(schema, cols, int64(rows)), nil
}
