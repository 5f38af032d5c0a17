// Package expr defines the selector boundary between the dataflow engine
// and expression evaluation. The engine evaluates selectors once per morsel
// to obtain the input column of a reduction or projection; everything about
// how the column is computed stays behind the Selector interface.
package expr

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

var (
	// ErrColumnNotFound indicates a selector referenced a column the batch
	// schema does not contain.
	ErrColumnNotFound = errors.New("column not found")
	// ErrAmbiguousColumn indicates a column name matched more than one
	// field of the batch schema.
	ErrAmbiguousColumn = errors.New("ambiguous column")
)

// Selector produces one column from a batch. Evaluation may block (it may
// perform work on other goroutines) but must be pure with respect to the
// batch: no mutation of the batch or of shared state.
type Selector interface {
	// Name identifies the selector in error messages.
	Name() string
	// Evaluate returns the selected column with its own reference; the
	// caller releases it when done.
	Evaluate(ctx context.Context, batch arrow.Record, st *compute.ExecState) (arrow.Array, error)
}

// Column returns a selector extracting the named column from the batch.
func Column(name string) Selector {
	return columnSelector(name)
}

type columnSelector string

func (s columnSelector) Name() string { return string(s) }

func (s columnSelector) Evaluate(_ context.Context, batch arrow.Record, _ *compute.ExecState) (arrow.Array, error) {
	indices := batch.Schema().FieldIndices(string(s))
	switch len(indices) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, string(s))
	case 1:
	default:
		return nil, fmt.Errorf("%w: %q matches %d fields", ErrAmbiguousColumn, string(s), len(indices))
	}

	col := batch.Column(indices[0])
	col.Retain()
	return col, nil
}

// Func adapts a function into a named selector, for computed columns.
func Func(name string, fn func(ctx context.Context, batch arrow.Record, st *compute.ExecState) (arrow.Array, error)) Selector {
	return &funcSelector{name: name, fn: fn}
}

type funcSelector struct {
	name string
	fn   func(ctx context.Context, batch arrow.Record, st *compute.ExecState) (arrow.Array, error)
}

func (s *funcSelector) Name() string { return s.name }

func (s *funcSelector) Evaluate(ctx context.Context, batch arrow.Record, st *compute.ExecState) (arrow.Array, error) {
	return s.fn(ctx, batch, st)
}
