// Package reduction implements the grouped reduction capability consumed by
// reduction operators: mutable accumulator collections indexed by a dense
// integer group id, supporting incremental update with an order key and
// cross-instance merge. Each instance is owned by exactly one task until it
// is combined.
package reduction

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// GroupedReduction is a collection of accumulators indexed by group id.
//
// Implementations are not safe for concurrent use; the engine gives each
// partition task a private instance and merges them single-threaded.
type GroupedReduction interface {
	// NewEmpty allocates a fresh instance of the same kind and input type,
	// holding zero groups.
	NewEmpty() GroupedReduction

	// Resize grows or truncates the instance to hold exactly n groups. New
	// groups start in the reduction's empty state.
	Resize(n int)

	// NumGroups returns the current number of groups.
	NumGroups() int

	// UpdateGroup folds every value of the column into the accumulator for
	// the given group. seq is the order key used by order-sensitive
	// reductions; it must never be derived from completion order.
	UpdateGroup(values arrow.Array, group int, seq compute.MorselSeq) error

	// CombineSubset merges other's groups otherGroups[i] into this
	// instance's groups selfGroups[i], pairwise. All referenced group ids
	// are validated against both instances.
	CombineSubset(other GroupedReduction, selfGroups, otherGroups []int) error

	// Finalize builds the accumulated values into an immutable column with
	// one row per group. The instance must not be updated afterwards.
	Finalize(mem memory.Allocator) (arrow.Array, error)
}

// value is the set of physical types reductions accumulate over.
type value interface {
	int64 | float64 | string
}

// number is the subset of value types with arithmetic and ordering.
type number interface {
	int64 | float64
}

// colOps adapts one Arrow physical type to the generic reduction cores.
type colOps[T value] struct {
	dt    arrow.DataType
	read  func(arrow.Array) (func(int) T, error)
	build func(memory.Allocator, []T, []bool) arrow.Array
}

func int64Ops() colOps[int64] {
	return colOps[int64]{
		dt: arrow.PrimitiveTypes.Int64,
		read: func(a arrow.Array) (func(int) int64, error) {
			arr, ok := a.(*array.Int64)
			if !ok {
				return nil, fmt.Errorf("%w: expected int64 column, got %s", compute.ErrTypeMismatch, a.DataType())
			}
			return arr.Value, nil
		},
		build: func(mem memory.Allocator, vals []int64, valid []bool) arrow.Array {
			b := array.NewInt64Builder(mem)
			defer b.Release()
			for i, v := range vals {
				if valid == nil || valid[i] {
					b.Append(v)
				} else {
					b.AppendNull()
				}
			}
			return b.NewArray()
		},
	}
}

func float64Ops() colOps[float64] {
	return colOps[float64]{
		dt: arrow.PrimitiveTypes.Float64,
		read: func(a arrow.Array) (func(int) float64, error) {
			arr, ok := a.(*array.Float64)
			if !ok {
				return nil, fmt.Errorf("%w: expected float64 column, got %s", compute.ErrTypeMismatch, a.DataType())
			}
			return arr.Value, nil
		},
		build: func(mem memory.Allocator, vals []float64, valid []bool) arrow.Array {
			b := array.NewFloat64Builder(mem)
			defer b.Release()
			for i, v := range vals {
				if valid == nil || valid[i] {
					b.Append(v)
				} else {
					b.AppendNull()
				}
			}
			return b.NewArray()
		},
	}
}

func stringOps() colOps[string] {
	return colOps[string]{
		dt: arrow.BinaryTypes.String,
		read: func(a arrow.Array) (func(int) string, error) {
			arr, ok := a.(*array.String)
			if !ok {
				return nil, fmt.Errorf("%w: expected string column, got %s", compute.ErrTypeMismatch, a.DataType())
			}
			return arr.Value, nil
		},
		build: func(mem memory.Allocator, vals []string, valid []bool) arrow.Array {
			b := array.NewStringBuilder(mem)
			defer b.Release()
			for i, v := range vals {
				if valid == nil || valid[i] {
					b.Append(v)
				} else {
					b.AppendNull()
				}
			}
			return b.NewArray()
		},
	}
}

// checkGroup validates a single group id against the instance size.
func checkGroup(group, numGroups int) error {
	if group < 0 || group >= numGroups {
		return fmt.Errorf("%w: group %d of %d", compute.ErrIndexOutOfRange, group, numGroups)
	}
	return nil
}

// checkSubset validates the index sets passed to CombineSubset. The
// unchecked merge paths rely on this running first.
func checkSubset(selfGroups, otherGroups []int, selfLen, otherLen int) error {
	if len(selfGroups) != len(otherGroups) {
		return fmt.Errorf("%w: %d self groups vs %d other groups", compute.ErrShapeMismatch, len(selfGroups), len(otherGroups))
	}
	for _, g := range selfGroups {
		if err := checkGroup(g, selfLen); err != nil {
			return err
		}
	}
	for _, g := range otherGroups {
		if err := checkGroup(g, otherLen); err != nil {
			return err
		}
	}
	return nil
}

// resize truncates or zero-extends a group slice to exactly n entries.
func resize[T any](s []T, n int) []T {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]T, n)
	copy(out, s)
	return out
}

func checkInput(dt arrow.DataType, values arrow.Array) error {
	if !arrow.TypeEqual(values.DataType(), dt) {
		return fmt.Errorf("%w: reduction over %s fed %s column", compute.ErrTypeMismatch, dt, values.DataType())
	}
	return nil
}
