package nodes

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// castColumn returns arr converted to dt, always as a new reference owned by
// the caller. Only the casts reductions need are supported: identity and
// int64 to float64 widening.
func castColumn(mem memory.Allocator, arr arrow.Array, dt arrow.DataType) (arrow.Array, error) {
	if arrow.TypeEqual(arr.DataType(), dt) {
		arr.Retain()
		return arr, nil
	}

	if arr.DataType().ID() == arrow.INT64 && dt.ID() == arrow.FLOAT64 {
		in := arr.(*array.Int64)
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		for i := 0; i < in.Len(); i++ {
			if in.IsNull(i) {
				b.AppendNull()
				continue
			}
			b.Append(float64(in.Value(i)))
		}
		return b.NewArray(), nil
	}

	return nil, fmt.Errorf("%w: cannot cast %s to %s", compute.ErrTypeMismatch, arr.DataType(), dt)
}
