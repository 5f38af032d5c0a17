package reduction

import (
	"math/rand"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// int64Col builds an int64 array where nil entries are null.
func int64Col(t *testing.T, mem memory.Allocator, vals ...any) arrow.Array {
	t.Helper()
	b := array.NewInt64Builder(mem)
	defer b.Release()
	for _, v := range vals {
		if v == nil {
			b.AppendNull()
		} else {
			b.Append(v.(int64))
		}
	}
	return b.NewArray()
}

func stringCol(t *testing.T, mem memory.Allocator, vals ...any) arrow.Array {
	t.Helper()
	b := array.NewStringBuilder(mem)
	defer b.Release()
	for _, v := range vals {
		if v == nil {
			b.AppendNull()
		} else {
			b.Append(v.(string))
		}
	}
	return b.NewArray()
}

// update feeds a column into group 0 and releases it.
func update(t *testing.T, r GroupedReduction, col arrow.Array, seq compute.MorselSeq) {
	t.Helper()
	err := r.UpdateGroup(col, 0, seq)
	col.Release()
	require.NoError(t, err)
}

// finalized returns the single finalized value of group g, with ok=false
// for null.
func finalizedInt64(t *testing.T, mem memory.Allocator, r GroupedReduction, g int) (int64, bool) {
	t.Helper()
	arr, err := r.Finalize(mem)
	require.NoError(t, err)
	defer arr.Release()
	vals := arr.(*array.Int64)
	if vals.IsNull(g) {
		return 0, false
	}
	return vals.Value(g), true
}

func TestSum(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	t.Run("accumulates and skips nulls", func(t *testing.T) {
		r, err := NewSum(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		r.Resize(1)

		update(t, r, int64Col(t, alloc, int64(1), nil, int64(2)), 0)
		update(t, r, int64Col(t, alloc, int64(4)), 1)

		v, ok := finalizedInt64(t, alloc, r, 0)
		require.True(t, ok)
		require.Equal(t, int64(7), v)
	})

	t.Run("empty state is zero", func(t *testing.T) {
		r, err := NewSum(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		r.Resize(1)

		v, ok := finalizedInt64(t, alloc, r, 0)
		require.True(t, ok)
		require.Equal(t, int64(0), v)
	})

	t.Run("rejects mismatched input type", func(t *testing.T) {
		r, err := NewSum(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		r.Resize(1)

		col := stringCol(t, alloc, "x")
		defer col.Release()
		require.ErrorIs(t, r.UpdateGroup(col, 0, 0), compute.ErrTypeMismatch)
	})

	t.Run("unsupported data type", func(t *testing.T) {
		_, err := NewSum(arrow.BinaryTypes.String)
		require.ErrorIs(t, err, compute.ErrTypeMismatch)
	})
}

func TestMinMax(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	t.Run("min", func(t *testing.T) {
		r, err := NewMin(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		r.Resize(1)

		update(t, r, int64Col(t, alloc, int64(5), nil, int64(-3), int64(9)), 0)

		v, ok := finalizedInt64(t, alloc, r, 0)
		require.True(t, ok)
		require.Equal(t, int64(-3), v)
	})

	t.Run("max", func(t *testing.T) {
		r, err := NewMax(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		r.Resize(1)

		update(t, r, int64Col(t, alloc, int64(5), int64(9), int64(7)), 0)

		v, ok := finalizedInt64(t, alloc, r, 0)
		require.True(t, ok)
		require.Equal(t, int64(9), v)
	})

	t.Run("empty state is null", func(t *testing.T) {
		r, err := NewMin(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		r.Resize(1)

		_, ok := finalizedInt64(t, alloc, r, 0)
		require.False(t, ok)
	})

	t.Run("min does not combine with max", func(t *testing.T) {
		a, err := NewMin(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		a.Resize(1)
		b, err := NewMax(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		b.Resize(1)

		require.ErrorIs(t, a.CombineSubset(b, []int{0}, []int{0}), compute.ErrTypeMismatch)
	})
}

func TestCount(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	r := NewCount()
	r.Resize(1)

	update(t, r, int64Col(t, alloc, int64(1), nil, int64(3)), 0)
	update(t, r, stringCol(t, alloc, "a", nil), 1) // count is type agnostic

	v, ok := finalizedInt64(t, alloc, r, 0)
	require.True(t, ok)
	require.Equal(t, int64(3), v)
}

func TestFirstLastOrderKey(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	t.Run("last keeps highest sequence regardless of update order", func(t *testing.T) {
		r, err := NewLast(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		r.Resize(1)

		// Updates arrive out of order, as they would from racing partitions.
		update(t, r, int64Col(t, alloc, int64(30)), 3)
		update(t, r, int64Col(t, alloc, int64(90)), 9)
		update(t, r, int64Col(t, alloc, int64(50)), 5)

		v, ok := finalizedInt64(t, alloc, r, 0)
		require.True(t, ok)
		require.Equal(t, int64(90), v)
	})

	t.Run("last picks last non-null row within a column", func(t *testing.T) {
		r, err := NewLast(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		r.Resize(1)

		update(t, r, int64Col(t, alloc, int64(1), int64(2), nil), 0)

		v, ok := finalizedInt64(t, alloc, r, 0)
		require.True(t, ok)
		require.Equal(t, int64(2), v)
	})

	t.Run("first keeps lowest sequence", func(t *testing.T) {
		r, err := NewFirst(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		r.Resize(1)

		update(t, r, int64Col(t, alloc, int64(50)), 5)
		update(t, r, int64Col(t, alloc, int64(20)), 2)
		update(t, r, int64Col(t, alloc, int64(70)), 7)

		v, ok := finalizedInt64(t, alloc, r, 0)
		require.True(t, ok)
		require.Equal(t, int64(20), v)
	})

	t.Run("all null column leaves state untouched", func(t *testing.T) {
		r, err := NewLast(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		r.Resize(1)

		update(t, r, int64Col(t, alloc, int64(7)), 1)
		update(t, r, int64Col(t, alloc, nil, nil), 9)

		v, ok := finalizedInt64(t, alloc, r, 0)
		require.True(t, ok)
		require.Equal(t, int64(7), v)
	})

	t.Run("strings", func(t *testing.T) {
		r, err := NewLast(arrow.BinaryTypes.String)
		require.NoError(t, err)
		r.Resize(1)

		update(t, r, stringCol(t, alloc, "old"), 1)
		update(t, r, stringCol(t, alloc, "new"), 2)

		arr, err := r.Finalize(alloc)
		require.NoError(t, err)
		defer arr.Release()
		require.Equal(t, "new", arr.(*array.String).Value(0))
	})
}

func TestCombineSubsetValidation(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	a, err := NewSum(arrow.PrimitiveTypes.Int64)
	require.NoError(t, err)
	a.Resize(2)
	b := a.NewEmpty()
	b.Resize(2)

	require.ErrorIs(t, a.CombineSubset(b, []int{0, 1}, []int{0}), compute.ErrShapeMismatch)
	require.ErrorIs(t, a.CombineSubset(b, []int{2}, []int{0}), compute.ErrIndexOutOfRange)
	require.ErrorIs(t, a.CombineSubset(b, []int{0}, []int{-1}), compute.ErrIndexOutOfRange)

	c := NewCount()
	c.Resize(2)
	require.ErrorIs(t, a.CombineSubset(c, []int{0}, []int{0}), compute.ErrTypeMismatch)
}

// TestCombineSubsetFuzzed drives the unchecked merge path with randomized
// valid index sets and checks the result against a model.
func TestCombineSubsetFuzzed(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		selfN := 1 + rng.Intn(8)
		otherN := 1 + rng.Intn(8)

		self, err := NewSum(arrow.PrimitiveTypes.Int64)
		require.NoError(t, err)
		self.Resize(selfN)
		other := self.NewEmpty()
		other.Resize(otherN)

		model := make([]int64, selfN)
		otherVals := make([]int64, otherN)

		for g := 0; g < selfN; g++ {
			v := int64(rng.Intn(100))
			updateGroup(t, self, alloc, g, v)
			model[g] = v
		}
		for g := 0; g < otherN; g++ {
			v := int64(rng.Intn(100))
			updateGroup(t, other, alloc, g, v)
			otherVals[g] = v
		}

		pairs := rng.Intn(16)
		selfGroups := make([]int, pairs)
		otherGroups := make([]int, pairs)
		for i := 0; i < pairs; i++ {
			selfGroups[i] = rng.Intn(selfN)
			otherGroups[i] = rng.Intn(otherN)
			model[selfGroups[i]] += otherVals[otherGroups[i]]
		}

		require.NoError(t, self.CombineSubset(other, selfGroups, otherGroups))

		arr, err := self.Finalize(alloc)
		require.NoError(t, err)
		got := arr.(*array.Int64)
		for g := 0; g < selfN; g++ {
			require.Equal(t, model[g], got.Value(g), "round %d group %d", round, g)
		}
		arr.Release()
	}
}

// updateGroup feeds a single value into one group.
func updateGroup(t *testing.T, r GroupedReduction, mem memory.Allocator, group int, v int64) {
	t.Helper()
	col := int64Col(t, mem, v)
	err := r.UpdateGroup(col, group, 0)
	col.Release()
	require.NoError(t, err)
}

func TestResize(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	r, err := NewSum(arrow.PrimitiveTypes.Int64)
	require.NoError(t, err)
	require.Equal(t, 0, r.NumGroups())

	r.Resize(3)
	require.Equal(t, 3, r.NumGroups())
	update(t, r, int64Col(t, alloc, int64(5)), 0)

	// Truncating drops groups; regrowing yields fresh empty state.
	r.Resize(0)
	r.Resize(1)
	v, ok := finalizedInt64(t, alloc, r, 0)
	require.True(t, ok)
	require.Equal(t, int64(0), v)

	// Updating an unallocated group is an error at the public boundary.
	col := int64Col(t, alloc, int64(1))
	defer col.Release()
	require.ErrorIs(t, r.UpdateGroup(col, 5, 0), compute.ErrIndexOutOfRange)
}
