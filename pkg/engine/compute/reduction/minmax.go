package reduction

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// NewMin returns a grouped minimum over int64 or float64 columns. The empty
// state finalizes to null.
func NewMin(dt arrow.DataType) (GroupedReduction, error) {
	return newMinMax(dt, true)
}

// NewMax returns a grouped maximum over int64 or float64 columns. The empty
// state finalizes to null.
func NewMax(dt arrow.DataType) (GroupedReduction, error) {
	return newMinMax(dt, false)
}

func newMinMax(dt arrow.DataType, min bool) (GroupedReduction, error) {
	switch dt.ID() {
	case arrow.INT64:
		return &minMaxOf[int64]{ops: int64Ops(), min: min}, nil
	case arrow.FLOAT64:
		return &minMaxOf[float64]{ops: float64Ops(), min: min}, nil
	default:
		return nil, fmt.Errorf("%w: min/max over %s", compute.ErrTypeMismatch, dt)
	}
}

type minMaxOf[T number] struct {
	ops    colOps[T]
	min    bool
	groups []T
	seen   []bool
}

var _ GroupedReduction = (*minMaxOf[float64])(nil)

func (r *minMaxOf[T]) NewEmpty() GroupedReduction {
	return &minMaxOf[T]{ops: r.ops, min: r.min}
}

func (r *minMaxOf[T]) Resize(n int) {
	r.groups = resize(r.groups, n)
	r.seen = resize(r.seen, n)
}

func (r *minMaxOf[T]) NumGroups() int { return len(r.groups) }

func (r *minMaxOf[T]) better(candidate, current T) bool {
	if r.min {
		return candidate < current
	}
	return candidate > current
}

func (r *minMaxOf[T]) UpdateGroup(values arrow.Array, group int, _ compute.MorselSeq) error {
	if err := checkGroup(group, len(r.groups)); err != nil {
		return err
	}
	if err := checkInput(r.ops.dt, values); err != nil {
		return err
	}
	val, err := r.ops.read(values)
	if err != nil {
		return err
	}
	for i := 0; i < values.Len(); i++ {
		if values.IsNull(i) {
			continue
		}
		if v := val(i); !r.seen[group] || r.better(v, r.groups[group]) {
			r.groups[group] = v
			r.seen[group] = true
		}
	}
	return nil
}

func (r *minMaxOf[T]) CombineSubset(other GroupedReduction, selfGroups, otherGroups []int) error {
	o, ok := other.(*minMaxOf[T])
	if !ok || o.min != r.min {
		return fmt.Errorf("%w: combining min/max with %T", compute.ErrTypeMismatch, other)
	}
	if err := checkSubset(selfGroups, otherGroups, len(r.groups), len(o.groups)); err != nil {
		return err
	}
	r.combineSubset(o, selfGroups, otherGroups)
	return nil
}

// combineSubset is the unchecked merge path; indices must be pre-validated.
func (r *minMaxOf[T]) combineSubset(other *minMaxOf[T], selfGroups, otherGroups []int) {
	for k, sg := range selfGroups {
		og := otherGroups[k]
		if !other.seen[og] {
			continue
		}
		if v := other.groups[og]; !r.seen[sg] || r.better(v, r.groups[sg]) {
			r.groups[sg] = v
			r.seen[sg] = true
		}
	}
}

func (r *minMaxOf[T]) Finalize(mem memory.Allocator) (arrow.Array, error) {
	return r.ops.build(mem, r.groups, r.seen), nil
}
