package reduction

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// NewSum returns a grouped sum over int64 or float64 columns. The empty
// state finalizes to zero.
func NewSum(dt arrow.DataType) (GroupedReduction, error) {
	switch dt.ID() {
	case arrow.INT64:
		return &sumOf[int64]{ops: int64Ops()}, nil
	case arrow.FLOAT64:
		return &sumOf[float64]{ops: float64Ops()}, nil
	default:
		return nil, fmt.Errorf("%w: sum over %s", compute.ErrTypeMismatch, dt)
	}
}

type sumOf[T number] struct {
	ops    colOps[T]
	groups []T
}

var _ GroupedReduction = (*sumOf[int64])(nil)

func (r *sumOf[T]) NewEmpty() GroupedReduction { return &sumOf[T]{ops: r.ops} }

func (r *sumOf[T]) Resize(n int) { r.groups = resize(r.groups, n) }

func (r *sumOf[T]) NumGroups() int { return len(r.groups) }

func (r *sumOf[T]) UpdateGroup(values arrow.Array, group int, _ compute.MorselSeq) error {
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
	var total T
	for i := 0; i < values.Len(); i++ {
		if values.IsNull(i) {
			continue
		}
		total += val(i)
	}
	r.groups[group] += total
	return nil
}

func (r *sumOf[T]) CombineSubset(other GroupedReduction, selfGroups, otherGroups []int) error {
	o, ok := other.(*sumOf[T])
	if !ok {
		return fmt.Errorf("%w: combining sum with %T", compute.ErrTypeMismatch, other)
	}
	if err := checkSubset(selfGroups, otherGroups, len(r.groups), len(o.groups)); err != nil {
		return err
	}
	r.combineSubset(o, selfGroups, otherGroups)
	return nil
}

// combineSubset is the unchecked merge path; indices must be pre-validated.
func (r *sumOf[T]) combineSubset(other *sumOf[T], selfGroups, otherGroups []int) {
	for k, sg := range selfGroups {
		r.groups[sg] += other.groups[otherGroups[k]]
	}
}

func (r *sumOf[T]) Finalize(mem memory.Allocator) (arrow.Array, error) {
	return r.ops.build(mem, r.groups, nil), nil
}
