package reduction

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// NewCount returns a grouped count of non-null values over columns of any
// type. The empty state finalizes to zero.
func NewCount() GroupedReduction {
	return &countOf{}
}

type countOf struct {
	groups []int64
}

var _ GroupedReduction = (*countOf)(nil)

func (r *countOf) NewEmpty() GroupedReduction { return &countOf{} }

func (r *countOf) Resize(n int) { r.groups = resize(r.groups, n) }

func (r *countOf) NumGroups() int { return len(r.groups) }

func (r *countOf) UpdateGroup(values arrow.Array, group int, _ compute.MorselSeq) error {
	if err := checkGroup(group, len(r.groups)); err != nil {
		return err
	}
	r.groups[group] += int64(values.Len() - values.NullN())
	return nil
}

func (r *countOf) CombineSubset(other GroupedReduction, selfGroups, otherGroups []int) error {
	o, ok := other.(*countOf)
	if !ok {
		return fmt.Errorf("%w: combining count with %T", compute.ErrTypeMismatch, other)
	}
	if err := checkSubset(selfGroups, otherGroups, len(r.groups), len(o.groups)); err != nil {
		return err
	}
	r.combineSubset(o, selfGroups, otherGroups)
	return nil
}

// combineSubset is the unchecked merge path; indices must be pre-validated.
func (r *countOf) combineSubset(other *countOf, selfGroups, otherGroups []int) {
	for k, sg := range selfGroups {
		r.groups[sg] += other.groups[otherGroups[k]]
	}
}

func (r *countOf) Finalize(mem memory.Allocator) (arrow.Array, error) {
	b := array.NewInt64Builder(mem)
	defer b.Release()
	for _, v := range r.groups {
		b.Append(v)
	}
	return b.NewArray(), nil
}
