package reduction

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// NewFirst returns a grouped reduction keeping the first non-null value by
// order key, over int64, float64 or string columns. The empty state
// finalizes to null.
func NewFirst(dt arrow.DataType) (GroupedReduction, error) {
	return newFirstLast(dt, false)
}

// NewLast returns a grouped reduction keeping the last non-null value by
// order key. Order is decided purely by the morsel sequence number, never by
// arrival order, so the result is deterministic under any parallel
// interleaving. The empty state finalizes to null.
func NewLast(dt arrow.DataType) (GroupedReduction, error) {
	return newFirstLast(dt, true)
}

func newFirstLast(dt arrow.DataType, last bool) (GroupedReduction, error) {
	switch dt.ID() {
	case arrow.INT64:
		return &firstLastOf[int64]{ops: int64Ops(), last: last}, nil
	case arrow.FLOAT64:
		return &firstLastOf[float64]{ops: float64Ops(), last: last}, nil
	case arrow.STRING:
		return &firstLastOf[string]{ops: stringOps(), last: last}, nil
	default:
		return nil, fmt.Errorf("%w: first/last over %s", compute.ErrTypeMismatch, dt)
	}
}

type firstLastOf[T value] struct {
	ops  colOps[T]
	last bool

	groups []T
	seqs   []compute.MorselSeq
	seen   []bool
}

var _ GroupedReduction = (*firstLastOf[string])(nil)

func (r *firstLastOf[T]) NewEmpty() GroupedReduction {
	return &firstLastOf[T]{ops: r.ops, last: r.last}
}

func (r *firstLastOf[T]) Resize(n int) {
	r.groups = resize(r.groups, n)
	r.seqs = resize(r.seqs, n)
	r.seen = resize(r.seen, n)
}

func (r *firstLastOf[T]) NumGroups() int { return len(r.groups) }

// supersedes reports whether a value carrying order key seq replaces the
// current value of group g.
func (r *firstLastOf[T]) supersedes(seq compute.MorselSeq, g int) bool {
	if !r.seen[g] {
		return true
	}
	if r.last {
		return seq >= r.seqs[g]
	}
	return seq < r.seqs[g]
}

func (r *firstLastOf[T]) UpdateGroup(values arrow.Array, group int, seq compute.MorselSeq) error {
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

	// Pick the candidate element within the column: the first non-null row
	// for first, the last non-null row for last.
	row := -1
	if r.last {
		for i := values.Len() - 1; i >= 0; i-- {
			if values.IsValid(i) {
				row = i
				break
			}
		}
	} else {
		for i := 0; i < values.Len(); i++ {
			if values.IsValid(i) {
				row = i
				break
			}
		}
	}
	if row == -1 {
		return nil
	}

	if r.supersedes(seq, group) {
		r.groups[group] = val(row)
		r.seqs[group] = seq
		r.seen[group] = true
	}
	return nil
}

func (r *firstLastOf[T]) CombineSubset(other GroupedReduction, selfGroups, otherGroups []int) error {
	o, ok := other.(*firstLastOf[T])
	if !ok || o.last != r.last {
		return fmt.Errorf("%w: combining first/last with %T", compute.ErrTypeMismatch, other)
	}
	if err := checkSubset(selfGroups, otherGroups, len(r.groups), len(o.groups)); err != nil {
		return err
	}
	r.combineSubset(o, selfGroups, otherGroups)
	return nil
}

// combineSubset is the unchecked merge path; indices must be pre-validated.
func (r *firstLastOf[T]) combineSubset(other *firstLastOf[T], selfGroups, otherGroups []int) {
	for k, sg := range selfGroups {
		og := otherGroups[k]
		if !other.seen[og] {
			continue
		}
		if r.supersedes(other.seqs[og], sg) {
			r.groups[sg] = other.groups[og]
			r.seqs[sg] = other.seqs[og]
			r.seen[sg] = true
		}
	}
}

func (r *firstLastOf[T]) Finalize(mem memory.Allocator) (arrow.Array, error) {
	return r.ops.build(mem, r.groups, r.seen), nil
}
