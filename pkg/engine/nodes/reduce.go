// Package nodes contains the compute node implementations of the engine:
// the in-memory source and sink, streaming projection and row limit, and the
// buffered parallel reduction operator.
package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/morselflow/morselflow/pkg/engine/compute"
	"github.com/morselflow/morselflow/pkg/engine/compute/expr"
	"github.com/morselflow/morselflow/pkg/engine/compute/reduction"
)

type reducePhase int

const (
	// reduceSink consumes input and accumulates partial reductions.
	reduceSink reducePhase = iota
	// reduceSource holds the finalized result batch pending emission.
	reduceSource
	// reduceDone is terminal.
	reduceDone
)

// Reduce is a full-barrier aggregation node. It consumes its entire input
// before producing a single-row result batch: while consuming it reports its
// send port Blocked, so no output can ever be observed before the upstream
// port is done.
//
// Input is reduced in parallel: each partition task owns private single-group
// reducers, and a coordinating task folds the partition results into the
// node-level reducers in fixed partition index order. Order-sensitive
// reductions rely on morsel sequence numbers, so the final value does not
// depend on which partition finishes first.
type Reduce struct {
	phase     reducePhase
	selectors []expr.Selector
	reducers  []reduction.GroupedReduction
	schema    *arrow.Schema

	// result is the finalized batch while in the source phase, nil once the
	// single output morsel has been taken.
	result arrow.Record
}

var _ compute.ComputeNode = (*Reduce)(nil)

// NewReduce creates a reduction node with one (selector, reducer) pair per
// output field. The reducers act as prototypes for the per-partition
// instances and accumulate the merged result.
func NewReduce(selectors []expr.Selector, reducers []reduction.GroupedReduction, output *arrow.Schema) (*Reduce, error) {
	if len(selectors) != len(reducers) || len(reducers) != output.NumFields() {
		return nil, fmt.Errorf("%w: %d selectors, %d reducers, %d output fields",
			compute.ErrShapeMismatch, len(selectors), len(reducers), output.NumFields())
	}
	return &Reduce{
		phase:     reduceSink,
		selectors: selectors,
		reducers:  reducers,
		schema:    output,
	}, nil
}

// Name implements compute.ComputeNode.
func (r *Reduce) Name() string { return "reduce" }

// UpdateState implements compute.ComputeNode.
func (r *Reduce) UpdateState(recv, send []compute.PortState, st *compute.ExecState) error {
	if len(recv) != 1 || len(send) != 1 {
		panic("reduce: expected exactly one input and one output")
	}

	switch {
	// The consumer wants no more data; abandon any unfinished aggregation.
	case send[0] == compute.Done:
		r.phase = reduceDone
		if r.result != nil {
			r.result.Release()
			r.result = nil
		}

	// Input is exhausted; finalize and become a source.
	case r.phase == reduceSink && recv[0] == compute.Done:
		rec, err := r.finalize(st)
		if err != nil {
			return err
		}
		r.result = rec
		r.phase = reduceSource

	// The single result morsel has been taken.
	case r.phase == reduceSource && r.result == nil:
		r.phase = reduceDone
	}

	switch r.phase {
	case reduceSink:
		recv[0], send[0] = compute.Ready, compute.Blocked
	case reduceSource:
		recv[0], send[0] = compute.Done, compute.Ready
	case reduceDone:
		recv[0], send[0] = compute.Done, compute.Done
	}
	return nil
}

// finalize resizes every reducer to a single group, finalizes it, and casts
// the resulting one-row column to its declared output field type.
func (r *Reduce) finalize(st *compute.ExecState) (arrow.Record, error) {
	cols := make([]arrow.Array, 0, len(r.reducers))
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()

	for i, red := range r.reducers {
		field := r.schema.Field(i)

		red.Resize(1)
		arr, err := red.Finalize(st.Alloc)
		if err != nil {
			return nil, fmt.Errorf("finalizing %q: %w", field.Name, err)
		}
		casted, err := castColumn(st.Alloc, arr, field.Type)
		arr.Release()
		if err != nil {
			return nil, fmt.Errorf("finalizing %q: %w", field.Name, err)
		}
		cols = append(cols, casted)
	}

	return compute.AssembleRecord(r.schema, cols)
}

// Spawn implements compute.ComputeNode.
func (r *Reduce) Spawn(scope *compute.TaskScope, recv []*compute.RecvPort, send []*compute.SendPort, st *compute.ExecState) {
	if len(recv) != 1 || len(send) != 1 {
		panic("reduce: expected exactly one input and one output")
	}

	switch r.phase {
	case reduceSink:
		if send[0] != nil {
			panic("reduce: send port active during sink phase")
		}
		if recv[0] == nil {
			return // upstream not ready this step
		}
		r.spawnSink(scope, recv[0], st)
	case reduceSource:
		if recv[0] != nil {
			panic("reduce: recv port active during source phase")
		}
		if send[0] == nil {
			return
		}
		r.spawnSource(scope, send[0])
	default:
		panic("reduce: spawn while done")
	}
}

func (r *Reduce) spawnSink(scope *compute.TaskScope, port *compute.RecvPort, st *compute.ExecState) {
	receivers := port.Parallel(st.NumPipelines)

	// One result channel per partition. A partition that fails closes its
	// channel without sending; the coordinator then stops merging and the
	// partition's error aborts the step.
	results := make([]chan []reduction.GroupedReduction, len(receivers))
	for i := range results {
		results[i] = make(chan []reduction.GroupedReduction, 1)
	}

	for i, recv := range receivers {
		out := results[i]
		scope.Go(func(ctx context.Context) error {
			defer close(out)
			defer recv.Close()

			locals := make([]reduction.GroupedReduction, len(r.reducers))
			for j, proto := range r.reducers {
				locals[j] = proto.NewEmpty()
				locals[j].Resize(1)
			}

			for {
				m, ok := recv.Recv(ctx)
				if !ok {
					break
				}
				if err := r.updateLocals(ctx, locals, m, st); err != nil {
					m.Release()
					return err
				}
				m.Release()
			}

			out <- locals
			return nil
		})
	}

	// Merge partition results in fixed partition index order, never in
	// completion order, so the fold over partitions is deterministic.
	scope.Go(func(ctx context.Context) error {
		for _, out := range results {
			var (
				locals []reduction.GroupedReduction
				ok     bool
			)
			select {
			case locals, ok = <-out:
			case <-ctx.Done():
				return ctx.Err()
			}
			if !ok {
				return errors.New("reduce: partition aborted before producing a result")
			}

			for j, red := range r.reducers {
				red.Resize(1)
				if err := red.CombineSubset(locals[j], []int{0}, []int{0}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *Reduce) updateLocals(ctx context.Context, locals []reduction.GroupedReduction, m compute.Morsel, st *compute.ExecState) error {
	for j, sel := range r.selectors {
		input, err := sel.Evaluate(ctx, m.Record(), st)
		if err != nil {
			return err
		}
		err = locals[j].UpdateGroup(input, 0, m.Seq())
		input.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Reduce) spawnSource(scope *compute.TaskScope, port *compute.SendPort) {
	send := port.Serial()
	scope.Go(func(ctx context.Context) error {
		defer send.Close()

		// The result is a brand-new top-level value, unrelated in provenance
		// to any input morsel: sequence restarts at zero with a fresh token.
		rec := r.result
		r.result = nil
		m := compute.NewMorsel(rec, 0, compute.NewSourceToken())
		if !send.Send(ctx, m) {
			m.Release()
		}
		return nil
	})
}
