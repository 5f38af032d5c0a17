package nodes

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/morselflow/morselflow/pkg/engine/compute"
	"github.com/morselflow/morselflow/pkg/engine/compute/expr"
)

// Select is a streaming projection: for every morsel it evaluates one
// selector per output field and emits a rebuilt batch, preserving the
// morsel's sequence number and token. It runs fully parallel on both sides.
type Select struct {
	selectors []expr.Selector
	schema    *arrow.Schema
	done      bool
}

var _ compute.ComputeNode = (*Select)(nil)

// NewSelect creates a projection node with one selector per output field.
func NewSelect(selectors []expr.Selector, output *arrow.Schema) (*Select, error) {
	if len(selectors) != output.NumFields() {
		return nil, fmt.Errorf("%w: %d selectors for %d output fields",
			compute.ErrShapeMismatch, len(selectors), output.NumFields())
	}
	return &Select{selectors: selectors, schema: output}, nil
}

// Name implements compute.ComputeNode.
func (s *Select) Name() string { return "select" }

// UpdateState implements compute.ComputeNode.
func (s *Select) UpdateState(recv, send []compute.PortState, _ *compute.ExecState) error {
	if len(recv) != 1 || len(send) != 1 {
		panic("select: expected exactly one input and one output")
	}

	// No buffering: the node is finished as soon as either side is.
	if send[0] == compute.Done || recv[0] == compute.Done {
		s.done = true
	}
	if s.done {
		recv[0], send[0] = compute.Done, compute.Done
		return nil
	}

	recv[0], send[0] = send[0], recv[0]
	return nil
}

// Spawn implements compute.ComputeNode.
func (s *Select) Spawn(scope *compute.TaskScope, recv []*compute.RecvPort, send []*compute.SendPort, st *compute.ExecState) {
	if recv[0] == nil || send[0] == nil {
		if recv[0] != nil || send[0] != nil {
			panic("select: ports must activate together")
		}
		return
	}

	receivers := recv[0].Parallel(st.NumPipelines)
	senders := send[0].Parallel(st.NumPipelines)

	for i := range receivers {
		receiver, sender := receivers[i], senders[i]
		scope.Go(func(ctx context.Context) error {
			defer sender.Close()
			defer receiver.Close()

			for {
				m, ok := receiver.Recv(ctx)
				if !ok {
					return nil
				}

				out, err := s.project(ctx, m, st)
				m.Release()
				if err != nil {
					return err
				}
				if !sender.Send(ctx, out) {
					out.Release()
					return nil
				}
			}
		})
	}
}

func (s *Select) project(ctx context.Context, m compute.Morsel, st *compute.ExecState) (compute.Morsel, error) {
	cols := make([]arrow.Array, 0, len(s.selectors))
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()

	for _, sel := range s.selectors {
		col, err := sel.Evaluate(ctx, m.Record(), st)
		if err != nil {
			return compute.Morsel{}, err
		}
		cols = append(cols, col)
	}

	rec, err := compute.AssembleRecord(s.schema, cols)
	if err != nil {
		return compute.Morsel{}, err
	}
	return compute.NewMorsel(rec, m.Seq(), m.Source()), nil
}
