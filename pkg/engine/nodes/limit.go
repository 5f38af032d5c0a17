package nodes

import (
	"context"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// Limit is a streaming row limit: it forwards the first n rows and then
// shuts the flow down early. Once satisfied it stops the producing source
// via the morsel token, closes its receive side so pending upstream sends
// unblock, and reports both ports Done on the next step, short-circuiting
// any upstream operator that still holds unfinished work.
type Limit struct {
	remaining int64
	done      bool
}

var _ compute.ComputeNode = (*Limit)(nil)

// NewLimit creates a limit over the first n rows.
func NewLimit(n int64) *Limit {
	return &Limit{remaining: n}
}

// Name implements compute.ComputeNode.
func (l *Limit) Name() string { return "limit" }

// UpdateState implements compute.ComputeNode.
func (l *Limit) UpdateState(recv, send []compute.PortState, _ *compute.ExecState) error {
	if len(recv) != 1 || len(send) != 1 {
		panic("limit: expected exactly one input and one output")
	}

	// No buffering: finished when satisfied, or as soon as either side is.
	if send[0] == compute.Done || recv[0] == compute.Done || l.remaining <= 0 {
		l.done = true
	}
	if l.done {
		recv[0], send[0] = compute.Done, compute.Done
		return nil
	}

	// Pass readiness through: the input is as ready as our consumer, the
	// output as ready as our producer.
	recv[0], send[0] = send[0], recv[0]
	return nil
}

// Spawn implements compute.ComputeNode.
func (l *Limit) Spawn(scope *compute.TaskScope, recv []*compute.RecvPort, send []*compute.SendPort, _ *compute.ExecState) {
	if recv[0] == nil || send[0] == nil {
		if recv[0] != nil || send[0] != nil {
			panic("limit: ports must activate together")
		}
		return
	}

	receiver := recv[0].Serial()
	sender := send[0].Serial()
	scope.Go(func(ctx context.Context) error {
		defer sender.Close()
		defer receiver.Close()

		for l.remaining > 0 {
			m, ok := receiver.Recv(ctx)
			if !ok {
				return nil
			}

			if rows := m.Record().NumRows(); rows > l.remaining {
				sliced := compute.NewMorsel(m.Record().NewSlice(0, l.remaining), m.Seq(), m.Source())
				m.Release()
				m = sliced
			}

			rows := m.Record().NumRows()
			token := m.Source()
			if !sender.Send(ctx, m) {
				m.Release()
				return nil
			}

			l.remaining -= rows
			if l.remaining <= 0 && token != nil {
				// Satisfied: ask the source to stop producing. Closing the
				// receiver (deferred) unblocks any in-flight upstream send.
				token.Stop()
			}
		}
		return nil
	})
}
