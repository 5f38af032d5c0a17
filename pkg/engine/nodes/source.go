package nodes

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// InMemorySource feeds a held record into the graph, sliced into morsels of
// at most maxRows rows. Sequence numbers are drawn from the run's shared
// generator at the point each slice enters the graph. The source stops early
// when its token is stopped or the downstream side shuts down.
type InMemorySource struct {
	rec     arrow.Record
	maxRows int64
	token   *compute.SourceToken

	offset    int64
	exhausted bool
}

var _ compute.ComputeNode = (*InMemorySource)(nil)

// NewInMemorySource creates a source over rec. The source takes over the
// caller's reference to rec.
func NewInMemorySource(rec arrow.Record, maxRows int64) *InMemorySource {
	if maxRows <= 0 {
		maxRows = 1024
	}
	return &InMemorySource{
		rec:     rec,
		maxRows: maxRows,
		token:   compute.NewSourceToken(),
	}
}

// Name implements compute.ComputeNode.
func (s *InMemorySource) Name() string { return "in_memory_source" }

// UpdateState implements compute.ComputeNode.
func (s *InMemorySource) UpdateState(recv, send []compute.PortState, _ *compute.ExecState) error {
	if len(recv) != 0 || len(send) != 1 {
		panic("in_memory_source: expected no inputs and one output")
	}

	if send[0] == compute.Done {
		s.exhausted = true
	}
	if s.exhausted {
		if s.rec != nil {
			s.rec.Release()
			s.rec = nil
		}
		send[0] = compute.Done
	} else {
		send[0] = compute.Ready
	}
	return nil
}

// Spawn implements compute.ComputeNode.
func (s *InMemorySource) Spawn(scope *compute.TaskScope, _ []*compute.RecvPort, send []*compute.SendPort, st *compute.ExecState) {
	if send[0] == nil {
		return
	}
	sender := send[0].Serial()
	scope.Go(func(ctx context.Context) error {
		defer sender.Close()

		for s.offset < s.rec.NumRows() {
			if s.token.StopRequested() {
				break
			}
			end := min(s.offset+s.maxRows, s.rec.NumRows())
			m := compute.NewMorsel(s.rec.NewSlice(s.offset, end), st.Seqs.Next(), s.token)
			if !sender.Send(ctx, m) {
				m.Release()
				break
			}
			s.offset = end
		}

		if s.offset >= s.rec.NumRows() || s.token.StopRequested() {
			s.exhausted = true
		}
		return nil
	})
}
