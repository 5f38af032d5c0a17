package nodes

import (
	"context"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// InMemorySink terminates a graph by collecting every morsel it receives. It
// receives serially; Records returns the collected batches ordered by morsel
// sequence number, so results are deterministic regardless of how upstream
// tasks interleaved.
type InMemorySink struct {
	done    bool
	morsels []compute.Morsel
}

var _ compute.ComputeNode = (*InMemorySink)(nil)

// NewInMemorySink creates an empty sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

// Name implements compute.ComputeNode.
func (s *InMemorySink) Name() string { return "in_memory_sink" }

// UpdateState implements compute.ComputeNode.
func (s *InMemorySink) UpdateState(recv, send []compute.PortState, _ *compute.ExecState) error {
	if len(recv) != 1 || len(send) != 0 {
		panic("in_memory_sink: expected one input and no outputs")
	}

	if recv[0] == compute.Done {
		s.done = true
	}
	if s.done {
		recv[0] = compute.Done
	} else {
		recv[0] = compute.Ready
	}
	return nil
}

// Spawn implements compute.ComputeNode.
func (s *InMemorySink) Spawn(scope *compute.TaskScope, recv []*compute.RecvPort, _ []*compute.SendPort, _ *compute.ExecState) {
	if recv[0] == nil {
		return
	}
	receiver := recv[0].Serial()
	scope.Go(func(ctx context.Context) error {
		defer receiver.Close()
		for {
			m, ok := receiver.Recv(ctx)
			if !ok {
				return nil
			}
			s.morsels = append(s.morsels, m)
		}
	})
}

// Records returns the collected batches in sequence number order. The sink
// keeps ownership; call Release when done with the sink.
func (s *InMemorySink) Records() []arrow.Record {
	slices.SortStableFunc(s.morsels, func(a, b compute.Morsel) int {
		switch {
		case a.Seq() < b.Seq():
			return -1
		case a.Seq() > b.Seq():
			return 1
		default:
			return 0
		}
	})
	recs := make([]arrow.Record, len(s.morsels))
	for i, m := range s.morsels {
		recs[i] = m.Record()
	}
	return recs
}

// NumRows returns the total row count across collected batches.
func (s *InMemorySink) NumRows() int64 {
	var n int64
	for _, m := range s.morsels {
		n += m.Record().NumRows()
	}
	return n
}

// Release drops the sink's references to all collected batches.
func (s *InMemorySink) Release() {
	for _, m := range s.morsels {
		m.Release()
	}
	s.morsels = nil
}
