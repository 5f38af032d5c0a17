package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morselflow/morselflow/pkg/engine/compute"
	"github.com/morselflow/morselflow/pkg/util/arrowtest"
)

// drainSource runs one source step against a fresh pipe and returns the
// morsels it emitted, stopping the token after stopAfter morsels if positive.
func drainSource(t *testing.T, node compute.ComputeNode, st *compute.ExecState, stopAfter int) []compute.Morsel {
	t.Helper()

	pipe := compute.NewPipe()
	scope := compute.NewTaskScope(t.Context())
	node.Spawn(scope, nil, []*compute.SendPort{pipe.SendPort()}, st)

	receiver := pipe.RecvPort().Serial()
	var got []compute.Morsel
	scope.Go(func(ctx context.Context) error {
		defer receiver.Close()
		for {
			m, ok := receiver.Recv(ctx)
			if !ok {
				return nil
			}
			got = append(got, m)
			if stopAfter > 0 && len(got) == stopAfter {
				m.Source().Stop()
			}
		}
	})

	require.NoError(t, scope.Wait())
	return got
}

func TestInMemorySource(t *testing.T) {
	t.Run("slices into morsels with increasing sequences", func(t *testing.T) {
		st := testState(1)
		rec := arrowtest.Int64Range("v", 0, 10).Record(st.Alloc, inputSchema)
		node := NewInMemorySource(rec, 4)

		send := []compute.PortState{compute.Ready}
		require.NoError(t, node.UpdateState(nil, send, st))
		require.Equal(t, compute.Ready, send[0])

		got := drainSource(t, node, st, 0)
		require.Len(t, got, 3, "10 rows at 4 rows per morsel")
		var rows int64
		for i, m := range got {
			rows += m.Record().NumRows()
			if i > 0 {
				require.Greater(t, m.Seq(), got[i-1].Seq())
			}
			m.Release()
		}
		require.Equal(t, int64(10), rows)

		// Everything sent: the source reports done and drops its record.
		send = []compute.PortState{compute.Ready}
		require.NoError(t, node.UpdateState(nil, send, st))
		require.Equal(t, compute.Done, send[0])
	})

	t.Run("token stop ends production early", func(t *testing.T) {
		st := testState(1)
		rec := arrowtest.Int64Range("v", 0, 100).Record(st.Alloc, inputSchema)
		node := NewInMemorySource(rec, 1)

		got := drainSource(t, node, st, 3)
		// The send in flight when the token flipped may still land.
		require.LessOrEqual(t, len(got), 4)
		for _, m := range got {
			m.Release()
		}

		send := []compute.PortState{compute.Ready}
		require.NoError(t, node.UpdateState(nil, send, st))
		require.Equal(t, compute.Done, send[0], "a stopped source does not resume")
	})

	t.Run("consumer done retires the source", func(t *testing.T) {
		st := testState(1)
		rec := arrowtest.Int64Range("v", 0, 10).Record(st.Alloc, inputSchema)
		node := NewInMemorySource(rec, 4)

		send := []compute.PortState{compute.Done}
		require.NoError(t, node.UpdateState(nil, send, st))
		require.Equal(t, compute.Done, send[0])
	})
}

func TestInMemorySink(t *testing.T) {
	st := testState(1)
	node := NewInMemorySink()

	recv := []compute.PortState{compute.Ready}
	require.NoError(t, node.UpdateState(recv, nil, st))
	require.Equal(t, compute.Ready, recv[0])

	pipe := compute.NewPipe()
	scope := compute.NewTaskScope(t.Context())
	node.Spawn(scope, []*compute.RecvPort{pipe.RecvPort()}, nil, st)

	// Feed morsels out of sequence order.
	sender := pipe.SendPort().Serial()
	scope.Go(func(ctx context.Context) error {
		defer sender.Close()
		for _, seq := range []compute.MorselSeq{2, 0, 1} {
			rec := arrowtest.Rows{{"v": int64(seq)}}.Record(st.Alloc, inputSchema)
			if !sender.Send(ctx, compute.NewMorsel(rec, seq, nil)) {
				rec.Release()
				break
			}
		}
		return nil
	})
	require.NoError(t, scope.Wait())

	recv = []compute.PortState{compute.Done}
	require.NoError(t, node.UpdateState(recv, nil, st))
	require.Equal(t, compute.Done, recv[0])

	require.Equal(t, int64(3), node.NumRows())
	recs := node.Records()
	require.Len(t, recs, 3)
	for i, rec := range recs {
		rows, err := arrowtest.RecordRows(rec)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{{"v": int64(i)}}, rows, "records come back in sequence order")
	}
	node.Release()
}
