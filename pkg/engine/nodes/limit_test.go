package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morselflow/morselflow/pkg/engine/compute"
	"github.com/morselflow/morselflow/pkg/util/arrowtest"
)

// runLimitStep pushes morsels through a limit node for one step and returns
// what came out the other side.
func runLimitStep(t *testing.T, node *Limit, st *compute.ExecState, input []compute.Morsel) []compute.Morsel {
	t.Helper()

	in := compute.NewPipe()
	out := compute.NewPipe()
	scope := compute.NewTaskScope(t.Context())
	node.Spawn(scope, []*compute.RecvPort{in.RecvPort()}, []*compute.SendPort{out.SendPort()}, st)

	sender := in.SendPort().Serial()
	scope.Go(func(ctx context.Context) error {
		defer sender.Close()
		for i, m := range input {
			if !sender.Send(ctx, m) {
				for _, rest := range input[i:] {
					rest.Release()
				}
				break
			}
		}
		return nil
	})

	receiver := out.RecvPort().Serial()
	var got []compute.Morsel
	scope.Go(func(ctx context.Context) error {
		defer receiver.Close()
		for {
			m, ok := receiver.Recv(ctx)
			if !ok {
				return nil
			}
			got = append(got, m)
		}
	})

	require.NoError(t, scope.Wait())
	return got
}

func TestLimit(t *testing.T) {
	t.Run("passes readiness through", func(t *testing.T) {
		st := testState(1)
		node := NewLimit(10)

		recv := []compute.PortState{compute.Ready}
		send := []compute.PortState{compute.Blocked}
		require.NoError(t, node.UpdateState(recv, send, st))
		require.Equal(t, compute.Blocked, recv[0], "input readiness mirrors the consumer")
		require.Equal(t, compute.Ready, send[0], "output readiness mirrors the producer")
	})

	t.Run("slices the overflowing morsel and stops the source", func(t *testing.T) {
		st := testState(1)
		node := NewLimit(25)
		token := compute.NewSourceToken()

		rec := arrowtest.Int64Range("v", 0, 100).Record(st.Alloc, inputSchema)
		defer rec.Release()

		var input []compute.Morsel
		for i := int64(0); i < 100; i += 10 {
			input = append(input, compute.NewMorsel(rec.NewSlice(i, i+10), st.Seqs.Next(), token))
		}

		got := runLimitStep(t, node, st, input)

		var rows int64
		for _, m := range got {
			rows += m.Record().NumRows()
		}
		require.Equal(t, int64(25), rows)
		require.Len(t, got, 3, "third morsel is cut at the limit")
		require.Equal(t, int64(5), got[2].Record().NumRows())
		require.True(t, token.StopRequested(), "source is told to stop once satisfied")
		for _, m := range got {
			m.Release()
		}

		recv := []compute.PortState{compute.Ready}
		send := []compute.PortState{compute.Ready}
		require.NoError(t, node.UpdateState(recv, send, st))
		require.Equal(t, compute.Done, recv[0])
		require.Equal(t, compute.Done, send[0])
	})

	t.Run("zero limit is done immediately", func(t *testing.T) {
		st := testState(1)
		node := NewLimit(0)

		recv := []compute.PortState{compute.Ready}
		send := []compute.PortState{compute.Ready}
		require.NoError(t, node.UpdateState(recv, send, st))
		require.Equal(t, compute.Done, recv[0])
		require.Equal(t, compute.Done, send[0])
	})

	t.Run("upstream done finishes the node", func(t *testing.T) {
		st := testState(1)
		node := NewLimit(10)

		recv := []compute.PortState{compute.Done}
		send := []compute.PortState{compute.Ready}
		require.NoError(t, node.UpdateState(recv, send, st))
		require.Equal(t, compute.Done, recv[0])
		require.Equal(t, compute.Done, send[0])
	})
}
