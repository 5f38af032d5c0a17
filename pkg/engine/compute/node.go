// Package compute defines the primitives of the streaming dataflow engine:
// morsels, ports, port states, the compute node contract, and the structured
// task scope the graph runner joins on every scheduling step.
package compute

// ComputeNode is the operator abstraction of the engine. The graph runner
// drives every node through repeated scheduling steps: first UpdateState on
// all nodes until port states stabilize, then Spawn on every node with at
// least one active port, then a join of all spawned tasks before the next
// step begins.
type ComputeNode interface {
	// Name identifies the node in logs and error messages.
	Name() string

	// UpdateState derives the node's next internal phase from its current
	// phase and its neighbors' port states, then writes back the node's own
	// declared states. On entry recv[i] holds the state declared by the
	// producer feeding input i, and send[i] the state declared by the
	// consumer of output i; on return both hold this node's declarations.
	//
	// UpdateState may mutate the node's own phase and perform bounded
	// finalization work such as building a result batch, but must not block
	// or exchange morsels. It must be safe to call repeatedly when no
	// neighboring state changed. A returned error aborts the whole run.
	UpdateState(recv, send []PortState, st *ExecState) error

	// Spawn creates the tasks that exchange morsels this step. recv and send
	// contain one entry per input/output edge; an entry is non-nil exactly
	// when both sides of the edge declared Ready. Spawn must materialize
	// every non-nil port and must not touch ports its current phase did not
	// declare active; violations are programming errors and panic.
	Spawn(scope *TaskScope, recv []*RecvPort, send []*SendPort, st *ExecState)
}
