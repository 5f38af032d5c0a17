package engine

import (
	"fmt"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// Graph is a DAG of compute nodes. Nodes must be added in topological order:
// Connect rejects an edge whose producer was added after its consumer, which
// keeps the runner's state sweeps simple and rules out cycles.
type Graph struct {
	nodes []*graphNode
	edges []*edge
	index map[compute.ComputeNode]*graphNode
}

type graphNode struct {
	node compute.ComputeNode
	pos  int
	recv []*edge // input edges, in port order
	send []*edge // output edges, in port order
}

// edge tracks the last declared port state of both endpoints, and the pipe
// materialized for steps on which both ends are ready.
type edge struct {
	from, to *graphNode

	sendState compute.PortState // declared by the producer
	recvState compute.PortState // declared by the consumer

	pipe     *compute.Pipe
	sendPort *compute.SendPort
	recvPort *compute.RecvPort
}

// active reports whether the edge exchanges morsels this step.
func (e *edge) active() bool {
	return e.sendState == compute.Ready && e.recvState == compute.Ready
}

// done reports whether both endpoints are permanently finished.
func (e *edge) done() bool {
	return e.sendState == compute.Done && e.recvState == compute.Done
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[compute.ComputeNode]*graphNode)}
}

// Add registers a node. Nodes are scheduled in insertion order, which must
// be a topological order of the graph.
func (g *Graph) Add(n compute.ComputeNode) {
	if _, ok := g.index[n]; ok {
		panic(fmt.Sprintf("graph: node %q added twice", n.Name()))
	}
	gn := &graphNode{node: n, pos: len(g.nodes)}
	g.nodes = append(g.nodes, gn)
	g.index[n] = gn
}

// Connect adds an edge carrying morsels from one node to another. Both nodes
// must have been added, with the producer added before the consumer. The
// edge becomes the producer's next output port and the consumer's next input
// port.
func (g *Graph) Connect(from, to compute.ComputeNode) error {
	fn, ok := g.index[from]
	if !ok {
		return fmt.Errorf("graph: producer %q not added", from.Name())
	}
	tn, ok := g.index[to]
	if !ok {
		return fmt.Errorf("graph: consumer %q not added", to.Name())
	}
	if fn.pos >= tn.pos {
		return fmt.Errorf("graph: %q must be added before %q", from.Name(), to.Name())
	}

	e := &edge{from: fn, to: tn, sendState: compute.Ready, recvState: compute.Ready}
	fn.send = append(fn.send, e)
	tn.recv = append(tn.recv, e)
	g.edges = append(g.edges, e)
	return nil
}
