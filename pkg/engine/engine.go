// Package engine runs dataflow graphs of compute nodes. The runner drives
// the graph in scheduling steps: it sweeps every node's UpdateState until
// port states stabilize, materializes a pipe for every edge both sides
// declared ready, spawns each node's tasks into a structured scope, and
// joins them all before the next step. The run finishes when every edge is
// done on both ends.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/morselflow/morselflow/pkg/engine/compute"
)

// Config configures an Engine.
type Config struct {
	// NumPipelines is the parallelism of ports split into parallel
	// sub-channels. Defaults to GOMAXPROCS.
	NumPipelines int

	// Logger for run diagnostics. Defaults to a nop logger.
	Logger log.Logger

	// Alloc is the allocator handed to nodes for result batches. Defaults
	// to the Go allocator.
	Alloc memory.Allocator

	// Registerer to register engine metrics with. Optional.
	Registerer prometheus.Registerer
}

// Engine schedules dataflow graphs.
type Engine struct {
	cfg     Config
	logger  log.Logger
	metrics *metrics
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.NumPipelines <= 0 {
		cfg.NumPipelines = runtime.GOMAXPROCS(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	if cfg.Alloc == nil {
		cfg.Alloc = memory.DefaultAllocator
	}
	return &Engine{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: newMetrics(cfg.Registerer),
	}
}

// Run executes the graph to completion and returns the first task or node
// error. A graph must not be run twice.
func (e *Engine) Run(ctx context.Context, g *Graph) error {
	start := time.Now()
	runID := ulid.Make().String()
	logger := log.With(e.logger, "run", runID)

	st := &compute.ExecState{
		RunID:        runID,
		NumPipelines: e.cfg.NumPipelines,
		Logger:       logger,
		Alloc:        e.cfg.Alloc,
		Seqs:         &compute.SeqGen{},
	}

	err := e.run(ctx, g, st, logger)
	status := "success"
	if err != nil {
		status = "error"
		level.Error(logger).Log("msg", "run failed", "err", err)
	}
	e.metrics.runsTotal.WithLabelValues(status).Inc()
	e.metrics.runSeconds.Observe(time.Since(start).Seconds())
	return err
}

func (e *Engine) run(ctx context.Context, g *Graph, st *compute.ExecState, logger log.Logger) error {
	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.updateStates(g, st); err != nil {
			return err
		}

		done := true
		for _, edge := range g.edges {
			if !edge.done() {
				done = false
				break
			}
		}
		if done {
			level.Debug(logger).Log("msg", "graph done", "steps", step)
			return nil
		}

		tasks, err := e.spawnStep(ctx, g, st)
		if err != nil {
			return err
		}
		level.Debug(logger).Log("msg", "step joined", "step", step, "tasks", tasks)
		e.metrics.stepsTotal.Inc()
	}
}

// updateStates sweeps UpdateState over all nodes until port states
// stabilize. Sweeping in reverse topological order first propagates Done
// from consumers to producers within a single step; the forward sweep then
// propagates producer-side changes back down.
func (e *Engine) updateStates(g *Graph, st *compute.ExecState) error {
	for round := 0; ; round++ {
		if round > len(g.nodes)+1 {
			return errors.New("engine: port states did not stabilize")
		}

		changed := false
		for i := len(g.nodes) - 1; i >= 0; i-- {
			c, err := e.updateNode(g.nodes[i], st)
			if err != nil {
				return err
			}
			changed = changed || c
		}
		for _, gn := range g.nodes {
			c, err := e.updateNode(gn, st)
			if err != nil {
				return err
			}
			changed = changed || c
		}
		if !changed {
			return nil
		}
	}
}

func (e *Engine) updateNode(gn *graphNode, st *compute.ExecState) (changed bool, err error) {
	recv := make([]compute.PortState, len(gn.recv))
	send := make([]compute.PortState, len(gn.send))
	for i, edge := range gn.recv {
		recv[i] = edge.sendState // what the producer declared
	}
	for i, edge := range gn.send {
		send[i] = edge.recvState // what the consumer declared
	}

	if err := gn.node.UpdateState(recv, send, st); err != nil {
		return false, fmt.Errorf("node %q: %w", gn.node.Name(), err)
	}

	for i, edge := range gn.recv {
		if edge.recvState != recv[i] {
			if edge.recvState == compute.Done {
				return false, fmt.Errorf("node %q revived done recv port %d", gn.node.Name(), i)
			}
			edge.recvState = recv[i]
			changed = true
		}
	}
	for i, edge := range gn.send {
		if edge.sendState != send[i] {
			if edge.sendState == compute.Done {
				return false, fmt.Errorf("node %q revived done send port %d", gn.node.Name(), i)
			}
			edge.sendState = send[i]
			changed = true
		}
	}
	return changed, nil
}

// spawnStep materializes pipes for active edges, spawns every node's tasks,
// and joins them.
func (e *Engine) spawnStep(ctx context.Context, g *Graph, st *compute.ExecState) (int, error) {
	activeEdges := 0
	for _, edge := range g.edges {
		if edge.active() {
			edge.pipe = compute.NewPipe()
			edge.sendPort = edge.pipe.SendPort()
			edge.recvPort = edge.pipe.RecvPort()
			activeEdges++
		} else {
			edge.pipe, edge.sendPort, edge.recvPort = nil, nil, nil
		}
	}
	if activeEdges == 0 {
		return 0, errors.New("engine: no active edges but graph is not done")
	}

	scope := compute.NewTaskScope(ctx)
	spawned := 0
	for _, gn := range g.nodes {
		recvPorts := make([]*compute.RecvPort, len(gn.recv))
		sendPorts := make([]*compute.SendPort, len(gn.send))
		active := false
		for i, edge := range gn.recv {
			if edge.recvPort != nil {
				recvPorts[i] = edge.recvPort
				active = true
			}
		}
		for i, edge := range gn.send {
			if edge.sendPort != nil {
				sendPorts[i] = edge.sendPort
				active = true
			}
		}
		if !active {
			continue
		}

		gn.node.Spawn(scope, recvPorts, sendPorts, st)
		spawned++

		// A node that declared Ready must actually service the port. This is
		// a contract violation, not a recoverable condition.
		for i, port := range recvPorts {
			if port != nil && !port.Claimed() {
				panic(fmt.Sprintf("node %q left ready recv port %d unserviced", gn.node.Name(), i))
			}
		}
		for i, port := range sendPorts {
			if port != nil && !port.Claimed() {
				panic(fmt.Sprintf("node %q left ready send port %d unserviced", gn.node.Name(), i))
			}
		}
	}

	e.metrics.tasksTotal.Add(float64(spawned))
	return spawned, scope.Wait()
}
