package compute

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
)

// ExecState is the global execution state shared by all nodes and tasks of
// one run. It is read-only for nodes except for the sequence generator,
// which sources draw from when batches enter the graph.
type ExecState struct {
	// RunID identifies the run in logs.
	RunID string

	// NumPipelines is the number of parallel sub-channels a port splits
	// into, i.e. the worker parallelism of the run. Always >= 1.
	NumPipelines int

	// Logger for node- and task-level diagnostics.
	Logger log.Logger

	// Alloc is the allocator used for result batches built during a run.
	Alloc memory.Allocator

	// Seqs assigns morsel sequence numbers at graph ingress.
	Seqs *SeqGen
}
