package compute

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TaskScope owns the tasks spawned during one scheduling step. All tasks are
// joined (or have failed) before the runner proceeds to the next step; no
// task outlives the step that spawned it. The first task error cancels the
// scope context, which unblocks pending sends and receives so sibling tasks
// drain cooperatively.
type TaskScope struct {
	group *errgroup.Group
	ctx   context.Context
}

// NewTaskScope creates a scope whose tasks run under a context derived from
// ctx.
func NewTaskScope(ctx context.Context) *TaskScope {
	group, ctx := errgroup.WithContext(ctx)
	return &TaskScope{group: group, ctx: ctx}
}

// Context returns the scope context. It is cancelled when any task fails or
// the parent context is cancelled.
func (s *TaskScope) Context() context.Context { return s.ctx }

// Go spawns a task and records its handle for the step's join.
func (s *TaskScope) Go(fn func(ctx context.Context) error) {
	s.group.Go(func() error {
		return fn(s.ctx)
	})
}

// Wait blocks until every spawned task has returned and reports the first
// error, if any.
func (s *TaskScope) Wait() error {
	return s.group.Wait()
}
