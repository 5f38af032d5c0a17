package compute

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// Pipe is the physical channel behind one graph edge for one scheduling
// step. Morsels are handed off through a single rendezvous channel, so any
// mix of parallel and serial endpoints composes: parallel receivers each
// observe a disjoint subsequence of the producer's emission order, while a
// serial receiver observes the global arrival order.
//
// Shutdown is one-way from either end. When the last sender closes, the
// channel closes and further receives report closure. When the last receiver
// closes, pending and future sends return false without effect, letting
// upstream tasks observe backpressure-driven shutdown cooperatively.
type Pipe struct {
	ch       chan Morsel
	recvGone chan struct{}

	sendOpen  atomic.Int32
	recvOpen  atomic.Int32
	sendClose sync.Once
	recvClose sync.Once
}

// NewPipe creates an unbuffered pipe.
func NewPipe() *Pipe {
	return &Pipe{
		ch:       make(chan Morsel),
		recvGone: make(chan struct{}),
	}
}

// SendPort returns the sending endpoint of the pipe.
func (p *Pipe) SendPort() *SendPort { return &SendPort{pipe: p} }

// RecvPort returns the receiving endpoint of the pipe.
func (p *Pipe) RecvPort() *RecvPort { return &RecvPort{pipe: p} }

func (p *Pipe) closeSendSide() {
	if p.sendOpen.Dec() == 0 {
		p.sendClose.Do(func() { close(p.ch) })
	}
}

func (p *Pipe) closeRecvSide() {
	if p.recvOpen.Dec() == 0 {
		p.recvClose.Do(func() { close(p.recvGone) })
	}
}

// SendPort is the directional sending endpoint of an edge, handed to the
// producing node's Spawn for steps on which the edge is active. It must be
// materialized exactly once per step, as either parallel senders or one
// serial sender.
type SendPort struct {
	pipe    *Pipe
	claimed bool
}

// Parallel materializes the port as n independent senders, one per worker
// task. Every sender must be closed by the task that owns it.
func (sp *SendPort) Parallel(n int) []*Sender {
	sp.claim()
	sp.pipe.sendOpen.Add(int32(n))
	senders := make([]*Sender, n)
	for i := range senders {
		senders[i] = &Sender{pipe: sp.pipe}
	}
	return senders
}

// Serial materializes the port as a single sender carrying all morsels.
func (sp *SendPort) Serial() *Sender {
	return sp.Parallel(1)[0]
}

// Claimed reports whether the port has been materialized this step.
func (sp *SendPort) Claimed() bool { return sp.claimed }

func (sp *SendPort) claim() {
	if sp.claimed {
		panic("compute: port materialized twice in one step")
	}
	sp.claimed = true
}

// RecvPort is the directional receiving endpoint of an edge. Like SendPort
// it must be materialized exactly once per step.
type RecvPort struct {
	pipe    *Pipe
	claimed bool
}

// Parallel materializes the port as n independent receivers. Each receiver
// yields a disjoint subsequence of the incoming morsels, in producer emission
// order within that subsequence. Every receiver must be closed by the task
// that owns it.
func (rp *RecvPort) Parallel(n int) []*Receiver {
	rp.claim()
	rp.pipe.recvOpen.Add(int32(n))
	receivers := make([]*Receiver, n)
	for i := range receivers {
		receivers[i] = &Receiver{pipe: rp.pipe}
	}
	return receivers
}

// Serial materializes the port as a single receiver yielding all morsels in
// global arrival order.
func (rp *RecvPort) Serial() *Receiver {
	return rp.Parallel(1)[0]
}

// Claimed reports whether the port has been materialized this step.
func (rp *RecvPort) Claimed() bool { return rp.claimed }

func (rp *RecvPort) claim() {
	if rp.claimed {
		panic("compute: port materialized twice in one step")
	}
	rp.claimed = true
}

// Sender sends morsels into a pipe on behalf of one task.
type Sender struct {
	pipe   *Pipe
	closed bool
}

// Send transfers ownership of m to the receiving side, blocking until a
// receiver takes it. It returns false without effect once the receive side
// has shut down or ctx is cancelled; the caller keeps ownership of m in that
// case and should stop producing.
func (s *Sender) Send(ctx context.Context, m Morsel) bool {
	select {
	case <-s.pipe.recvGone:
		return false
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case s.pipe.ch <- m:
		return true
	case <-s.pipe.recvGone:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close marks this sender finished. When the last sender of the pipe closes,
// receivers observe closure. Close is idempotent.
func (s *Sender) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.pipe.closeSendSide()
}

// Receiver receives morsels from a pipe on behalf of one task.
type Receiver struct {
	pipe   *Pipe
	closed bool
}

// Recv blocks until a morsel is available and returns it, transferring
// ownership to the caller. It returns false once the send side has closed
// and the pipe drained, or when ctx is cancelled.
func (r *Receiver) Recv(ctx context.Context) (Morsel, bool) {
	select {
	case m, ok := <-r.pipe.ch:
		return m, ok
	case <-ctx.Done():
		return Morsel{}, false
	}
}

// Close marks this receiver finished. When the last receiver of the pipe
// closes, pending and future sends return false. Close is idempotent.
func (r *Receiver) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.pipe.closeRecvSide()
}
