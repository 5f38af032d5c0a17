package compute

import (
	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/atomic"
)

// MorselSeq is a totally ordered sequence number assigned to a morsel at the
// point its batch enters the graph. It is the only cross-thread ordering
// signal available to downstream operators and is used to break ties between
// logically concurrent updates.
type MorselSeq uint64

// SeqGen hands out monotonically increasing morsel sequence numbers. The
// zero value is ready to use and safe for concurrent callers.
type SeqGen struct {
	next atomic.Uint64
}

// Next returns the next sequence number.
func (g *SeqGen) Next() MorselSeq {
	return MorselSeq(g.next.Inc() - 1)
}

// SourceToken is an opaque cancellation handle carried by every morsel. A
// downstream consumer marks it to ask in-flight production upstream to stop
// early. Stopping is cooperative: sources check the token between emissions.
type SourceToken struct {
	stop atomic.Bool
}

// NewSourceToken returns a fresh, un-stopped token.
func NewSourceToken() *SourceToken {
	return &SourceToken{}
}

// Stop requests that the source which produced this token stops emitting.
func (t *SourceToken) Stop() {
	t.stop.Store(true)
}

// StopRequested reports whether Stop has been called.
func (t *SourceToken) StopRequested() bool {
	return t.stop.Load()
}

// Morsel is an immutable batch of rows flowing between compute nodes. It is
// owned exclusively by whichever task currently holds it; ownership transfers
// on send.
type Morsel struct {
	rec    arrow.Record
	seq    MorselSeq
	source *SourceToken
}

// NewMorsel wraps a record into a morsel. The morsel takes over the caller's
// reference to rec.
func NewMorsel(rec arrow.Record, seq MorselSeq, source *SourceToken) Morsel {
	return Morsel{rec: rec, seq: seq, source: source}
}

// Record returns the columnar data of the morsel.
func (m Morsel) Record() arrow.Record { return m.rec }

// Seq returns the sequence number assigned at ingress.
func (m Morsel) Seq() MorselSeq { return m.seq }

// Source returns the cancellation token of the source that produced the
// morsel.
func (m Morsel) Source() *SourceToken { return m.source }

// Release drops the morsel's reference to its record. Only the current owner
// may call it, and only when the morsel will not be sent onward.
func (m Morsel) Release() {
	if m.rec != nil {
		m.rec.Release()
	}
}
