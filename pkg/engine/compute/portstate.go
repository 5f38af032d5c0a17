package compute

import "fmt"

// PortState is the readiness signal a node exchanges with the graph runner
// for each of its ports on every scheduling step.
type PortState int

const (
	// Ready indicates the port may exchange morsels this step.
	Ready PortState = iota
	// Blocked indicates the port must wait; no morsels are exchanged this
	// step, but the port may become Ready again later.
	Blocked
	// Done indicates the port is permanently finished and will never be
	// touched again.
	Done
)

// String implements fmt.Stringer.
func (s PortState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Blocked:
		return "blocked"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("portstate(%d)", int(s))
	}
}
