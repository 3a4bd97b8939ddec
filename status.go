package leasepool

import "fmt"

// StatusLabel is the coarse health label derived from the pool's counts.
type StatusLabel int

const (
	// StatusReady means at least one idle worker is available; the next
	// checkout is served immediately. This holds even while some overflow
	// workers are alive.
	StatusReady StatusLabel = iota

	// StatusOverflow means no worker is idle but the pool can still grow.
	StatusOverflow

	// StatusFull means checkouts can no longer be served without waiting:
	// overflow is at its limit, or the pool has no idle worker and was
	// configured with no overflow at all.
	StatusFull
)

func (s StatusLabel) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusOverflow:
		return "overflow"
	case StatusFull:
		return "full"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Status is a point-in-time snapshot of the pool.
type Status struct {
	State   StatusLabel
	Idle    int
	InUse   int
	Waiting int
}
