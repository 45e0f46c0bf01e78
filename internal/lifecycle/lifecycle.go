package lifecycle

import "sync/atomic"

// Phase names the pipeline stage the run is in.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhaseSampling  Phase = "sampling"
	PhaseResolving Phase = "resolving"
	PhaseFetching  Phase = "fetching"
	PhaseCleaning  Phase = "cleaning"
	PhaseExporting Phase = "exporting"
	PhasePlotting  Phase = "plotting"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

var (
	phase        atomic.Value
	shuttingDown atomic.Bool
	planned      atomic.Int64
	fetched      atomic.Int64
	skipped      atomic.Int64
)

func init() {
	phase.Store(PhaseStarting)
}

// SetPhase records the current pipeline stage. Read by the status handler.
func SetPhase(p Phase) {
	phase.Store(p)
}

// CurrentPhase returns the stage last passed to SetPhase.
func CurrentPhase() Phase {
	return phase.Load().(Phase)
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// The fetch loop stops issuing requests and health reports shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the run was interrupted and is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// SetPlanned records how many cities the fetch loop will visit.
func SetPlanned(n int) {
	planned.Store(int64(n))
}

// RecordFetched counts one city appended to the raw table.
func RecordFetched() {
	fetched.Add(1)
}

// RecordSkipped counts one city the fetch loop gave up on.
func RecordSkipped() {
	skipped.Add(1)
}

// Progress is a point-in-time view of the fetch loop.
type Progress struct {
	Phase   Phase `json:"phase"`
	Planned int64 `json:"planned"`
	Fetched int64 `json:"fetched"`
	Skipped int64 `json:"skipped"`
}

// Snapshot returns the current phase and counters.
func Snapshot() Progress {
	return Progress{
		Phase:   CurrentPhase(),
		Planned: planned.Load(),
		Fetched: fetched.Load(),
		Skipped: skipped.Load(),
	}
}

// Reset restores the initial state. Used by tests.
func Reset() {
	phase.Store(PhaseStarting)
	shuttingDown.Store(false)
	planned.Store(0)
	fetched.Store(0)
	skipped.Store(0)
}
