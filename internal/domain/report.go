package domain

import "time"

// RunState is the orchestrator's position in the backup pipeline.
type RunState int

const (
	StateIdle RunState = iota
	StateLoading
	StateResolving
	StateRunning
	StateFinalizing
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateResolving:
		return "resolving"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// TaskFailure is one recorded per-task failure.
type TaskFailure struct {
	Service string
	Kind    TaskKind
	Target  string
	Message string
}

// ResumeFailure records a service that may have been left stopped.
type ResumeFailure struct {
	Service string
	Message string
}

// RunReport is the aggregate outcome of one scheme execution.
type RunReport struct {
	State          RunState
	StartedAt      time.Time
	FinishedAt     time.Time
	Succeeded      int
	Artifacts      []Artifact
	Failures       []TaskFailure
	ResumeFailures []ResumeFailure
}

// Failed reports whether the run must be considered unsuccessful.
func (r *RunReport) Failed() bool {
	return len(r.Failures) > 0 || len(r.ResumeFailures) > 0 || r.State == StateFailed
}
