package types

// CycleState is the state of a supervisor's background loop
type CycleState string

const (
	CycleStopped = CycleState("stopped")
	CycleRunning = CycleState("running")
	CycleExited  = CycleState("exited")
)
