package supervisor

import "errors"

var (
	ErrInvalidOrder      = errors.New("order is not valid")
	ErrOrderNotFound     = errors.New("order is not in the desired set")
	ErrOrderAlreadyAdded = errors.New("order is already in the desired set")
	ErrExited            = errors.New("supervisor cycle has exited")
	// ErrReentrantStop is returned when StopCycle is called with the loop's own context;
	// waiting there for the loop to acknowledge would never return.
	ErrReentrantStop = errors.New("stop cycle called from the supervisor loop")
	// ErrLoopContext guards the blocking entry methods from running inside a duty cycle.
	ErrLoopContext  = errors.New("blocking call from the supervisor loop")
	ErrInvalidEntry = errors.New("invalid entry parameters")
)
