package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Graph errors.
var (
	// ErrCycleDetected indicates the graph contains at least one cycle.
	ErrCycleDetected = errors.New("cycle detected")
)

// CycleError reports one cycle found while sorting.
// The path starts and ends with the same node.
type CycleError struct {
	Cycle []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	if len(e.Cycle) == 0 {
		return ErrCycleDetected.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.Cycle, " -> "))
}

// Is allows errors.Is to match CycleError with ErrCycleDetected.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}
