// Package status defines the processing lifecycle shared by every enrichable
// entity (notes, tasks, activities): the six lifecycle states, the legal
// transitions between them, and the terminal flag.
package status

import "fmt"

// Status is the processing state of an enrichable entity.
type Status string

const (
	// NotProcessed is the default for entities that never entered the pipeline.
	NotProcessed Status = "NOT_PROCESSED"

	// Pending means enrichment has been requested and queued.
	Pending Status = "PENDING"

	// Processing means a worker has picked the entity up.
	Processing Status = "PROCESSING"

	// Completed means enrichment finished and results were persisted.
	Completed Status = "COMPLETED"

	// Failed means all enrichment attempts were exhausted.
	Failed Status = "FAILED"

	// Skipped means enrichment was deliberately not performed.
	Skipped Status = "SKIPPED"
)

// Default returns the status assigned to entities that have never been queued.
func Default() Status { return NotProcessed }

// transitions is the authoritative transition table. Note FAILED and SKIPPED
// count as terminal yet keep an outgoing edge back to PENDING (the
// retry-from-failure path); the table and the terminal flag are independent
// facts, neither derived from the other.
var transitions = map[Status][]Status{
	NotProcessed: {Pending, Skipped},
	Pending:      {Processing, Failed, Skipped},
	Processing:   {Completed, Failed},
	Completed:    {},
	Failed:       {Pending},
	Skipped:      {Pending},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is one of the end-of-lifecycle statuses.
// Informational only; consult the transition table for what is legal.
func (s Status) IsTerminal() bool {
	switch s {
	case Completed, Failed, Skipped:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

// Parse converts a stored string value into a Status.
func Parse(raw string) (Status, error) {
	switch Status(raw) {
	case NotProcessed, Pending, Processing, Completed, Failed, Skipped:
		return Status(raw), nil
	}
	return "", fmt.Errorf("unknown processing status %q", raw)
}

// InvalidTransitionError reports an attempted illegal status transition.
// Callers must treat it as fatal: the state machine never auto-corrects.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// Check returns an *InvalidTransitionError if moving from s to next is not in
// the transition table, nil otherwise.
func Check(s, next Status) error {
	if !s.CanTransitionTo(next) {
		return &InvalidTransitionError{From: s, To: next}
	}
	return nil
}
