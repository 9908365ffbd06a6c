package reconcile

import (
	"github.com/google/uuid"
)

// Action is the reported per-record result of a reconciliation.
type Action string

const (
	// ActionPending marks an outcome whose primary write is still queued
	// in an open batch. Never reported; replaced when the batch flushes.
	ActionPending Action = "pending"

	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionSkipped   Action = "skipped"
	ActionFailed    Action = "failed"
)

// Outcome is what the caller learns about one input record: the resulting
// identity, the action taken, and zero or more per-item errors (primary
// write, ownership, state transition). Errors never abort the stream.
type Outcome struct {
	Index  int
	Entity string
	ID     uuid.UUID
	Action Action
	Errs   []error
}

// Failed reports whether the record's primary write failed or any
// dependent operation errored.
func (o *Outcome) Failed() bool {
	return o.Action == ActionFailed || len(o.Errs) > 0
}

// Summary aggregates a whole run. Errored counts records that finished in
// their primary bucket but carried at least one dependent-operation error;
// Failed counts records whose primary write (or conversion) failed.
type Summary struct {
	Total     int
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Failed    int
	Errored   int
}

// Add folds one finished outcome into the summary.
func (s *Summary) Add(o *Outcome) {
	s.Total++
	switch o.Action {
	case ActionCreated:
		s.Created++
	case ActionUpdated:
		s.Updated++
	case ActionUnchanged:
		s.Unchanged++
	case ActionSkipped:
		s.Skipped++
	case ActionFailed:
		s.Failed++
	}
	if o.Action != ActionFailed && len(o.Errs) > 0 {
		s.Errored++
	}
}

// Clean reports whether the run finished with no failures or errors.
func (s *Summary) Clean() bool {
	return s.Failed == 0 && s.Errored == 0
}
