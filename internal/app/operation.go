package app

import "time"

// Operation identifies one CLI invocation in the log. Every line written
// during the invocation carries its ID.
type Operation struct {
	Name      string
	StartedAt time.Time
}

// NewOperation creates an operation started at now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{Name: name, StartedAt: now}
}

// ID returns "<UTC start>-<name>", e.g. "20240115T103000Z-sync".
func (op *Operation) ID() string {
	id := op.StartedAt.UTC().Format("20060102T150405Z")
	if op.Name == "" {
		return id
	}
	return id + "-" + op.Name
}
