package stage

import "fmt"

// Entry is one row of the stage table.
type Entry struct {
	Type   Type   `json:"type"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// Change records a status update applied to the table.
type Change struct {
	Type   Type
	Status Status
}

// Table holds the status of the six stages in execution order.
// A Table is not safe for concurrent use; it is owned by a single run.
type Table struct {
	entries []Entry
}

// Init returns a table with every stage in the Initializing state.
func Init() *Table {
	types := All()
	entries := make([]Entry, len(types))
	for i, t := range types {
		entries[i] = Entry{Type: t, Name: t.Label(), Status: Initializing}
	}
	return &Table{entries: entries}
}

// IndexOf returns the position of t in the table, or -1 if it is not present.
func (tb *Table) IndexOf(t Type) int {
	for i, e := range tb.entries {
		if e.Type == t {
			return i
		}
	}
	return -1
}

// SetStatus updates the status of t. Transitions are not validated; the only
// failure is a stage that is not part of the table.
func (tb *Table) SetStatus(t Type, s Status) error {
	i := tb.IndexOf(t)
	if i < 0 {
		return fmt.Errorf("unknown stage %d", int(t))
	}
	tb.entries[i].Status = s
	return nil
}

// Status returns the current status of t.
func (tb *Table) Status(t Type) Status {
	if i := tb.IndexOf(t); i >= 0 {
		return tb.entries[i].Status
	}
	return Initializing
}

// Entries returns a copy of the table rows.
func (tb *Table) Entries() []Entry {
	out := make([]Entry, len(tb.entries))
	copy(out, tb.entries)
	return out
}

// Next returns the stage after t and false when t is the last stage.
func (tb *Table) Next(t Type) (Type, bool) {
	i := tb.IndexOf(t)
	if i < 0 || i+1 >= len(tb.entries) {
		return t, false
	}
	return tb.entries[i+1].Type, true
}
