// Package stage defines the six fixed stages of an on-prem bootstrap run and
// the table that tracks their status for progress reporting.
//
// The table is purely observational: it records what the orchestrator has
// decided, it never gates a transition.
package stage

import "fmt"

// Type identifies one of the fixed bootstrap stages.
type Type int

const (
	// Provider creates (or, in edit mode, reuses) the on-prem provider.
	Provider Type = iota
	// InstanceType creates the provider's instance types.
	InstanceType
	// Region creates regions under the provider.
	Region
	// Zone creates availability zones under the created regions.
	Zone
	// Node registers node instances in the created zones.
	Node
	// AccessKey uploads the SSH access key for the provider.
	AccessKey
)

// All returns the stages in execution order.
func All() []Type {
	return []Type{Provider, InstanceType, Region, Zone, Node, AccessKey}
}

// String returns the stage key used in logs, metrics labels and JSON.
func (t Type) String() string {
	switch t {
	case Provider:
		return "provider"
	case InstanceType:
		return "instanceType"
	case Region:
		return "region"
	case Zone:
		return "zone"
	case Node:
		return "node"
	case AccessKey:
		return "accessKey"
	default:
		return "unknown"
	}
}

// Label returns the human readable name shown in progress lists.
func (t Type) Label() string {
	switch t {
	case Provider:
		return "Provider"
	case InstanceType:
		return "Instance Types"
	case Region:
		return "Regions"
	case Zone:
		return "Zones"
	case Node:
		return "Node Instances"
	case AccessKey:
		return "Access Keys"
	default:
		return "Unknown"
	}
}

// Valid reports whether t is one of the fixed stages.
func (t Type) Valid() bool {
	return t >= Provider && t <= AccessKey
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Parse returns the stage whose String is name.
func Parse(name string) (Type, error) {
	for _, t := range All() {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Status is the reported state of a stage.
type Status int

const (
	// Initializing is the state of every stage before the run reaches it.
	Initializing Status = iota
	// Running indicates the stage's requests have been issued.
	Running
	// Success indicates every request of the stage succeeded, or the stage
	// had nothing to do.
	Success
	// Error indicates at least one request of the stage failed.
	Error
)

// String returns a human-readable representation of the Status.
func (s Status) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Running:
		return "Running"
	case Success:
		return "Success"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for _, st := range []Status{Initializing, Running, Success, Error} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown stage status %q", text)
}

// IsTerminal returns true if the stage will not change status again within a run.
func (s Status) IsTerminal() bool {
	return s == Success || s == Error
}
