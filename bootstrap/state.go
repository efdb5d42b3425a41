package bootstrap

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nomis52/goprovision/document"
	"github.com/nomis52/goprovision/stage"
)

// Phase is the position of a run in the stage pipeline.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProvider
	PhaseInstanceType
	PhaseRegion
	PhaseZone
	PhaseNode
	PhaseAccessKey
	PhaseDone
	// PhaseFailed is absorbing; no stage is launched once a run has failed.
	PhaseFailed
)

func phaseOf(t stage.Type) Phase {
	return Phase(int(t) + 1)
}

// Stage returns the stage that is running in phase p.
func (p Phase) Stage() (stage.Type, bool) {
	if p >= PhaseProvider && p <= PhaseAccessKey {
		return stage.Type(int(p) - 1), true
	}
	return 0, false
}

// String returns a human-readable representation of the Phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	}
	if t, ok := p.Stage(); ok {
		return t.String()
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseIdle; candidate <= PhaseFailed; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// IsTerminal returns true once the run will not change phase again.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Event is the completion of one request.
type Event struct {
	RunID uuid.UUID
	Stage stage.Type
	// Key identifies the item: instance type code, region code, zone key
	// (see document.ZoneKey), node IP or access key code.
	Key string
	// UUID is the identifier assigned by the control plane, if any.
	UUID string
	Err  error
}

// Transition describes what a call to Start or Apply changed.
type Transition struct {
	From Phase
	To   Phase
	// Launch is the stage whose requests must be issued next. It is only
	// meaningful when ShouldLaunch is set.
	Launch       stage.Type
	ShouldLaunch bool
	// Changes lists the stage table updates in the order they were made.
	Changes []stage.Change
	// Skipped lists stages that were passed over because they had no work.
	Skipped []stage.Type
}

// Failure is one failed request.
type Failure struct {
	Stage stage.Type `json:"stage"`
	Key   string     `json:"key,omitempty"`
	Error string     `json:"error"`
}

// RunState is the working memory of one run. It is not safe for concurrent
// use and is never reused; every run starts from a fresh RunState.
type RunState struct {
	ID   uuid.UUID
	Mode document.Mode

	phase Phase
	table *stage.Table
	plan  *Plan

	providerUUID  string
	provider      *counter
	instanceTypes *counter
	regions       *keyed
	zones         *keyed
	nodes         *counter
	accessKeys    *counter

	failedStage stage.Type
	err         error
	failures    []Failure
	skipped     []stage.Type
}

// Start validates doc, resolves the plan and enters the first stage with
// work. Validation errors are returned before any stage is marked Running.
func Start(doc *document.Document, mode document.Mode) (*RunState, Transition, error) {
	return StartWithID(uuid.New(), doc, mode)
}

// StartWithID is Start for a run whose identifier was assigned by the caller.
// A nil id is replaced by a fresh one.
func StartWithID(id uuid.UUID, doc *document.Document, mode document.Mode) (*RunState, Transition, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	if doc == nil {
		return nil, Transition{}, errors.New("no configuration document")
	}
	if err := doc.Validate(mode); err != nil {
		return nil, Transition{}, err
	}

	plan := PlanFor(doc, mode)
	rs := &RunState{
		ID:            id,
		Mode:          mode,
		phase:         PhaseIdle,
		table:         stage.Init(),
		plan:          plan,
		providerUUID:  plan.ProviderUUID,
		provider:      newCounter(plan.Expected(stage.Provider)),
		instanceTypes: newCounter(plan.Expected(stage.InstanceType)),
		regions:       newKeyed(plan.Expected(stage.Region)),
		zones:         newKeyed(plan.Expected(stage.Zone)),
		nodes:         newCounter(plan.Expected(stage.Node)),
		accessKeys:    newCounter(plan.Expected(stage.AccessKey)),
	}

	tr := Transition{From: PhaseIdle, To: PhaseIdle}
	rs.enter(&tr, stage.All())
	return rs, tr, nil
}

// Apply advances the run with the result of one request.
//
// A failed request marks its stage Error and moves the run to PhaseFailed.
// Successful results of the failed stage's siblings are still recorded but
// never launch another stage. When the current stage has all its results it
// is marked Success and the next stage with work is returned in the
// Transition.
func (rs *RunState) Apply(ev Event) (Transition, error) {
	if rs == nil || rs.phase == PhaseIdle {
		return Transition{}, ErrNotStarted
	}
	if ev.RunID != rs.ID {
		return Transition{}, fmt.Errorf("%w: %s", ErrStaleEvent, ev.RunID)
	}
	if rs.phase == PhaseDone {
		return Transition{}, ErrRunFinished
	}

	tr := Transition{From: rs.phase, To: rs.phase}

	if rs.phase == PhaseFailed {
		if ev.Stage != rs.failedStage {
			return tr, fmt.Errorf("%w: %s after run failed in %s", ErrUnexpectedStage, ev.Stage, rs.failedStage)
		}
		if ev.Err != nil {
			rs.failures = append(rs.failures, Failure{Stage: ev.Stage, Key: ev.Key, Error: ev.Err.Error()})
			return tr, nil
		}
		return tr, rs.record(ev)
	}

	current, _ := rs.phase.Stage()
	if ev.Stage != current {
		return tr, fmt.Errorf("%w: got %s while %s is running", ErrUnexpectedStage, ev.Stage, current)
	}

	if ev.Err != nil {
		rs.failures = append(rs.failures, Failure{Stage: ev.Stage, Key: ev.Key, Error: ev.Err.Error()})
		rs.failedStage = current
		rs.err = ev.Err
		rs.setStatus(&tr, current, stage.Error)
		rs.phase = PhaseFailed
		tr.To = PhaseFailed
		return tr, nil
	}

	if err := rs.record(ev); err != nil {
		return tr, err
	}
	if !rs.IsStageComplete(current) {
		return tr, nil
	}

	rs.setStatus(&tr, current, stage.Success)
	rs.enter(&tr, rs.after(current))
	return tr, nil
}

// after returns the stages that follow t in table order.
func (rs *RunState) after(t stage.Type) []stage.Type {
	var out []stage.Type
	for next, ok := rs.table.Next(t); ok; next, ok = rs.table.Next(next) {
		out = append(out, next)
	}
	return out
}

// enter launches the first of candidates that has work, marking the ones
// before it as skipped. The run is Done when none has work.
func (rs *RunState) enter(tr *Transition, candidates []stage.Type) {
	for _, t := range candidates {
		if rs.plan.Expected(t) == 0 {
			rs.setStatus(tr, t, stage.Success)
			rs.skipped = append(rs.skipped, t)
			tr.Skipped = append(tr.Skipped, t)
			continue
		}
		rs.setStatus(tr, t, stage.Running)
		rs.phase = phaseOf(t)
		tr.To = rs.phase
		tr.Launch = t
		tr.ShouldLaunch = true
		return
	}
	rs.phase = PhaseDone
	tr.To = PhaseDone
}

func (rs *RunState) setStatus(tr *Transition, t stage.Type, s stage.Status) {
	// Every stage.Type handled here is part of the table.
	_ = rs.table.SetStatus(t, s)
	tr.Changes = append(tr.Changes, stage.Change{Type: t, Status: s})
}

func (rs *RunState) record(ev Event) error {
	switch ev.Stage {
	case stage.Provider:
		if ev.UUID == "" {
			return errors.New("provider result carries no uuid")
		}
		if _, err := rs.provider.recordCompletion(); err != nil {
			return err
		}
		rs.providerUUID = ev.UUID
	case stage.InstanceType:
		_, err := rs.instanceTypes.recordCompletion()
		return err
	case stage.Region:
		if ev.UUID == "" {
			return fmt.Errorf("region %q result carries no uuid", ev.Key)
		}
		_, err := rs.regions.record(ev.Key, ev.UUID)
		return err
	case stage.Zone:
		if ev.UUID == "" {
			return fmt.Errorf("zone %q result carries no uuid", ev.Key)
		}
		_, err := rs.zones.record(ev.Key, ev.UUID)
		return err
	case stage.Node:
		_, err := rs.nodes.recordCompletion()
		return err
	case stage.AccessKey:
		_, err := rs.accessKeys.recordCompletion()
		return err
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStage, int(ev.Stage))
	}
	return nil
}

func (rs *RunState) tracker(t stage.Type) tracker {
	switch t {
	case stage.Provider:
		return rs.provider
	case stage.InstanceType:
		return rs.instanceTypes
	case stage.Region:
		return rs.regions
	case stage.Zone:
		return rs.zones
	case stage.Node:
		return rs.nodes
	case stage.AccessKey:
		return rs.accessKeys
	}
	return nil
}

// IsStageComplete reports whether every expected result of t has arrived.
// A stage that expects nothing is complete.
func (rs *RunState) IsStageComplete(t stage.Type) bool {
	tk := rs.tracker(t)
	if tk == nil {
		return false
	}
	return tk.complete()
}

// Progress returns the number of results received and expected for t.
func (rs *RunState) Progress(t stage.Type) (done, total int) {
	tk := rs.tracker(t)
	if tk == nil {
		return 0, 0
	}
	return tk.done(), tk.total()
}

// Phase returns the current phase.
func (rs *RunState) Phase() Phase { return rs.phase }

// Stages returns a copy of the stage table.
func (rs *RunState) Stages() []stage.Entry { return rs.table.Entries() }

// ProviderUUID returns the provider the run works on, once known.
func (rs *RunState) ProviderUUID() string { return rs.providerUUID }

// Plan returns the resolved work of the run.
func (rs *RunState) Plan() *Plan { return rs.plan }

// Regions returns a copy of the region code to UUID map.
func (rs *RunState) Regions() map[string]string { return rs.regions.snapshot() }

// Zones returns a copy of the zone key to UUID map.
func (rs *RunState) Zones() map[string]string { return rs.zones.snapshot() }

// FailedStage returns the stage that stopped the run.
func (rs *RunState) FailedStage() (stage.Type, bool) {
	if rs.phase != PhaseFailed {
		return 0, false
	}
	return rs.failedStage, true
}

// Err returns the first error of the failed stage, or nil.
func (rs *RunState) Err() error { return rs.err }

// Failures returns every failed request seen so far.
func (rs *RunState) Failures() []Failure {
	return append([]Failure(nil), rs.failures...)
}

// Skipped returns the stages that had nothing to do.
func (rs *RunState) Skipped() []stage.Type {
	return append([]stage.Type(nil), rs.skipped...)
}
