package bootstrap

import (
	"github.com/nomis52/goprovision/document"
	"github.com/nomis52/goprovision/stage"
)

// EditDiff is the subset of a document that an edit re-provisions.
type EditDiff struct {
	RegionsToCreate       []document.Region
	InstanceTypesToCreate []document.InstanceType
	// NodesToCreate holds the nodes that live in one of RegionsToCreate.
	NodesToCreate []document.Node
	// TotalZones is the number of zones across RegionsToCreate.
	TotalZones int
	// TotalInstances is the number of instance types to create.
	TotalInstances int
}

// IsNoop reports whether the edit has nothing to create.
func (d EditDiff) IsNoop() bool {
	return d.TotalInstances == 0 && len(d.RegionsToCreate) == 0
}

// DiffForEdit selects the instance types and regions flagged isBeingEdited.
func DiffForEdit(doc *document.Document) EditDiff {
	var diff EditDiff
	for _, it := range doc.InstanceTypes {
		if it.IsBeingEdited {
			diff.InstanceTypesToCreate = append(diff.InstanceTypesToCreate, it)
		}
	}

	edited := make(map[string]bool)
	for _, r := range doc.Regions {
		if r.IsBeingEdited {
			diff.RegionsToCreate = append(diff.RegionsToCreate, r)
			edited[r.Code] = true
		}
	}
	for _, n := range doc.Nodes {
		if edited[n.Region] {
			diff.NodesToCreate = append(diff.NodesToCreate, n)
		}
	}

	diff.TotalZones = document.ZoneCount(diff.RegionsToCreate)
	diff.TotalInstances = len(diff.InstanceTypesToCreate)
	return diff
}

// Plan is the resolved work of one run. Create and edit runs produce the
// same shape so every stage is handled identically in both modes.
type Plan struct {
	Mode document.Mode
	// Provider is only set in create mode.
	Provider *ProviderRequest
	// ProviderUUID is the existing provider in edit mode.
	ProviderUUID  string
	InstanceTypes []document.InstanceType
	Regions       []document.Region
	Nodes         []document.Node
	// Key is nil when the access key stage has nothing to do.
	Key *document.AccessKey
	// Noop is set for edits that flag nothing.
	Noop bool
}

// PlanFor resolves the work of a run. The document must already be valid
// for mode.
func PlanFor(doc *document.Document, mode document.Mode) *Plan {
	if mode == document.Edit {
		diff := DiffForEdit(doc)
		return &Plan{
			Mode:          mode,
			ProviderUUID:  doc.Provider.UUID,
			InstanceTypes: diff.InstanceTypesToCreate,
			Regions:       diff.RegionsToCreate,
			Nodes:         withSSHUsers(doc, diff.NodesToCreate),
			Noop:          diff.IsNoop(),
		}
	}

	return &Plan{
		Mode: mode,
		Provider: &ProviderRequest{
			Code:   document.ProviderCode,
			Name:   doc.Provider.Name,
			Config: doc.Provider.Config,
		},
		InstanceTypes: doc.InstanceTypes,
		Regions:       doc.Regions,
		Nodes:         withSSHUsers(doc, doc.Nodes),
		Key:           doc.Key,
	}
}

// withSSHUsers copies nodes with the access key's user filled in where a
// node names none, so the control plane registers the user preflight logs
// in with.
func withSSHUsers(doc *document.Document, nodes []document.Node) []document.Node {
	if nodes == nil {
		return nil
	}
	out := make([]document.Node, len(nodes))
	for i, n := range nodes {
		n.SSHUser = doc.NodeSSHUser(n)
		out[i] = n
	}
	return out
}

// Expected returns the number of results stage t waits for.
func (p *Plan) Expected(t stage.Type) int {
	switch t {
	case stage.Provider:
		if p.Provider != nil {
			return 1
		}
	case stage.InstanceType:
		return len(p.InstanceTypes)
	case stage.Region:
		return len(p.Regions)
	case stage.Zone:
		return document.ZoneCount(p.Regions)
	case stage.Node:
		return len(p.Nodes)
	case stage.AccessKey:
		if p.Key != nil && len(p.Regions) > 0 {
			return 1
		}
	}
	return 0
}

// Total returns the number of requests across all stages.
func (p *Plan) Total() int {
	n := 0
	for _, t := range stage.All() {
		n += p.Expected(t)
	}
	return n
}
