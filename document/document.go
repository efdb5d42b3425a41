// Package document defines the configuration document that describes an
// on-prem deployment: the provider, its instance types, regions and zones,
// the node instances to register and the SSH access key.
//
// Documents are produced by an editor (a form or raw YAML/JSON) and are
// treated as immutable input by the bootstrap orchestrator. Load accepts
// YAML or JSON; validation happens before any request is issued.
//
// Example:
//
//	doc, err := document.LoadFile("onprem.yaml")
//	if err != nil {
//		return err
//	}
//	if err := doc.Validate(document.Create); err != nil {
//		return err
//	}
package document

// ProviderCode is the provider code used for every on-prem provider.
const ProviderCode = "onprem"

// Mode selects whether a document creates a new provider or edits an existing one.
type Mode int

const (
	// Create provisions everything in the document.
	Create Mode = iota
	// Edit re-provisions only the items flagged isBeingEdited against an existing provider.
	Edit
)

// String returns a human-readable representation of the Mode.
func (m Mode) String() string {
	switch m {
	case Create:
		return "create"
	case Edit:
		return "edit"
	default:
		return "unknown"
	}
}

// Document is the declarative description of an on-prem deployment.
type Document struct {
	Provider      Provider       `yaml:"provider" json:"provider"`
	InstanceTypes []InstanceType `yaml:"instanceTypes" json:"instanceTypes"`
	Regions       []Region       `yaml:"regions" json:"regions"`
	Nodes         []Node         `yaml:"nodes" json:"nodes"`
	Key           *AccessKey     `yaml:"key,omitempty" json:"key,omitempty"`
}

// Provider describes the on-prem provider.
type Provider struct {
	Name string `yaml:"name" json:"name"`
	// UUID identifies an existing provider. Required in edit mode.
	UUID string `yaml:"uuid,omitempty" json:"uuid,omitempty"`
	// Config is forwarded to the control plane unchanged.
	Config map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
}

// InstanceType describes a machine shape offered by the provider.
type InstanceType struct {
	InstanceTypeCode string   `yaml:"instanceTypeCode" json:"instanceTypeCode"`
	NumCores         float64  `yaml:"numCores" json:"numCores"`
	MemSizeGB        float64  `yaml:"memSizeGB" json:"memSizeGB"`
	Volumes          []Volume `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	IsBeingEdited    bool     `yaml:"isBeingEdited,omitempty" json:"isBeingEdited,omitempty"`
}

// Volume is a data volume attached to every node of an instance type.
type Volume struct {
	MountPath    string  `yaml:"mountPath" json:"mountPath"`
	VolumeSizeGB float64 `yaml:"volumeSizeGB" json:"volumeSizeGB"`
}

// Region groups availability zones.
type Region struct {
	Code          string  `yaml:"code" json:"code"`
	Name          string  `yaml:"name,omitempty" json:"name,omitempty"`
	Latitude      float64 `yaml:"latitude" json:"latitude"`
	Longitude     float64 `yaml:"longitude" json:"longitude"`
	Zones         []Zone  `yaml:"zones" json:"zones"`
	IsBeingEdited bool    `yaml:"isBeingEdited,omitempty" json:"isBeingEdited,omitempty"`
}

// Zone is an availability zone nested under a region.
type Zone struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// Node is a physical or virtual machine registered in a zone.
type Node struct {
	IP           string `yaml:"ip" json:"ip"`
	SSHUser      string `yaml:"sshUser,omitempty" json:"sshUser,omitempty"`
	InstanceType string `yaml:"instanceType" json:"instanceType"`
	InstanceName string `yaml:"instanceName,omitempty" json:"instanceName,omitempty"`
	Region       string `yaml:"region" json:"region"`
	Zone         string `yaml:"zone" json:"zone"`
}

// AccessKey is the SSH key the control plane uses to reach the nodes.
type AccessKey struct {
	Code                   string   `yaml:"code" json:"code"`
	PrivateKeyContent      string   `yaml:"privateKeyContent" json:"privateKeyContent"`
	SSHUser                string   `yaml:"sshUser" json:"sshUser"`
	SSHPort                int      `yaml:"sshPort,omitempty" json:"sshPort,omitempty"`
	PasswordlessSudoAccess bool     `yaml:"passwordlessSudoAccess" json:"passwordlessSudoAccess"`
	AirGapInstall          bool     `yaml:"airGapInstall" json:"airGapInstall"`
	SkipProvisioning       bool     `yaml:"skipProvisioning,omitempty" json:"skipProvisioning,omitempty"`
	NTPServers             []string `yaml:"ntpServers,omitempty" json:"ntpServers,omitempty"`
}

// ZoneKey returns the key that identifies a zone across regions. Validate
// rejects codes containing "/", which keeps the key unambiguous.
func ZoneKey(regionCode, zoneCode string) string {
	return regionCode + "/" + zoneCode
}

// ZoneCount returns the number of zones across the given regions.
func ZoneCount(regions []Region) int {
	n := 0
	for _, r := range regions {
		n += len(r.Zones)
	}
	return n
}

// NodeSSHUser returns the SSH user for n, falling back to the access key's user.
func (d *Document) NodeSSHUser(n Node) string {
	if n.SSHUser != "" {
		return n.SSHUser
	}
	if d.Key != nil {
		return d.Key.SSHUser
	}
	return ""
}
