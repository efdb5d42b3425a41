package document

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ValidationError lists every problem found in a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid configuration document: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid configuration document (%d problems):\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate checks the document for the given mode. It returns a
// *ValidationError describing every problem, or nil.
//
// Create mode requires a provider name, at least one region and an access
// key. Edit mode requires the UUID of the existing provider.
func (d *Document) Validate(mode Mode) error {
	var p problems

	switch mode {
	case Create:
		if d.Provider.Name == "" {
			p.addf("provider name is required")
		}
		if len(d.Regions) == 0 {
			p.addf("at least one region is required")
		}
		if d.Key == nil {
			p.addf("access key is required")
		}
	case Edit:
		if d.Provider.UUID == "" {
			p.addf("provider uuid is required in edit mode")
		}
	default:
		p.addf("unknown mode %d", int(mode))
	}

	instanceTypes := d.validateInstanceTypes(&p)
	zones := d.validateRegions(&p)
	d.validateNodes(&p, mode, instanceTypes, zones)
	if d.Key != nil {
		validateKey(&p, d.Key)
	}

	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}

func (d *Document) validateInstanceTypes(p *problems) map[string]bool {
	seen := make(map[string]bool, len(d.InstanceTypes))
	for i, it := range d.InstanceTypes {
		if it.InstanceTypeCode == "" {
			p.addf("instance type %d: instanceTypeCode is required", i)
			continue
		}
		if seen[it.InstanceTypeCode] {
			p.addf("instance type %q is defined more than once", it.InstanceTypeCode)
		}
		seen[it.InstanceTypeCode] = true
		if it.NumCores <= 0 {
			p.addf("instance type %q: numCores must be positive", it.InstanceTypeCode)
		}
		if it.MemSizeGB <= 0 {
			p.addf("instance type %q: memSizeGB must be positive", it.InstanceTypeCode)
		}
		for _, v := range it.Volumes {
			if v.MountPath == "" {
				p.addf("instance type %q: volume mountPath is required", it.InstanceTypeCode)
			}
			if v.VolumeSizeGB <= 0 {
				p.addf("instance type %q: volume %q size must be positive", it.InstanceTypeCode, v.MountPath)
			}
		}
	}
	return seen
}

func (d *Document) validateRegions(p *problems) map[string]bool {
	seenRegions := make(map[string]bool, len(d.Regions))
	zones := make(map[string]bool)
	for i, r := range d.Regions {
		if r.Code == "" {
			p.addf("region %d: code is required", i)
			continue
		}
		if strings.Contains(r.Code, "/") {
			p.addf("region %q: code must not contain %q", r.Code, "/")
		}
		if seenRegions[r.Code] {
			p.addf("region %q is defined more than once", r.Code)
		}
		seenRegions[r.Code] = true
		if r.Latitude < -90 || r.Latitude > 90 {
			p.addf("region %q: latitude %v out of range", r.Code, r.Latitude)
		}
		if r.Longitude < -180 || r.Longitude > 180 {
			p.addf("region %q: longitude %v out of range", r.Code, r.Longitude)
		}
		for j, z := range r.Zones {
			if z.Code == "" {
				p.addf("region %q zone %d: code is required", r.Code, j)
				continue
			}
			if strings.Contains(z.Code, "/") {
				p.addf("zone %q in region %q: code must not contain %q", z.Code, r.Code, "/")
			}
			key := ZoneKey(r.Code, z.Code)
			if zones[key] {
				p.addf("zone %q is defined more than once in region %q", z.Code, r.Code)
			}
			zones[key] = true
		}
	}
	return zones
}

func (d *Document) validateNodes(p *problems, mode Mode, instanceTypes, zones map[string]bool) {
	seen := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.IP == "" {
			p.addf("node %d: ip is required", i)
			continue
		}
		if seen[n.IP] {
			p.addf("node %q is defined more than once", n.IP)
		}
		seen[n.IP] = true
		if n.InstanceType == "" {
			p.addf("node %q: instanceType is required", n.IP)
		} else if mode == Create && !instanceTypes[n.InstanceType] {
			// In edit mode the instance type may already exist on the provider.
			p.addf("node %q: unknown instance type %q", n.IP, n.InstanceType)
		}
		if !zones[ZoneKey(n.Region, n.Zone)] {
			p.addf("node %q: unknown zone %q in region %q", n.IP, n.Zone, n.Region)
		}
		if d.NodeSSHUser(n) == "" {
			p.addf("node %q: no ssh user and no access key user to fall back to", n.IP)
		}
	}
}

func validateKey(p *problems, k *AccessKey) {
	if k.Code == "" {
		p.addf("access key code is required")
	}
	if k.SSHUser == "" {
		p.addf("access key sshUser is required")
	}
	if k.SSHPort < 0 || k.SSHPort > 65535 {
		p.addf("access key sshPort %d out of range", k.SSHPort)
	}
	if k.PrivateKeyContent == "" {
		p.addf("access key privateKeyContent is required")
		return
	}
	if _, err := ParsePrivateKey(k); err != nil {
		p.addf("access key %q: %v", k.Code, err)
	}
}

// ParsePrivateKey parses the key's PEM content.
func ParsePrivateKey(k *AccessKey) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey([]byte(k.PrivateKeyContent))
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.New("private key is passphrase protected")
		}
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

// KeyFingerprint returns the SHA256 fingerprint of the key's public half.
func KeyFingerprint(k *AccessKey) (string, error) {
	signer, err := ParsePrivateKey(k)
	if err != nil {
		return "", err
	}
	return ssh.FingerprintSHA256(signer.PublicKey()), nil
}
