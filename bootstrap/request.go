package bootstrap

import (
	"context"
	"fmt"

	"github.com/nomis52/goprovision/document"
	"github.com/nomis52/goprovision/stage"
)

// Request is one create call of a stage with its parent identifiers resolved.
type Request struct {
	Stage stage.Type
	// Key identifies the item in the resulting Event.
	Key string

	ProviderUUID string
	RegionUUID   string
	ZoneUUID     string

	Provider     *ProviderRequest
	InstanceType *document.InstanceType
	Region       *document.Region
	Zone         *document.Zone
	Node         *document.Node
	AccessKey    *document.AccessKey
}

// Requests builds the requests of stage t from the plan and the results of
// the previous stages.
func (rs *RunState) Requests(t stage.Type) ([]Request, error) {
	p := rs.plan
	if t != stage.Provider && p.Expected(t) > 0 && rs.providerUUID == "" {
		return nil, fmt.Errorf("%s requests need a provider uuid", t)
	}

	var reqs []Request
	switch t {
	case stage.Provider:
		if p.Provider != nil {
			reqs = append(reqs, Request{Stage: t, Key: p.Provider.Name, Provider: p.Provider})
		}

	case stage.InstanceType:
		for i := range p.InstanceTypes {
			it := &p.InstanceTypes[i]
			reqs = append(reqs, Request{Stage: t, Key: it.InstanceTypeCode, ProviderUUID: rs.providerUUID, InstanceType: it})
		}

	case stage.Region:
		for i := range p.Regions {
			r := &p.Regions[i]
			reqs = append(reqs, Request{Stage: t, Key: r.Code, ProviderUUID: rs.providerUUID, Region: r})
		}

	case stage.Zone:
		for i := range p.Regions {
			r := &p.Regions[i]
			regionUUID, ok := rs.regions.lookup(r.Code)
			if !ok && len(r.Zones) > 0 {
				return nil, fmt.Errorf("region %q has no uuid", r.Code)
			}
			for j := range r.Zones {
				z := &r.Zones[j]
				reqs = append(reqs, Request{
					Stage:        t,
					Key:          document.ZoneKey(r.Code, z.Code),
					ProviderUUID: rs.providerUUID,
					RegionUUID:   regionUUID,
					Zone:         z,
				})
			}
		}

	case stage.Node:
		for i := range p.Nodes {
			n := &p.Nodes[i]
			key := document.ZoneKey(n.Region, n.Zone)
			zoneUUID, ok := rs.zones.lookup(key)
			if !ok {
				return nil, fmt.Errorf("node %q: zone %q has no uuid", n.IP, key)
			}
			reqs = append(reqs, Request{Stage: t, Key: n.IP, ProviderUUID: rs.providerUUID, ZoneUUID: zoneUUID, Node: n})
		}

	case stage.AccessKey:
		if p.Expected(t) > 0 {
			regionUUID, ok := rs.regions.lookup(p.Regions[0].Code)
			if !ok {
				return nil, fmt.Errorf("region %q has no uuid", p.Regions[0].Code)
			}
			reqs = append(reqs, Request{Stage: t, Key: p.Key.Code, ProviderUUID: rs.providerUUID, RegionUUID: regionUUID, AccessKey: p.Key})
		}

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStage, int(t))
	}
	return reqs, nil
}

// Do issues the request and returns the identifier assigned by the control
// plane: a UUID for providers, regions, zones and nodes, a code otherwise.
func (r Request) Do(ctx context.Context, c ResourceClient) (string, error) {
	switch r.Stage {
	case stage.Provider:
		ref, err := c.CreateProvider(ctx, *r.Provider)
		return ref.UUID, err
	case stage.InstanceType:
		ref, err := c.CreateInstanceType(ctx, r.ProviderUUID, *r.InstanceType)
		return ref.Code, err
	case stage.Region:
		ref, err := c.CreateRegion(ctx, r.ProviderUUID, *r.Region)
		return ref.UUID, err
	case stage.Zone:
		ref, err := c.CreateZone(ctx, r.ProviderUUID, r.RegionUUID, *r.Zone)
		return ref.UUID, err
	case stage.Node:
		ref, err := c.CreateNodeInstance(ctx, r.ZoneUUID, *r.Node)
		return ref.UUID, err
	case stage.AccessKey:
		ref, err := c.CreateAccessKey(ctx, r.ProviderUUID, r.RegionUUID, *r.AccessKey)
		return ref.Code, err
	}
	return "", fmt.Errorf("%w: %d", ErrUnexpectedStage, int(r.Stage))
}
