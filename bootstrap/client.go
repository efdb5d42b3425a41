package bootstrap

import (
	"context"

	"github.com/nomis52/goprovision/document"
)

// ResourceClient creates resources on the control plane. Every method creates
// exactly one item and is safe for concurrent use.
type ResourceClient interface {
	CreateProvider(ctx context.Context, req ProviderRequest) (ProviderRef, error)
	CreateInstanceType(ctx context.Context, providerUUID string, it document.InstanceType) (InstanceTypeRef, error)
	CreateRegion(ctx context.Context, providerUUID string, region document.Region) (ResourceRef, error)
	CreateZone(ctx context.Context, providerUUID, regionUUID string, zone document.Zone) (ResourceRef, error)
	CreateNodeInstance(ctx context.Context, zoneUUID string, node document.Node) (NodeRef, error)
	CreateAccessKey(ctx context.Context, providerUUID, regionUUID string, key document.AccessKey) (AccessKeyRef, error)
}

// ProviderRequest is the payload of the provider stage.
type ProviderRequest struct {
	Code   string            `json:"code"`
	Name   string            `json:"name"`
	Config map[string]string `json:"config,omitempty"`
}

// ProviderRef identifies a created provider.
type ProviderRef struct {
	UUID string `json:"uuid"`
}

// InstanceTypeRef identifies a created instance type. Instance types are
// addressed by code, they have no UUID of their own.
type InstanceTypeRef struct {
	Code string `json:"instanceTypeCode"`
}

// ResourceRef identifies a created region or zone.
type ResourceRef struct {
	UUID string `json:"uuid"`
	Code string `json:"code"`
}

// NodeRef identifies a registered node instance.
type NodeRef struct {
	UUID string `json:"nodeUuid"`
	IP   string `json:"ip"`
}

// AccessKeyRef identifies an uploaded access key.
type AccessKeyRef struct {
	Code string `json:"keyCode"`
}
