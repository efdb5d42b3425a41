// Package bootstraptest provides an in-memory ResourceClient and sample
// documents for tests of packages that drive bootstrap runs.
package bootstraptest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/document"
	"github.com/nomis52/goprovision/stage"
)

var _ bootstrap.ResourceClient = (*Client)(nil)

// Call records one request made to a Client.
type Call struct {
	Stage stage.Type
	Key   string
}

// Client is an in-memory bootstrap.ResourceClient. Identifiers are derived
// from the item codes, e.g. "prov-dc1" or "region-us-west".
type Client struct {
	mu    sync.Mutex
	calls []Call
	fail  map[string]error
	gate  chan struct{}
}

// NewClient creates a Client that succeeds on every request.
func NewClient() *Client {
	return &Client{fail: make(map[string]error)}
}

// FailOn makes the request for key in stage t return err.
func (c *Client) FailOn(t stage.Type, key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[t.String()+":"+key] = err
}

// Hold makes CreateProvider block until Release is called or its context ends.
func (c *Client) Hold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
}

// Release unblocks requests held by Hold.
func (c *Client) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gate != nil {
		close(c.gate)
		c.gate = nil
	}
}

// Calls returns the requests made so far.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

func (c *Client) record(t stage.Type, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Stage: t, Key: key})
	return c.fail[t.String()+":"+key]
}

// CreateProvider implements bootstrap.ResourceClient.
func (c *Client) CreateProvider(ctx context.Context, req bootstrap.ProviderRequest) (bootstrap.ProviderRef, error) {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return bootstrap.ProviderRef{}, ctx.Err()
		}
	}
	if err := c.record(stage.Provider, req.Name); err != nil {
		return bootstrap.ProviderRef{}, err
	}
	return bootstrap.ProviderRef{UUID: "prov-" + req.Name}, nil
}

// CreateInstanceType implements bootstrap.ResourceClient.
func (c *Client) CreateInstanceType(_ context.Context, _ string, it document.InstanceType) (bootstrap.InstanceTypeRef, error) {
	if err := c.record(stage.InstanceType, it.InstanceTypeCode); err != nil {
		return bootstrap.InstanceTypeRef{}, err
	}
	return bootstrap.InstanceTypeRef{Code: it.InstanceTypeCode}, nil
}

// CreateRegion implements bootstrap.ResourceClient.
func (c *Client) CreateRegion(_ context.Context, _ string, r document.Region) (bootstrap.ResourceRef, error) {
	if err := c.record(stage.Region, r.Code); err != nil {
		return bootstrap.ResourceRef{}, err
	}
	return bootstrap.ResourceRef{UUID: "region-" + r.Code, Code: r.Code}, nil
}

// CreateZone implements bootstrap.ResourceClient.
func (c *Client) CreateZone(_ context.Context, _, regionUUID string, z document.Zone) (bootstrap.ResourceRef, error) {
	if err := c.record(stage.Zone, z.Code); err != nil {
		return bootstrap.ResourceRef{}, err
	}
	return bootstrap.ResourceRef{UUID: fmt.Sprintf("zone-%s-%s", regionUUID, z.Code), Code: z.Code}, nil
}

// CreateNodeInstance implements bootstrap.ResourceClient.
func (c *Client) CreateNodeInstance(_ context.Context, _ string, n document.Node) (bootstrap.NodeRef, error) {
	if err := c.record(stage.Node, n.IP); err != nil {
		return bootstrap.NodeRef{}, err
	}
	return bootstrap.NodeRef{UUID: "node-" + n.IP, IP: n.IP}, nil
}

// CreateAccessKey implements bootstrap.ResourceClient.
func (c *Client) CreateAccessKey(_ context.Context, _, _ string, k document.AccessKey) (bootstrap.AccessKeyRef, error) {
	if err := c.record(stage.AccessKey, k.Code); err != nil {
		return bootstrap.AccessKeyRef{}, err
	}
	return bootstrap.AccessKeyRef{Code: k.Code}, nil
}

// PrivateKey returns a freshly generated, unencrypted OpenSSH private key in PEM form.
func PrivateKey(t testing.TB) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}
	return string(pem.EncodeToMemory(block))
}

// Document returns a valid create-mode document: provider "dc1", one
// instance type, region "us-west" with zones az1 and az2, two nodes and a key.
// A create run against a Client makes 8 requests.
func Document(t testing.TB) *document.Document {
	t.Helper()
	return &document.Document{
		Provider:      document.Provider{Name: "dc1"},
		InstanceTypes: []document.InstanceType{{InstanceTypeCode: "small", NumCores: 2, MemSizeGB: 8}},
		Regions: []document.Region{
			{Code: "us-west", Latitude: 37.4, Longitude: -122.1, Zones: []document.Zone{{Code: "az1"}, {Code: "az2"}}},
		},
		Nodes: []document.Node{
			{IP: "10.0.0.1", InstanceType: "small", Region: "us-west", Zone: "az1"},
			{IP: "10.0.0.2", InstanceType: "small", Region: "us-west", Zone: "az2"},
		},
		Key: &document.AccessKey{Code: "dc1-key", SSHUser: "centos", PrivateKeyContent: PrivateKey(t)},
	}
}
