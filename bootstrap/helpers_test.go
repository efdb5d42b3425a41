package bootstrap

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/nomis52/goprovision/document"
	"github.com/nomis52/goprovision/stage"
)

func testKey(t *testing.T) *document.AccessKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	return &document.AccessKey{
		Code:              "dc1-key",
		SSHUser:           "centos",
		SSHPort:           22,
		PrivateKeyContent: string(pem.EncodeToMemory(block)),
	}
}

// createDoc describes 1 provider, 2 instance types, 1 region with 2 zones,
// 3 nodes and an access key.
func createDoc(t *testing.T) *document.Document {
	t.Helper()
	return &document.Document{
		Provider: document.Provider{Name: "dc1"},
		InstanceTypes: []document.InstanceType{
			{InstanceTypeCode: "small", NumCores: 2, MemSizeGB: 8},
			{InstanceTypeCode: "large", NumCores: 16, MemSizeGB: 64},
		},
		Regions: []document.Region{
			{Code: "us-west", Zones: []document.Zone{{Code: "az1"}, {Code: "az2"}}},
		},
		Nodes: []document.Node{
			{IP: "10.0.0.1", InstanceType: "small", Region: "us-west", Zone: "az1"},
			{IP: "10.0.0.2", InstanceType: "small", Region: "us-west", Zone: "az2"},
			{IP: "10.0.0.3", InstanceType: "large", Region: "us-west", Zone: "az1"},
		},
		Key: testKey(t),
	}
}

// editDoc is createDoc against an existing provider with nothing flagged.
func editDoc(t *testing.T) *document.Document {
	t.Helper()
	doc := createDoc(t)
	doc.Provider.UUID = "prov-existing"
	return doc
}

type call struct {
	Stage  stage.Type
	Key    string
	Parent string
}

// fakeClient records every call and returns deterministic identifiers.
type fakeClient struct {
	mu          sync.Mutex
	calls       []call
	fail        map[string]error
	delay       time.Duration
	inflight    int
	maxInflight int
	// blockProvider makes CreateProvider wait for cancellation when the
	// provider has this name.
	blockProvider string
	blocked       chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{fail: make(map[string]error), blocked: make(chan struct{}, 1)}
}

func (f *fakeClient) failOn(t stage.Type, key string, err error) {
	f.fail[t.String()+":"+key] = err
}

func (f *fakeClient) do(t stage.Type, key, parent string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{Stage: t, Key: key, Parent: parent})
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	return f.fail[t.String()+":"+key]
}

func (f *fakeClient) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeClient) CreateProvider(ctx context.Context, req ProviderRequest) (ProviderRef, error) {
	if f.blockProvider != "" && req.Name == f.blockProvider {
		f.blocked <- struct{}{}
		<-ctx.Done()
		return ProviderRef{}, ctx.Err()
	}
	if err := f.do(stage.Provider, req.Name, ""); err != nil {
		return ProviderRef{}, err
	}
	return ProviderRef{UUID: "prov-" + req.Name}, nil
}

func (f *fakeClient) CreateInstanceType(_ context.Context, providerUUID string, it document.InstanceType) (InstanceTypeRef, error) {
	if err := f.do(stage.InstanceType, it.InstanceTypeCode, providerUUID); err != nil {
		return InstanceTypeRef{}, err
	}
	return InstanceTypeRef{Code: it.InstanceTypeCode}, nil
}

func (f *fakeClient) CreateRegion(_ context.Context, providerUUID string, r document.Region) (ResourceRef, error) {
	if err := f.do(stage.Region, r.Code, providerUUID); err != nil {
		return ResourceRef{}, err
	}
	return ResourceRef{UUID: "region-" + r.Code, Code: r.Code}, nil
}

func (f *fakeClient) CreateZone(_ context.Context, _, regionUUID string, z document.Zone) (ResourceRef, error) {
	if err := f.do(stage.Zone, z.Code, regionUUID); err != nil {
		return ResourceRef{}, err
	}
	return ResourceRef{UUID: fmt.Sprintf("zone-%s-%s", regionUUID, z.Code), Code: z.Code}, nil
}

func (f *fakeClient) CreateNodeInstance(_ context.Context, zoneUUID string, n document.Node) (NodeRef, error) {
	if err := f.do(stage.Node, n.IP, zoneUUID); err != nil {
		return NodeRef{}, err
	}
	return NodeRef{UUID: "node-" + n.IP, IP: n.IP}, nil
}

func (f *fakeClient) CreateAccessKey(_ context.Context, providerUUID, regionUUID string, k document.AccessKey) (AccessKeyRef, error) {
	if err := f.do(stage.AccessKey, k.Code, providerUUID+"|"+regionUUID); err != nil {
		return AccessKeyRef{}, err
	}
	return AccessKeyRef{Code: k.Code}, nil
}

// recordingSink captures everything the orchestrator reports.
type recordingSink struct {
	mu        sync.Mutex
	changes   []stage.Change
	progress  map[stage.Type][]int
	requests  int
	completed []string
	failed    []stage.Type
	errs      []error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{progress: make(map[stage.Type][]int)}
}

func (s *recordingSink) OnStageStatus(t stage.Type, st stage.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, stage.Change{Type: t, Status: st})
}

func (s *recordingSink) OnComplete(providerUUID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, providerUUID)
}

func (s *recordingSink) OnFailed(t stage.Type, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, t)
	s.errs = append(s.errs, err)
}

func (s *recordingSink) OnProgress(t stage.Type, done, _ int, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[t] = append(s.progress[t], done)
}

func (s *recordingSink) ObserveRequest(stage.Type, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
}

func (s *recordingSink) statusesOf(t stage.Type) []stage.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stage.Status
	for _, c := range s.changes {
		if c.Type == t {
			out = append(out, c.Status)
		}
	}
	return out
}

// permutations returns every ordering of 0..n-1.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := make([]int, 0, n)
			q = append(q, p[:i]...)
			q = append(q, n-1)
			q = append(q, p[i:]...)
			out = append(out, q)
		}
	}
	return out
}
