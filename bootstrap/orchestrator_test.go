package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/goprovision/document"
	"github.com/nomis52/goprovision/logging"
	"github.com/nomis52/goprovision/stage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// assertStageOrder checks that no call of a stage happens before every call
// of an earlier stage.
func assertStageOrder(t *testing.T, calls []call) {
	t.Helper()
	highest := stage.Provider
	for i, c := range calls {
		require.GreaterOrEqual(t, int(c.Stage), int(highest), "call %d (%s %s) out of order", i, c.Stage, c.Key)
		highest = c.Stage
	}
}

func countByStage(calls []call) map[stage.Type]int {
	out := make(map[stage.Type]int)
	for _, c := range calls {
		out[c.Stage]++
	}
	return out
}

func TestOrchestrator_CreateHappyPath(t *testing.T) {
	client := newFakeClient()
	client.delay = time.Millisecond
	sink := newRecordingSink()
	o := NewOrchestrator(client, WithLogger(testLogger()), WithSink(sink))

	res, err := o.Run(context.Background(), createDoc(t), document.Create)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Succeeded())
	assert.Equal(t, "prov-dc1", res.ProviderUUID)
	assert.Equal(t, map[string]string{"us-west": "region-us-west"}, res.Regions)
	assert.Equal(t, "zone-region-us-west-az2", res.Zones["us-west/az2"])
	assert.Nil(t, res.FailedStage)
	for _, e := range res.Stages {
		assert.Equal(t, stage.Success, e.Status, e.Name)
	}

	calls := client.Calls()
	assertStageOrder(t, calls)
	assert.Equal(t, map[stage.Type]int{
		stage.Provider:     1,
		stage.InstanceType: 2,
		stage.Region:       1,
		stage.Zone:         2,
		stage.Node:         3,
		stage.AccessKey:    1,
	}, countByStage(calls))

	for _, c := range calls {
		switch c.Stage {
		case stage.InstanceType, stage.Region:
			assert.Equal(t, "prov-dc1", c.Parent)
		case stage.Zone:
			assert.Equal(t, "region-us-west", c.Parent)
		case stage.AccessKey:
			assert.Equal(t, "prov-dc1|region-us-west", c.Parent)
		}
	}

	assert.Equal(t, []string{"prov-dc1"}, sink.completed)
	assert.Empty(t, sink.failed)
	for _, st := range stage.All() {
		assert.Equal(t, []stage.Status{stage.Running, stage.Success}, sink.statusesOf(st), st.String())
	}
	assert.Equal(t, []int{1, 2, 3}, sink.progress[stage.Node])
	assert.Equal(t, 10, sink.requests)
}

func TestOrchestrator_RegionFailure(t *testing.T) {
	client := newFakeClient()
	boom := errors.New("region rejected")
	client.failOn(stage.Region, "us-east", boom)
	sink := newRecordingSink()
	o := NewOrchestrator(client, WithLogger(testLogger()), WithSink(sink))

	res, err := o.Run(context.Background(), twoRegionDoc(t), document.Create)
	require.Error(t, err)
	require.NotNil(t, res)

	var serr *StageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, stage.Region, serr.Stage)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, PhaseFailed, res.Phase)
	require.NotNil(t, res.FailedStage)
	assert.Equal(t, stage.Region, *res.FailedStage)
	assert.Equal(t, "region rejected", res.Error)

	// The sibling region was created and stays recorded.
	assert.Equal(t, map[string]string{"us-west": "region-us-west"}, res.Regions)

	counts := countByStage(client.Calls())
	assert.Equal(t, 2, counts[stage.Region])
	assert.Zero(t, counts[stage.Zone])
	assert.Zero(t, counts[stage.Node])
	assert.Zero(t, counts[stage.AccessKey])

	statuses := map[stage.Type]stage.Status{}
	for _, e := range res.Stages {
		statuses[e.Type] = e.Status
	}
	assert.Equal(t, stage.Error, statuses[stage.Region])
	assert.Equal(t, stage.Initializing, statuses[stage.Zone])
	assert.Equal(t, stage.Initializing, statuses[stage.AccessKey])

	assert.Equal(t, []stage.Type{stage.Region}, sink.failed)
	assert.Empty(t, sink.completed)
}

func TestOrchestrator_EditInstanceTypeOnly(t *testing.T) {
	client := newFakeClient()
	sink := newRecordingSink()
	o := NewOrchestrator(client, WithLogger(testLogger()), WithSink(sink))

	doc := editDoc(t)
	doc.InstanceTypes[0].IsBeingEdited = true

	res, err := o.Run(context.Background(), doc, document.Edit)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "prov-existing", res.ProviderUUID)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, call{Stage: stage.InstanceType, Key: "small", Parent: "prov-existing"}, calls[0])

	assert.Equal(t, []stage.Type{stage.Provider, stage.Region, stage.Zone, stage.Node, stage.AccessKey}, res.Skipped)
	assert.Equal(t, []string{"prov-existing"}, sink.completed)
}

func TestOrchestrator_EditNoop(t *testing.T) {
	client := newFakeClient()
	sink := newRecordingSink()
	o := NewOrchestrator(client, WithLogger(testLogger()), WithSink(sink))

	res, err := o.Run(context.Background(), editDoc(t), document.Edit)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Empty(t, client.Calls())
	assert.Equal(t, stage.All(), res.Skipped)
	assert.Equal(t, []string{"prov-existing"}, sink.completed)
	assert.Zero(t, sink.requests)
}

func TestOrchestrator_ValidationError(t *testing.T) {
	client := newFakeClient()
	sink := newRecordingSink()
	o := NewOrchestrator(client, WithLogger(testLogger()), WithSink(sink))

	doc := createDoc(t)
	doc.Key.PrivateKeyContent = "garbage"

	res, err := o.Run(context.Background(), doc, document.Create)
	require.Error(t, err)
	assert.Nil(t, res)

	var verr *document.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Empty(t, client.Calls())
	assert.Empty(t, sink.changes)
}

func TestOrchestrator_ConcurrencyLimit(t *testing.T) {
	client := newFakeClient()
	client.delay = 5 * time.Millisecond
	o := NewOrchestrator(client, WithLogger(testLogger()), WithConcurrency(2))

	doc := createDoc(t)
	for _, ip := range []string{"10.0.0.4", "10.0.0.5", "10.0.0.6", "10.0.0.7"} {
		doc.Nodes = append(doc.Nodes, document.Node{IP: ip, InstanceType: "small", Region: "us-west", Zone: "az2"})
	}

	_, err := o.Run(context.Background(), doc, document.Create)
	require.NoError(t, err)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.LessOrEqual(t, client.maxInflight, 2)
	assert.Len(t, client.calls, 14)
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	client := newFakeClient()
	o := NewOrchestrator(client, WithLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Run(ctx, createDoc(t), document.Create)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	require.NotNil(t, res.FailedStage)
	assert.Equal(t, stage.Provider, *res.FailedStage)
	assert.Empty(t, client.Calls())
}

func TestOrchestrator_NewRunSupersedesPrevious(t *testing.T) {
	client := newFakeClient()
	client.blockProvider = "slow"
	o := NewOrchestrator(client, WithLogger(testLogger()))

	slow := createDoc(t)
	slow.Provider.Name = "slow"

	type outcome struct {
		res *Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := o.Run(context.Background(), slow, document.Create)
		first <- outcome{res, err}
	}()

	select {
	case <-client.blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached the provider stage")
	}

	res, err := o.Run(context.Background(), createDoc(t), document.Create)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	select {
	case out := <-first:
		require.Error(t, out.err)
		assert.ErrorIs(t, out.err, context.Canceled)
		assert.NotEqual(t, res.RunID, out.res.RunID)
	case <-time.After(5 * time.Second):
		t.Fatal("first run was not cancelled")
	}
}

func TestOrchestrator_CapturesStageLogs(t *testing.T) {
	client := newFakeClient()
	client.failOn(stage.Zone, "az2", errors.New("zone quota exceeded"))
	collector := logging.NewLogCollector()
	o := NewOrchestrator(client,
		WithLogger(testLogger()),
		WithLoggerHook(logging.NewCapturingLoggerHook(collector)),
	)

	_, err := o.Run(context.Background(), createDoc(t), document.Create)
	require.Error(t, err)

	assert.Equal(t, []string{"provider", "instanceType", "region", "zone"}, collector.Scopes())

	var messages []string
	for _, e := range collector.GetLogs("zone") {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "launching stage")
	assert.Contains(t, messages, "request failed")
	assert.Nil(t, collector.GetLogs("node"))
}

func TestOrchestrator_AccessKeyFingerprint(t *testing.T) {
	client := newFakeClient()
	collector := logging.NewLogCollector()
	o := NewOrchestrator(client,
		WithLogger(testLogger()),
		WithLoggerHook(logging.NewCapturingLoggerHook(collector)),
	)
	doc := createDoc(t)
	want, err := document.KeyFingerprint(doc.Key)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), doc, document.Create)
	require.NoError(t, err)
	assert.Equal(t, want, res.KeyFingerprint)

	var found bool
	for _, e := range collector.GetLogs("accessKey") {
		if e.Message == "uploading access key" {
			found = true
			assert.Equal(t, want, e.Attributes["fingerprint"])
			assert.Equal(t, "dc1-key", e.Attributes["key"])
		}
	}
	assert.True(t, found, "access key upload is logged")
}

func TestOrchestrator_FailedRunHasNoFingerprint(t *testing.T) {
	client := newFakeClient()
	client.failOn(stage.Node, "10.0.0.1", errors.New("node unreachable"))
	o := NewOrchestrator(client, WithLogger(testLogger()))

	res, err := o.Run(context.Background(), createDoc(t), document.Create)
	require.Error(t, err)
	assert.Empty(t, res.KeyFingerprint)
}

func TestOrchestrator_EditNoopIsLogged(t *testing.T) {
	var buf bytes.Buffer
	o := NewOrchestrator(newFakeClient(), WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	_, err := o.Run(context.Background(), editDoc(t), document.Edit)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "nothing to do")
}

func TestOrchestrator_RunWithID(t *testing.T) {
	o := NewOrchestrator(newFakeClient(), WithLogger(testLogger()))
	id := uuid.New()

	res, err := o.RunWithID(context.Background(), id, createDoc(t), document.Create)
	require.NoError(t, err)
	assert.Equal(t, id, res.RunID)
}
