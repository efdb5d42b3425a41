// Package bootstrap provisions an on-prem provider against the control plane
// by driving six dependent stages in a fixed order:
//
//	provider → instanceType → region → zone → node → accessKey
//
// Each stage fans out one request per item (one per region, zone, node, ...)
// and the next stage starts only once every request of the current stage has
// succeeded. The first failing request stops forward progress; requests that
// are already in flight are allowed to finish and their results are kept.
//
// # State machine
//
// RunState is a plain value that is advanced by a single transition function:
//
//	rs, tr, err := bootstrap.Start(doc, document.Create)
//	...
//	tr, err = rs.Apply(bootstrap.Event{RunID: rs.ID, Stage: stage.Region, Key: "us-west", UUID: "..."})
//
// Start validates the document and computes the expected number of results
// of every stage up front. A stage expecting zero results is never waited
// on; it is marked as skipped and the run moves on to the next stage with
// work, or to Done. Apply never performs I/O, it only reports which stage to
// launch next through Transition.
//
// # Edit mode
//
// In edit mode the provider already exists. DiffForEdit selects the instance
// types and regions flagged isBeingEdited; zones and nodes are only
// re-provisioned for the selected regions, and the access key stage is
// skipped. An edit with nothing flagged completes immediately without any
// request.
//
// # Driver
//
// Orchestrator owns one RunState per run and is the only goroutine that
// mutates it. Requests run concurrently on a bounded errgroup and report
// back through a channel as Events tagged with the run ID, so results of a
// superseded run can never touch the state of a newer one.
package bootstrap
