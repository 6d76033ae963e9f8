// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"context"

	check "gopkg.in/check.v1"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

var _ = check.Suite(&storeSuite{})

type storeSuite struct{}

func (s *storeSuite) TestMemStoreBasics(c *check.C) {
	ctx := context.Background()
	store := NewMemStore()

	_, ok, err := store.Get(ctx, "/a/b")
	c.Assert(err, check.IsNil)
	c.Check(ok, check.Equals, false)

	c.Assert(store.Put(ctx, "/a/b", "1"), check.IsNil)
	c.Assert(store.Put(ctx, "/a/c/d", "2"), check.IsNil)
	c.Assert(store.Put(ctx, "/a/c/e", ""), check.IsNil)

	value, ok, err := store.Get(ctx, "/a/b")
	c.Assert(err, check.IsNil)
	c.Check(ok, check.Equals, true)
	c.Check(value, check.Equals, "1")

	children, err := store.List(ctx, "/a")
	c.Assert(err, check.IsNil)
	c.Check(children, check.DeepEquals, []string{"/a/b", "/a/c"})

	c.Assert(store.Delete(ctx, "/a/b"), check.IsNil)
	_, ok, err = store.Get(ctx, "/a/b")
	c.Assert(err, check.IsNil)
	c.Check(ok, check.Equals, false)

	c.Assert(store.DeleteTree(ctx, "/a/c"), check.IsNil)
	children, err = store.List(ctx, "/a")
	c.Assert(err, check.IsNil)
	c.Check(children, check.HasLen, 0)
}

func (s *storeSuite) TestJobRecordRoundTrip(c *check.C) {
	ctx := context.Background()
	store := NewMemStore()

	_, ok, err := LookupJob(ctx, store, "12345")
	c.Assert(err, check.IsNil)
	c.Check(ok, check.Equals, false)

	rec := JobRecord{
		JobID:        "12345",
		ProcessID:    "PROCESS_1",
		TaskID:       "TASK_1",
		ExperimentID: "EXP_1",
		GatewayID:    "gw1",
		Status:       airavata.JobStateSubmitted,
	}
	c.Assert(SaveJob(ctx, store, rec), check.IsNil)

	got, ok, err := LookupJob(ctx, store, "12345")
	c.Assert(err, check.IsNil)
	c.Check(ok, check.Equals, true)
	c.Check(got, check.DeepEquals, rec)

	c.Assert(SaveJobStatus(ctx, store, "12345", airavata.JobStateExecuting), check.IsNil)
	state, err := JobStatus(ctx, store, "12345")
	c.Assert(err, check.IsNil)
	c.Check(state, check.Equals, airavata.JobStateExecuting)

	c.Assert(ForgetJob(ctx, store, "12345"), check.IsNil)
	_, ok, err = LookupJob(ctx, store, "12345")
	c.Assert(err, check.IsNil)
	c.Check(ok, check.Equals, false)
}

func (s *storeSuite) TestCancelMarker(c *check.C) {
	ctx := context.Background()
	store := NewMemStore()

	cancelled, err := CancelRequested(ctx, store, "PROCESS_1")
	c.Assert(err, check.IsNil)
	c.Check(cancelled, check.Equals, false)

	c.Assert(RequestCancel(ctx, store, "PROCESS_1"), check.IsNil)
	cancelled, err = CancelRequested(ctx, store, "PROCESS_1")
	c.Assert(err, check.IsNil)
	c.Check(cancelled, check.Equals, true)

	// A different value at the status path is not a cancel request.
	c.Assert(store.Put(ctx, "/registry/PROCESS_2/status", "running"), check.IsNil)
	cancelled, err = CancelRequested(ctx, store, "PROCESS_2")
	c.Assert(err, check.IsNil)
	c.Check(cancelled, check.Equals, false)
}

func (s *storeSuite) TestWorkflowRegistration(c *check.C) {
	ctx := context.Background()
	store := NewMemStore()

	ids, err := Workflows(ctx, store, "PROCESS_1")
	c.Assert(err, check.IsNil)
	c.Check(ids, check.HasLen, 0)

	c.Assert(RegisterWorkflow(ctx, store, "PROCESS_1", "pre-PROCESS_1-abc"), check.IsNil)
	c.Assert(RegisterWorkflow(ctx, store, "PROCESS_1", "post-PROCESS_1-def"), check.IsNil)
	c.Assert(RegisterWorkflow(ctx, store, "PROCESS_2", "pre-PROCESS_2-ghi"), check.IsNil)

	ids, err = Workflows(ctx, store, "PROCESS_1")
	c.Assert(err, check.IsNil)
	c.Check(ids, check.DeepEquals, []string{"post-PROCESS_1-def", "pre-PROCESS_1-abc"})

	c.Assert(ForgetProcess(ctx, store, "PROCESS_1"), check.IsNil)
	ids, err = Workflows(ctx, store, "PROCESS_1")
	c.Assert(err, check.IsNil)
	c.Check(ids, check.HasLen, 0)
	ids, err = Workflows(ctx, store, "PROCESS_2")
	c.Assert(err, check.IsNil)
	c.Check(ids, check.HasLen, 1)
}
