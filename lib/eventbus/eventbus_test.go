// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"context"

	check "gopkg.in/check.v1"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

var _ = check.Suite(&busSuite{})

type busSuite struct{}

func (s *busSuite) TestMessageRoundTrip(c *check.C) {
	msg, err := NewMessage(MessageTypeProcess, "gw1", ProcessStatusChangeEvent{
		Identity: ProcessIdentity{ProcessID: "p1", ExperimentID: "e1", GatewayID: "gw1"},
		State:    airavata.ProcessStateExecuting,
	})
	c.Assert(err, check.IsNil)
	c.Check(msg.MessageID, check.Not(check.Equals), "")
	c.Check(msg.Type, check.Equals, MessageTypeProcess)
	c.Check(msg.GatewayID, check.Equals, "gw1")

	var event ProcessStatusChangeEvent
	c.Assert(msg.Decode(&event), check.IsNil)
	c.Check(event.Identity.ProcessID, check.Equals, "p1")
	c.Check(event.State, check.Equals, airavata.ProcessStateExecuting)
}

func (s *busSuite) TestTypeFilter(c *check.C) {
	bus := NewMemBus()
	defer bus.Close()
	procSink := bus.NewSink(MessageTypeProcess)
	allSink := bus.NewSink()

	procMsg, err := NewMessage(MessageTypeProcess, "gw1", ProcessStatusChangeEvent{})
	c.Assert(err, check.IsNil)
	jobMsg, err := NewMessage(MessageTypeJob, "gw1", JobStatusChangeEvent{})
	c.Assert(err, check.IsNil)
	c.Assert(bus.Publish(context.Background(), procMsg), check.IsNil)
	c.Assert(bus.Publish(context.Background(), jobMsg), check.IsNil)

	got := <-procSink.Channel()
	c.Check(got.Type, check.Equals, MessageTypeProcess)
	select {
	case extra := <-procSink.Channel():
		c.Fatalf("filtered sink received %s message", extra.Type)
	default:
	}

	c.Check((<-allSink.Channel()).Type, check.Equals, MessageTypeProcess)
	c.Check((<-allSink.Channel()).Type, check.Equals, MessageTypeJob)
}

func (s *busSuite) TestStopUnsubscribes(c *check.C) {
	bus := NewMemBus()
	defer bus.Close()
	sink := bus.NewSink(MessageTypeTask)
	sink.Stop()

	_, ok := <-sink.Channel()
	c.Check(ok, check.Equals, false)

	msg, err := NewMessage(MessageTypeTask, "gw1", TaskStatusChangeEvent{})
	c.Assert(err, check.IsNil)
	c.Check(bus.Publish(context.Background(), msg), check.IsNil)
}

func (s *busSuite) TestCloseClosesSinks(c *check.C) {
	bus := NewMemBus()
	sink := bus.NewSink()
	bus.Close()
	_, ok := <-sink.Channel()
	c.Check(ok, check.Equals, false)

	// Sinks created after Close come back already closed.
	late := bus.NewSink()
	_, ok = <-late.Channel()
	c.Check(ok, check.Equals, false)
}
