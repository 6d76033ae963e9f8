// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"context"
	"sync"
)

// MemBus is an in-process Bus. Messages published while no sink is
// listening are dropped, matching the fire-and-forget contract.
type MemBus struct {
	mtx    sync.Mutex
	sinks  map[*busSink]bool
	closed bool
}

// NewMemBus returns an empty in-process bus.
func NewMemBus() *MemBus {
	return &MemBus{sinks: map[*busSink]bool{}}
}

// NewSink implements Source.
func (bus *MemBus) NewSink(types ...MessageType) Sink {
	sink := &busSink{
		types:   types,
		channel: make(chan *MessageContext, sinkBuffer),
		detach:  bus.detach,
	}
	bus.mtx.Lock()
	defer bus.mtx.Unlock()
	if bus.closed {
		sink.close()
	} else {
		bus.sinks[sink] = true
	}
	return sink
}

func (bus *MemBus) detach(sink *busSink) {
	bus.mtx.Lock()
	defer bus.mtx.Unlock()
	if bus.sinks[sink] {
		delete(bus.sinks, sink)
		sink.close()
	}
}

// Publish implements Publisher. A sink whose buffer is full misses
// the message rather than blocking the publisher.
func (bus *MemBus) Publish(ctx context.Context, msg *MessageContext) error {
	bus.mtx.Lock()
	defer bus.mtx.Unlock()
	for sink := range bus.sinks {
		if !typeMatch(sink.types, msg.Type) {
			continue
		}
		select {
		case sink.channel <- msg:
		default:
		}
	}
	return nil
}

// Close shuts the bus down and closes all sink channels.
func (bus *MemBus) Close() {
	bus.mtx.Lock()
	defer bus.mtx.Unlock()
	bus.closed = true
	for sink := range bus.sinks {
		delete(bus.sinks, sink)
		sink.close()
	}
}
