// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// notifyChannel is the postgres NOTIFY channel all bus traffic rides
// on; routing happens on MessageContext.Type after decode.
const notifyChannel = "airavata_events"

// PGBus is a Bus built on postgres LISTEN/NOTIFY. Every orchestrator
// instance connected to the same database sees every message, which
// is what the workflow managers need to correlate job events with
// processes they did not launch themselves.
type PGBus struct {
	DB         *sqlx.DB
	DataSource string
	QueueSize  int

	pqListener *pq.Listener
	queue      chan *MessageContext
	sinks      map[*busSink]bool
	mtx        sync.Mutex
	setupOnce  sync.Once
	ready      chan bool

	eventsIn  prometheus.Counter
	eventsOut prometheus.Counter
}

// RegisterMetrics registers the bus's message counters on reg.
func (bus *PGBus) RegisterMetrics(reg *prometheus.Registry) {
	bus.setupOnce.Do(bus.setup)
	reg.MustRegister(bus.eventsIn)
	reg.MustRegister(bus.eventsOut)
}

func (bus *PGBus) setup() {
	bus.ready = make(chan bool)
	bus.sinks = map[*busSink]bool{}
	if bus.QueueSize == 0 {
		bus.QueueSize = 64
	}
	bus.queue = make(chan *MessageContext, bus.QueueSize)
	bus.eventsIn = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "airavata",
		Subsystem: "eventbus",
		Name:      "received_events_total",
		Help:      "Number of events received from postgres NOTIFY.",
	})
	bus.eventsOut = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "airavata",
		Subsystem: "eventbus",
		Name:      "delivered_events_total",
		Help:      "Number of events delivered to subscriber sinks.",
	})
}

// Run listens for notifications and fans them out to sinks until ctx
// is cancelled. It should be called once, typically in an errgroup.
func (bus *PGBus) Run(ctx context.Context) error {
	bus.setupOnce.Do(bus.setup)
	logger := ctxlog.FromContext(ctx)
	defer func() {
		bus.mtx.Lock()
		defer bus.mtx.Unlock()
		for sink := range bus.sinks {
			delete(bus.sinks, sink)
			sink.close()
		}
	}()

	bus.pqListener = pq.NewListener(bus.DataSource, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.WithField("pqEvent", ev).WithError(err).Error("listener problem")
		}
	})
	defer bus.pqListener.Close()
	if err := bus.pqListener.Listen(notifyChannel); err != nil {
		return fmt.Errorf("pq listen: %w", err)
	}
	logger.Debug("pq listener started")
	close(bus.ready)

	go func() {
		for msg := range bus.queue {
			bus.mtx.Lock()
			for sink := range bus.sinks {
				if !typeMatch(sink.types, msg.Type) {
					continue
				}
				select {
				case sink.channel <- msg:
					bus.eventsOut.Inc()
				default:
					logger.WithField("MessageID", msg.MessageID).Warn("slow subscriber, message dropped")
				}
			}
			bus.mtx.Unlock()
		}
	}()
	defer close(bus.queue)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("ctx done, stopping bus")
			return nil
		case <-ticker.C:
			// If the connection dies, Ping() forces a
			// reconnect; otherwise we could wait on Notify
			// forever without noticing.
			if err := bus.pqListener.Ping(); err != nil {
				logger.WithError(err).Error("listener ping failed")
			}
		case pqEvent, ok := <-bus.pqListener.Notify:
			if !ok {
				return fmt.Errorf("pq listener channel closed")
			}
			if pqEvent == nil || pqEvent.Channel != notifyChannel {
				continue
			}
			bus.eventsIn.Inc()
			var msg MessageContext
			if err := json.Unmarshal([]byte(pqEvent.Extra), &msg); err != nil {
				logger.WithError(err).Warn("undecodable notification dropped")
				continue
			}
			bus.queue <- &msg
		}
	}
}

// WaitReady returns after the listener is established, or an error
// after timeout. Intended for startup sequencing.
func (bus *PGBus) WaitReady(timeout time.Duration) error {
	bus.setupOnce.Do(bus.setup)
	select {
	case <-bus.ready:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("event bus not ready after %s", timeout)
	}
}

// Publish implements Publisher using pg_notify.
func (bus *PGBus) Publish(ctx context.Context, msg *MessageContext) error {
	buf, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = bus.DB.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(buf))
	if err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// NewSink implements Source.
func (bus *PGBus) NewSink(types ...MessageType) Sink {
	bus.setupOnce.Do(bus.setup)
	sink := &busSink{
		types:   types,
		channel: make(chan *MessageContext, sinkBuffer),
		detach:  bus.detach,
	}
	bus.mtx.Lock()
	defer bus.mtx.Unlock()
	bus.sinks[sink] = true
	return sink
}

func (bus *PGBus) detach(sink *busSink) {
	bus.mtx.Lock()
	defer bus.mtx.Unlock()
	if bus.sinks[sink] {
		delete(bus.sinks, sink)
		sink.close()
	}
}
