// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/apache/airavata-sub033/lib/coordination"
	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/lib/taskcontext"
	"github.com/apache/airavata-sub033/lib/workflow"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// Deps bundles the collaborators shared by all managers.
type Deps struct {
	Registry   airavata.Registry
	Publisher  eventbus.Publisher
	Source     eventbus.Source
	CoordStore coordination.Store
	Engine     workflow.Engine
	Builder    *workflow.Builder
}

// handlerFunc processes one message. A returned error is logged and
// the message is dropped: redelivery is not the retry mechanism here,
// job-status re-polling is.
type handlerFunc func(ctx context.Context, msg *eventbus.MessageContext) error

// metrics are the per-manager event counters.
type metrics struct {
	processed *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

func newMetrics(manager string) *metrics {
	labels := prometheus.Labels{"manager": manager}
	return &metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "airavata",
			Subsystem:   "monitor",
			Name:        "events_processed_total",
			Help:        "Number of bus events handled successfully.",
			ConstLabels: labels,
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "airavata",
			Subsystem:   "monitor",
			Name:        "events_dropped_total",
			Help:        "Number of bus events dropped after a handling failure or validity check.",
			ConstLabels: labels,
		}, []string{"type"}),
	}
}

func (m *metrics) register(reg *prometheus.Registry) {
	reg.MustRegister(m.processed, m.dropped)
}

// consume runs the poll loop: one message at a time, handled
// synchronously, acknowledged (dropped) even on failure.
func consume(ctx context.Context, source eventbus.Source, mm *metrics, handler handlerFunc, types ...eventbus.MessageType) error {
	sink := source.NewSink(types...)
	defer sink.Stop()
	logger := ctxlog.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sink.Channel():
			if !ok {
				return fmt.Errorf("event bus closed")
			}
			if err := handler(ctx, msg); err != nil {
				logger.WithError(err).WithField("MessageID", msg.MessageID).WithField("Type", msg.Type).Error("message handling failed, dropping")
				mm.dropped.WithLabelValues(string(msg.Type)).Inc()
				continue
			}
			mm.processed.WithLabelValues(string(msg.Type)).Inc()
		}
	}
}

// buildTaskContext fetches the gateway-level records a process needs
// and assembles a TaskContext for its chain.
func buildTaskContext(ctx context.Context, deps Deps, process *airavata.Process, gatewayID string) (*taskcontext.TaskContext, error) {
	grp, err := deps.Registry.GetGatewayResourceProfile(ctx, gatewayID)
	if err != nil {
		return nil, fmt.Errorf("load gateway resource profile: %w", err)
	}
	computePref, err := deps.Registry.GetGatewayComputeResourcePreference(ctx, gatewayID, process.ComputeResourceID)
	if err != nil {
		return nil, fmt.Errorf("load gateway compute preference: %w", err)
	}
	storagePref, err := deps.Registry.GetGatewayStoragePreference(ctx, gatewayID, process.StorageResourceID)
	if err != nil {
		return nil, fmt.Errorf("load gateway storage preference: %w", err)
	}
	return taskcontext.Builder{
		GatewayID:                gatewayID,
		Process:                  process,
		GatewayResourceProfile:   grp,
		GatewayComputePreference: computePref,
		GatewayStoragePreference: storagePref,
		Registry:                 deps.Registry,
		Publisher:                deps.Publisher,
	}.Build(ctx)
}

func saveAndPublishProcessStatus(ctx context.Context, deps Deps, identity eventbus.ProcessIdentity, state airavata.ProcessState, reason string) error {
	status := airavata.ProcessStatus{State: state, Reason: reason, TimeOfStateChange: time.Now().UTC()}
	if err := deps.Registry.AddProcessStatus(ctx, identity.ProcessID, status); err != nil {
		return err
	}
	msg, err := eventbus.NewMessage(eventbus.MessageTypeProcess, identity.GatewayID, eventbus.ProcessStatusChangeEvent{
		Identity: identity,
		State:    state,
		Reason:   reason,
	})
	if err != nil {
		return err
	}
	return deps.Publisher.Publish(ctx, msg)
}

func saveAndPublishExperimentStatus(ctx context.Context, deps Deps, experimentID, gatewayID string, state airavata.ExperimentState, reason string) error {
	status := airavata.ExperimentStatus{State: state, Reason: reason, TimeOfStateChange: time.Now().UTC()}
	if err := deps.Registry.AddExperimentStatus(ctx, experimentID, status); err != nil {
		return err
	}
	msg, err := eventbus.NewMessage(eventbus.MessageTypeExperiment, gatewayID, eventbus.ExperimentStatusChangeEvent{
		ExperimentID: experimentID,
		GatewayID:    gatewayID,
		State:        state,
		Reason:       reason,
	})
	if err != nil {
		return err
	}
	return deps.Publisher.Publish(ctx, msg)
}
