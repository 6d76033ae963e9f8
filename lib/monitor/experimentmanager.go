// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// ExperimentManager derives experiment-level state from process
// status events. Cancellation takes precedence: once an experiment is
// CANCELING, a completed or failed process resolves it to CANCELED,
// never COMPLETED or FAILED.
type ExperimentManager struct {
	Deps Deps

	metrics *metrics
}

// RegisterMetrics registers the manager's counters on reg.
func (m *ExperimentManager) RegisterMetrics(reg *prometheus.Registry) {
	m.setup()
	m.metrics.register(reg)
}

func (m *ExperimentManager) setup() {
	if m.metrics == nil {
		m.metrics = newMetrics("experiment")
	}
}

// Run consumes process status messages until ctx is cancelled.
func (m *ExperimentManager) Run(ctx context.Context) error {
	m.setup()
	return consume(ctx, m.Deps.Source, m.metrics, m.handle, eventbus.MessageTypeProcess)
}

func (m *ExperimentManager) handle(ctx context.Context, msg *eventbus.MessageContext) error {
	var event eventbus.ProcessStatusChangeEvent
	if err := msg.Decode(&event); err != nil {
		return fmt.Errorf("decode process status event: %w", err)
	}
	ctx = ctxlog.WithProcess(ctxlog.WithExperiment(ctx, event.Identity.ExperimentID, event.Identity.GatewayID), event.Identity.ProcessID)
	logger := ctxlog.FromContext(ctx).WithField("State", event.State)

	// Intermediate-output fetches are a side effect, not the
	// primary execution path; they never drive experiment state.
	process, err := m.Deps.Registry.GetProcess(ctx, event.Identity.ProcessID)
	if err != nil {
		return fmt.Errorf("load process: %w", err)
	}
	if process.HasTaskOfType(airavata.TaskTypeOutputFetching) {
		logger.Debug("output-fetching process, not driving experiment state")
		return nil
	}

	expStatus, err := m.Deps.Registry.GetExperimentStatus(ctx, event.Identity.ExperimentID)
	if err != nil {
		return fmt.Errorf("load experiment status: %w", err)
	}
	canceling := expStatus.State == airavata.ExperimentStateCanceling

	var next airavata.ExperimentState
	var reason string
	switch event.State {
	case airavata.ProcessStateStarted, airavata.ProcessStateExecuting:
		if canceling {
			// No-op confirmation; the experiment stays
			// CANCELING until its processes resolve.
			next = airavata.ExperimentStateCanceling
		} else {
			next = airavata.ExperimentStateExecuting
		}
	case airavata.ProcessStateCompleted:
		if canceling {
			next, reason = airavata.ExperimentStateCanceled, "cancelled by user request"
		} else {
			next, reason = airavata.ExperimentStateCompleted, "process completed"
		}
	case airavata.ProcessStateFailed:
		if canceling {
			next, reason = airavata.ExperimentStateCanceled, "cancelled by user request"
		} else {
			next, reason = airavata.ExperimentStateFailed, event.Reason
		}
	case airavata.ProcessStateCanceled:
		next, reason = airavata.ExperimentStateCanceled, "cancelled by user request"
	default:
		return nil
	}
	if next == expStatus.State {
		return nil
	}
	if expStatus.State.Terminal() {
		logger.WithField("ExperimentState", expStatus.State).Warn("experiment already terminal, ignoring process event")
		return nil
	}
	logger.WithField("ExperimentState", next).Info("updating experiment state")
	return saveAndPublishExperimentStatus(ctx, m.Deps, event.Identity.ExperimentID, event.Identity.GatewayID, next, reason)
}
