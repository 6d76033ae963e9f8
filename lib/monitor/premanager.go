// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/apache/airavata-sub033/lib/coordination"
	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// PreWorkflowManager listens for process launch and terminate
// commands. On launch it builds the pre-execution chain (setup,
// input staging, job submission) and hands it to the workflow
// engine; on terminate it flags the cancel marker and cancels any
// registered in-flight workflows.
type PreWorkflowManager struct {
	Deps Deps

	metrics *metrics
}

// RegisterMetrics registers the manager's counters on reg.
func (m *PreWorkflowManager) RegisterMetrics(reg *prometheus.Registry) {
	m.setup()
	m.metrics.register(reg)
}

func (m *PreWorkflowManager) setup() {
	if m.metrics == nil {
		m.metrics = newMetrics("pre")
	}
}

// Run consumes launch/terminate messages until ctx is cancelled.
func (m *PreWorkflowManager) Run(ctx context.Context) error {
	m.setup()
	return consume(ctx, m.Deps.Source, m.metrics, m.handle,
		eventbus.MessageTypeLaunchProcess, eventbus.MessageTypeTerminateProcess)
}

func (m *PreWorkflowManager) handle(ctx context.Context, msg *eventbus.MessageContext) error {
	switch msg.Type {
	case eventbus.MessageTypeLaunchProcess:
		var event eventbus.ProcessSubmitEvent
		if err := msg.Decode(&event); err != nil {
			return fmt.Errorf("decode launch event: %w", err)
		}
		return m.launch(ctx, event)
	case eventbus.MessageTypeTerminateProcess:
		var event eventbus.ProcessTerminateEvent
		if err := msg.Decode(&event); err != nil {
			return fmt.Errorf("decode terminate event: %w", err)
		}
		return m.terminate(ctx, event)
	}
	return nil
}

func (m *PreWorkflowManager) launch(ctx context.Context, event eventbus.ProcessSubmitEvent) error {
	ctx = ctxlog.WithProcess(ctxlog.WithExperiment(ctx, event.ExperimentID, event.GatewayID), event.ProcessID)
	logger := ctxlog.FromContext(ctx)

	cancelled, err := coordination.CancelRequested(ctx, m.Deps.CoordStore, event.ProcessID)
	if err != nil {
		return fmt.Errorf("check cancel marker: %w", err)
	}
	if cancelled {
		logger.Info("process was cancelled before launch, skipping")
		return nil
	}

	process, err := m.Deps.Registry.GetProcess(ctx, event.ProcessID)
	if err != nil {
		return fmt.Errorf("load process: %w", err)
	}
	tc, err := buildTaskContext(ctx, m.Deps, process, event.GatewayID)
	if err != nil {
		return fmt.Errorf("build task context: %w", err)
	}
	root, err := m.Deps.Builder.BuildPreChain(process, event.GatewayID)
	if err != nil {
		return fmt.Errorf("build pre chain: %w", err)
	}
	workflowID, err := m.Deps.Engine.LaunchWorkflow(ctx, "pre-"+event.ProcessID, root, tc)
	if err != nil {
		return fmt.Errorf("launch pre workflow: %w", err)
	}
	if err := coordination.RegisterWorkflow(ctx, m.Deps.CoordStore, event.ProcessID, workflowID); err != nil {
		logger.WithError(err).Warn("could not register workflow id")
	}
	logger.WithField("WorkflowID", workflowID).Info("pre workflow launched")
	return nil
}

func (m *PreWorkflowManager) terminate(ctx context.Context, event eventbus.ProcessTerminateEvent) error {
	ctx = ctxlog.WithProcess(ctx, event.ProcessID)
	logger := ctxlog.FromContext(ctx)

	if err := coordination.RequestCancel(ctx, m.Deps.CoordStore, event.ProcessID); err != nil {
		return fmt.Errorf("set cancel marker: %w", err)
	}
	workflowIDs, err := coordination.Workflows(ctx, m.Deps.CoordStore, event.ProcessID)
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}
	for _, workflowID := range workflowIDs {
		if err := m.Deps.Engine.CancelWorkflow(ctx, workflowID); err != nil {
			logger.WithError(err).WithField("WorkflowID", workflowID).Warn("could not cancel workflow")
		}
	}
	logger.WithField("Workflows", len(workflowIDs)).Info("process termination requested")
	return nil
}
