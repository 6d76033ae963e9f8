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
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// PostWorkflowManager consumes job status events. It correlates each
// bare job id with its owning process through the coordination store,
// validates the state transition, records it, and on a terminal job
// state launches the post-execution chain (stage-out, archive,
// completing) -- unless the process was flagged for cancellation
// first.
type PostWorkflowManager struct {
	Deps Deps

	metrics *metrics
}

// RegisterMetrics registers the manager's counters on reg.
func (m *PostWorkflowManager) RegisterMetrics(reg *prometheus.Registry) {
	m.setup()
	m.metrics.register(reg)
}

func (m *PostWorkflowManager) setup() {
	if m.metrics == nil {
		m.metrics = newMetrics("post")
	}
}

// Run consumes job status messages until ctx is cancelled.
func (m *PostWorkflowManager) Run(ctx context.Context) error {
	m.setup()
	return consume(ctx, m.Deps.Source, m.metrics, m.handle, eventbus.MessageTypeJob)
}

func (m *PostWorkflowManager) handle(ctx context.Context, msg *eventbus.MessageContext) error {
	var event eventbus.JobStatusChangeEvent
	if err := msg.Decode(&event); err != nil {
		return fmt.Errorf("decode job status event: %w", err)
	}
	logger := ctxlog.FromContext(ctx).WithField("JobID", event.Identity.JobID).WithField("State", event.State)

	// External monitors publish bare job ids; resolve the owning
	// entities from the coordination store.
	rec, ok, err := coordination.LookupJob(ctx, m.Deps.CoordStore, event.Identity.JobID)
	if err != nil {
		return fmt.Errorf("look up job %s: %w", event.Identity.JobID, err)
	}
	if !ok {
		if event.Identity.ProcessID == "" {
			logger.Warn("job id is not registered for monitoring, dropping")
			m.metrics.dropped.WithLabelValues(string(msg.Type)).Inc()
			return nil
		}
		rec = coordination.JobRecord{
			JobID:        event.Identity.JobID,
			ProcessID:    event.Identity.ProcessID,
			TaskID:       event.Identity.TaskID,
			ExperimentID: event.Identity.ExperimentID,
			GatewayID:    event.Identity.GatewayID,
		}
	}
	ctx = ctxlog.WithProcess(ctxlog.WithExperiment(ctx, rec.ExperimentID, rec.GatewayID), rec.ProcessID)
	logger = ctxlog.FromContext(ctx).WithField("JobID", rec.JobID).WithField("State", event.State)

	if !ValidJobStateTransition(rec.Status, event.State) {
		logger.WithField("PreviousState", rec.Status).Warn("illegal or duplicate job state transition, dropping")
		m.metrics.dropped.WithLabelValues(string(msg.Type)).Inc()
		return nil
	}

	if err := m.saveJobStatus(ctx, rec, event); err != nil {
		return err
	}

	switch event.State {
	case airavata.JobStateComplete, airavata.JobStateFailed:
		// Failed jobs still get their partial outputs staged for
		// debugging, so both terminal outcomes launch the post
		// chain.
		return m.launchPost(ctx, rec)
	case airavata.JobStateCanceled:
		identity := eventbus.ProcessIdentity{ProcessID: rec.ProcessID, ExperimentID: rec.ExperimentID, GatewayID: rec.GatewayID}
		return saveAndPublishProcessStatus(ctx, m.Deps, identity, airavata.ProcessStateCanceled, "job cancelled")
	}
	return nil
}

// saveJobStatus records the validated transition on the registry and
// updates the coordination store's last-seen state so later
// duplicates are rejected.
func (m *PostWorkflowManager) saveJobStatus(ctx context.Context, rec coordination.JobRecord, event eventbus.JobStatusChangeEvent) error {
	status := airavata.JobStatus{State: event.State, Reason: event.Reason, TimeOfStateChange: time.Now().UTC()}
	if err := m.Deps.Registry.AddJobStatus(ctx, rec.JobID, rec.TaskID, status); err != nil {
		return fmt.Errorf("record job status: %w", err)
	}
	if err := coordination.SaveJobStatus(ctx, m.Deps.CoordStore, rec.JobID, event.State); err != nil {
		return fmt.Errorf("update coordination job status: %w", err)
	}
	return nil
}

func (m *PostWorkflowManager) launchPost(ctx context.Context, rec coordination.JobRecord) error {
	logger := ctxlog.FromContext(ctx)

	cancelled, err := coordination.CancelRequested(ctx, m.Deps.CoordStore, rec.ProcessID)
	if err != nil {
		return fmt.Errorf("check cancel marker: %w", err)
	}
	if cancelled {
		logger.Info("process flagged for cancellation, suppressing post workflow")
		identity := eventbus.ProcessIdentity{ProcessID: rec.ProcessID, ExperimentID: rec.ExperimentID, GatewayID: rec.GatewayID}
		return saveAndPublishProcessStatus(ctx, m.Deps, identity, airavata.ProcessStateCanceled, "cancelled by user request")
	}

	process, err := m.Deps.Registry.GetProcess(ctx, rec.ProcessID)
	if err != nil {
		return fmt.Errorf("load process: %w", err)
	}
	tc, err := buildTaskContext(ctx, m.Deps, process, rec.GatewayID)
	if err != nil {
		return fmt.Errorf("build task context: %w", err)
	}
	root, err := m.Deps.Builder.BuildPostChain(process, rec.GatewayID)
	if err != nil {
		return fmt.Errorf("build post chain: %w", err)
	}
	workflowID, err := m.Deps.Engine.LaunchWorkflow(ctx, "post-"+rec.ProcessID, root, tc)
	if err != nil {
		return fmt.Errorf("launch post workflow: %w", err)
	}
	if err := coordination.RegisterWorkflow(ctx, m.Deps.CoordStore, rec.ProcessID, workflowID); err != nil {
		logger.WithError(err).Warn("could not register workflow id")
	}
	logger.WithField("WorkflowID", workflowID).Info("post workflow launched")
	return nil
}
