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
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// ParserWorkflowManager launches data-parsing workflows for
// completed processes whose application interface has registered
// parsing templates.
type ParserWorkflowManager struct {
	Deps Deps

	metrics *metrics
}

// RegisterMetrics registers the manager's counters on reg.
func (m *ParserWorkflowManager) RegisterMetrics(reg *prometheus.Registry) {
	m.setup()
	m.metrics.register(reg)
}

func (m *ParserWorkflowManager) setup() {
	if m.metrics == nil {
		m.metrics = newMetrics("parser")
	}
}

// Run consumes process status messages until ctx is cancelled.
func (m *ParserWorkflowManager) Run(ctx context.Context) error {
	m.setup()
	return consume(ctx, m.Deps.Source, m.metrics, m.handle, eventbus.MessageTypeProcess)
}

func (m *ParserWorkflowManager) handle(ctx context.Context, msg *eventbus.MessageContext) error {
	var event eventbus.ProcessStatusChangeEvent
	if err := msg.Decode(&event); err != nil {
		return fmt.Errorf("decode process status event: %w", err)
	}
	if event.State != airavata.ProcessStateCompleted {
		return nil
	}
	ctx = ctxlog.WithProcess(ctxlog.WithExperiment(ctx, event.Identity.ExperimentID, event.Identity.GatewayID), event.Identity.ProcessID)
	logger := ctxlog.FromContext(ctx)

	process, err := m.Deps.Registry.GetProcess(ctx, event.Identity.ProcessID)
	if err != nil {
		return fmt.Errorf("load process: %w", err)
	}
	if process.HasTaskOfType(airavata.TaskTypeOutputFetching) || process.HasTaskOfType(airavata.TaskTypeDataParsing) {
		// Neither side-channel fetches nor parsing workflows
		// themselves trigger more parsing.
		return nil
	}
	if process.ApplicationInterfaceID == "" {
		return nil
	}
	templates, err := m.Deps.Registry.ListParsingTemplates(ctx, process.ApplicationInterfaceID, event.Identity.GatewayID)
	if err != nil {
		return fmt.Errorf("list parsing templates: %w", err)
	}
	if len(templates) == 0 {
		return nil
	}

	tc, err := buildTaskContext(ctx, m.Deps, process, event.Identity.GatewayID)
	if err != nil {
		return fmt.Errorf("build task context: %w", err)
	}
	// Process outputs seed the context variables so template inputs
	// can reference produced files by output name.
	initialVars := map[string]string{}
	for _, out := range process.ProcessOutputs {
		if out.Value != "" {
			initialVars[out.Name] = out.Value
		}
	}
	for i := range templates {
		template := &templates[i]
		root, err := m.Deps.Builder.BuildParserChain(ctx, m.Deps.Registry, process, template, initialVars)
		if err != nil {
			logger.WithError(err).WithField("TemplateID", template.TemplateID).Error("could not build parsing workflow")
			continue
		}
		workflowID, err := m.Deps.Engine.LaunchWorkflow(ctx, "parse-"+process.ProcessID, root, tc)
		if err != nil {
			logger.WithError(err).WithField("TemplateID", template.TemplateID).Error("could not launch parsing workflow")
			continue
		}
		if err := coordination.RegisterWorkflow(ctx, m.Deps.CoordStore, process.ProcessID, workflowID); err != nil {
			logger.WithError(err).Warn("could not register workflow id")
		}
		logger.WithField("TemplateID", template.TemplateID).WithField("WorkflowID", workflowID).Info("parsing workflow launched")
	}
	return nil
}
