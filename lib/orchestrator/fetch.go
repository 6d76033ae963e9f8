// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// FetchIntermediateOutputs launches a read-only side-channel process
// that copies a subset of an experiment's outputs out of the running
// job's working directory, without disturbing the primary execution
// path. The new process inherits the working directory and resource
// bindings of the sibling process that performed job submission.
func (h *Handler) FetchIntermediateOutputs(ctx context.Context, experimentID, gatewayID string, outputNames []string) error {
	ctx = ctxlog.WithExperiment(ctx, experimentID, gatewayID)
	logger := ctxlog.FromContext(ctx)

	experiment, err := h.Registry.GetExperiment(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("load experiment: %w", err)
	}
	sibling, workingDir, err := h.findSubmittedProcess(ctx, experimentID)
	if err != nil {
		return err
	}

	wanted := map[string]bool{}
	for _, name := range outputNames {
		wanted[name] = true
	}
	var outputs []airavata.OutputDataObject
	for _, out := range sibling.ProcessOutputs {
		if wanted[out.Name] {
			outputs = append(outputs, out)
		}
	}
	if len(outputs) == 0 {
		return &airavata.ValidationError{ExperimentID: experimentID, Reason: "none of the requested outputs exist on the experiment"}
	}

	schedule := sibling.ResourceSchedule
	schedule.StaticWorkingDir = workingDir
	process := &airavata.Process{
		ProcessID:               newID("PROCESS"),
		ExperimentID:            experimentID,
		ApplicationInterfaceID:  sibling.ApplicationInterfaceID,
		ApplicationDeploymentID: sibling.ApplicationDeploymentID,
		ComputeResourceID:       sibling.ComputeResourceID,
		StorageResourceID:       sibling.StorageResourceID,
		GroupResourceProfileID:  sibling.GroupResourceProfileID,
		UseUserCRPref:           sibling.UseUserCRPref,
		UserName:                experiment.UserName,
		ResourceSchedule:        schedule,
		ProcessOutputs:          outputs,
		ProcessStatuses: []airavata.ProcessStatus{{
			State:             airavata.ProcessStateCreated,
			TimeOfStateChange: time.Now().UTC(),
		}},
	}
	now := time.Now().UTC()
	var ids []string
	for i := range process.ProcessOutputs {
		t := airavata.Task{
			TaskID:          newID("TASK"),
			ParentProcessID: process.ProcessID,
			TaskType:        airavata.TaskTypeOutputFetching,
			CreationTime:    now,
			TaskStatuses:    []airavata.TaskStatus{{State: airavata.TaskStateCreated, TimeOfStateChange: now}},
			DataStaging: &airavata.DataStagingTaskModel{
				Type:          airavata.DataStagingOutput,
				Source:        workingDir,
				ProcessOutput: &process.ProcessOutputs[i],
			},
		}
		process.Tasks = append(process.Tasks, t)
		ids = append(ids, t.TaskID)
	}
	process.TaskDag = strings.Join(ids, airavata.TaskDagSeparator)

	if err := h.Registry.CreateProcess(ctx, process); err != nil {
		return fmt.Errorf("persist fetch process: %w", err)
	}
	msg, err := eventbus.NewMessage(eventbus.MessageTypeLaunchProcess, gatewayID, eventbus.ProcessSubmitEvent{
		ProcessID:    process.ProcessID,
		ExperimentID: experimentID,
		GatewayID:    gatewayID,
	})
	if err != nil {
		return err
	}
	if err := h.Publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish fetch launch command: %w", err)
	}
	logger.WithField("ProcessID", process.ProcessID).WithField("Outputs", len(outputs)).Info("intermediate output fetch launched")
	return nil
}

// findSubmittedProcess locates the experiment's process that carries
// the job submission task, and that job's working directory.
func (h *Handler) findSubmittedProcess(ctx context.Context, experimentID string) (*airavata.Process, string, error) {
	processIDs, err := h.Registry.GetProcessIDs(ctx, experimentID)
	if err != nil {
		return nil, "", fmt.Errorf("list processes: %w", err)
	}
	for _, processID := range processIDs {
		process, err := h.Registry.GetProcess(ctx, processID)
		if err != nil {
			return nil, "", fmt.Errorf("load process %s: %w", processID, err)
		}
		if !process.HasTaskOfType(airavata.TaskTypeJobSubmission) {
			continue
		}
		jobs, err := h.Registry.GetJobs(ctx, processID)
		if err != nil {
			return nil, "", fmt.Errorf("load jobs for process %s: %w", processID, err)
		}
		if len(jobs) == 0 {
			return nil, "", fmt.Errorf("process %s has not submitted a job yet", processID)
		}
		return process, jobs[len(jobs)-1].WorkingDir, nil
	}
	return nil, "", &airavata.ValidationError{ExperimentID: experimentID, Reason: "no process with a submitted job found"}
}
