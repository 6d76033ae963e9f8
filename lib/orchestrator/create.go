// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// createProcesses materializes the experiment into one or more
// processes with fully built task DAGs and persists them. Single
// application experiments get exactly one process.
func (h *Handler) createProcesses(ctx context.Context, experiment *airavata.Experiment, gatewayID string) ([]*airavata.Process, error) {
	inputs, err := h.resolveInputReplicas(ctx, experiment.ExperimentInputs)
	if err != nil {
		return nil, err
	}

	ucd := experiment.UserConfigurationData
	process := &airavata.Process{
		ProcessID:              newID("PROCESS"),
		ExperimentID:           experiment.ExperimentID,
		ApplicationInterfaceID: experiment.ExecutionID,
		ComputeResourceID:      ucd.ComputationalResourceScheduling.ResourceHostID,
		StorageResourceID:      ucd.StorageID,
		GroupResourceProfileID: ucd.GroupResourceProfileID,
		UseUserCRPref:          ucd.UseUserCRPref,
		UserName:               experiment.UserName,
		ResourceSchedule:       ucd.ComputationalResourceScheduling,
		ProcessInputs:          inputs,
		ProcessOutputs:         append([]airavata.OutputDataObject(nil), experiment.ExperimentOutputs...),
		ProcessStatuses: []airavata.ProcessStatus{{
			State:             airavata.ProcessStateCreated,
			TimeOfStateChange: time.Now().UTC(),
		}},
	}
	buildProcessTasks(process)

	if err := h.Registry.CreateProcess(ctx, process); err != nil {
		return nil, fmt.Errorf("persist process: %w", err)
	}
	return []*airavata.Process{process}, nil
}

// buildProcessTasks creates the stored task models and the ordered
// DAG string for a single-application process: environment setup,
// one input staging task per file-typed input, job submission, one
// output staging task per file-typed output, and an archive task.
func buildProcessTasks(process *airavata.Process) {
	now := time.Now().UTC()
	created := airavata.TaskStatus{State: airavata.TaskStateCreated, TimeOfStateChange: now}
	add := func(t airavata.Task) {
		t.ParentProcessID = process.ProcessID
		t.CreationTime = now
		t.TaskStatuses = []airavata.TaskStatus{created}
		process.Tasks = append(process.Tasks, t)
	}

	add(airavata.Task{TaskID: newID("TASK"), TaskType: airavata.TaskTypeEnvSetup})

	for i := range process.ProcessInputs {
		in := process.ProcessInputs[i]
		if in.Type != airavata.DataTypeURI && in.Type != airavata.DataTypeURICollection {
			continue
		}
		add(airavata.Task{
			TaskID:   newID("TASK"),
			TaskType: airavata.TaskTypeDataStaging,
			DataStaging: &airavata.DataStagingTaskModel{
				Type:         airavata.DataStagingInput,
				Source:       in.Value,
				ProcessInput: &process.ProcessInputs[i],
			},
		})
	}

	add(airavata.Task{
		TaskID:        newID("TASK"),
		TaskType:      airavata.TaskTypeJobSubmission,
		JobSubmission: &airavata.JobSubmissionTaskModel{WallTimeLimit: process.ResourceSchedule.WallTimeLimit},
	})

	for i := range process.ProcessOutputs {
		out := process.ProcessOutputs[i]
		switch out.Type {
		case airavata.DataTypeURI, airavata.DataTypeStdout, airavata.DataTypeStderr:
		default:
			continue
		}
		add(airavata.Task{
			TaskID:   newID("TASK"),
			TaskType: airavata.TaskTypeDataStaging,
			DataStaging: &airavata.DataStagingTaskModel{
				Type:          airavata.DataStagingOutput,
				ProcessOutput: &process.ProcessOutputs[i],
			},
		})
	}

	add(airavata.Task{
		TaskID:      newID("TASK"),
		TaskType:    airavata.TaskTypeDataStaging,
		DataStaging: &airavata.DataStagingTaskModel{Type: airavata.DataStagingArchiveOutput},
	})

	ids := make([]string, len(process.Tasks))
	for i, t := range process.Tasks {
		ids[i] = t.TaskID
	}
	process.TaskDag = strings.Join(ids, airavata.TaskDagSeparator)
}

// resolveInputReplicas rewrites airavata-dp:// data product URIs in
// the inputs to concrete gateway-data-store file paths. A plain URI
// input that cannot be resolved fails the launch; unresolvable
// members of a URI_COLLECTION are logged and skipped.
func (h *Handler) resolveInputReplicas(ctx context.Context, inputs []airavata.InputDataObject) ([]airavata.InputDataObject, error) {
	logger := ctxlog.FromContext(ctx)
	resolved := append([]airavata.InputDataObject(nil), inputs...)
	for i := range resolved {
		in := &resolved[i]
		if !in.IsDataProductURI() {
			continue
		}
		switch in.Type {
		case airavata.DataTypeURI:
			filePath, err := h.replicaPath(ctx, in.Value)
			if err != nil {
				return nil, fmt.Errorf("resolve input %s: %w", in.Name, err)
			}
			in.Value = filePath
		case airavata.DataTypeURICollection:
			var paths []string
			for _, uri := range strings.Split(in.Value, ",") {
				uri = strings.TrimSpace(uri)
				if uri == "" {
					continue
				}
				if !strings.HasPrefix(uri, airavata.DataProductURIScheme) {
					paths = append(paths, uri)
					continue
				}
				filePath, err := h.replicaPath(ctx, uri)
				if err != nil {
					logger.WithError(err).WithField("URI", uri).Warn("could not resolve collection member, skipping")
					continue
				}
				paths = append(paths, filePath)
			}
			in.Value = strings.Join(paths, ",")
		}
	}
	return resolved, nil
}

func (h *Handler) replicaPath(ctx context.Context, productURI string) (string, error) {
	product, err := h.Registry.GetDataProduct(ctx, productURI)
	if err != nil {
		return "", err
	}
	replica, ok := product.GatewayDataStoreReplica()
	if !ok {
		return "", fmt.Errorf("data product %s has no gateway data store replica", productURI)
	}
	return replica.FilePath, nil
}
