// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

// Validator is one pre-flight check run against a process before
// launch.
type Validator interface {
	Validate(ctx context.Context, experiment *airavata.Experiment, process *airavata.Process) error
}

// validateProcess runs the configured validators plus the built-in
// structural checks, wrapping any failure as a ValidationError.
func (h *Handler) validateProcess(ctx context.Context, experiment *airavata.Experiment, process *airavata.Process) error {
	checks := append([]Validator{structuralValidator{}, requiredInputValidator{}}, h.Validators...)
	for _, v := range checks {
		if err := v.Validate(ctx, experiment, process); err != nil {
			if _, ok := err.(*airavata.ValidationError); ok {
				return err
			}
			return &airavata.ValidationError{
				ExperimentID: experiment.ExperimentID,
				ProcessID:    process.ProcessID,
				Reason:       err.Error(),
			}
		}
	}
	return nil
}

// structuralValidator checks the process shape: a target resource,
// an application, and a task DAG with exactly one job submission.
type structuralValidator struct{}

func (structuralValidator) Validate(ctx context.Context, experiment *airavata.Experiment, process *airavata.Process) error {
	if process.ComputeResourceID == "" {
		return fmt.Errorf("no compute resource selected")
	}
	if process.ApplicationInterfaceID == "" {
		return fmt.Errorf("no application interface selected")
	}
	if len(process.Tasks) == 0 || process.TaskDag == "" {
		return fmt.Errorf("process has no task DAG")
	}
	submissions := 0
	for _, t := range process.Tasks {
		if t.TaskType == airavata.TaskTypeJobSubmission {
			submissions++
		}
	}
	if submissions != 1 {
		return fmt.Errorf("process has %d job submission tasks, want exactly 1", submissions)
	}
	for _, id := range process.TaskExecutionOrder() {
		if _, ok := process.TaskByID(id); !ok {
			return fmt.Errorf("task DAG references unknown task %s", id)
		}
	}
	return nil
}

// requiredInputValidator rejects processes with unset required
// inputs.
type requiredInputValidator struct{}

func (requiredInputValidator) Validate(ctx context.Context, experiment *airavata.Experiment, process *airavata.Process) error {
	for _, in := range process.ProcessInputs {
		if in.Value == "" && (in.Type == airavata.DataTypeURI || in.Type == airavata.DataTypeURICollection) {
			return fmt.Errorf("required input %s has no value", in.Name)
		}
	}
	return nil
}
