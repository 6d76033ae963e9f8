// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package airavata

import (
	"strings"
	"time"
)

// ProcessState is the lifecycle state of a Process.
type ProcessState string

const (
	ProcessStateCreated    ProcessState = "CREATED"
	ProcessStateValidated  ProcessState = "VALIDATED"
	ProcessStateStarted    ProcessState = "STARTED"
	ProcessStateExecuting  ProcessState = "EXECUTING"
	ProcessStateCompleted  ProcessState = "COMPLETED"
	ProcessStateCanceling  ProcessState = "CANCELLING"
	ProcessStateCanceled   ProcessState = "CANCELED"
	ProcessStateFailed     ProcessState = "FAILED"
)

// Terminal reports whether no further state change is expected.
func (s ProcessState) Terminal() bool {
	switch s {
	case ProcessStateCompleted, ProcessStateCanceled, ProcessStateFailed:
		return true
	}
	return false
}

// ProcessStatus is one entry in a process's status history.
type ProcessStatus struct {
	State             ProcessState `json:"state"`
	Reason            string       `json:"reason,omitempty"`
	TimeOfStateChange time.Time    `json:"time_of_state_change"`
}

// TaskDagSeparator delimits task ids in Process.TaskDag.
const TaskDagSeparator = ","

// Process is one concrete execution attempt of an experiment on a
// specific compute resource. Its task DAG, once created, is immutable;
// re-execution creates a new process.
type Process struct {
	ProcessID               string                          `json:"process_id"`
	ExperimentID            string                          `json:"experiment_id"`
	ApplicationInterfaceID  string                          `json:"application_interface_id,omitempty"`
	ApplicationDeploymentID string                          `json:"application_deployment_id,omitempty"`
	ComputeResourceID       string                          `json:"compute_resource_id,omitempty"`
	StorageResourceID       string                          `json:"storage_resource_id,omitempty"`
	GroupResourceProfileID  string                          `json:"group_resource_profile_id,omitempty"`
	UseUserCRPref           bool                            `json:"use_user_cr_pref,omitempty"`
	UserName                string                          `json:"user_name,omitempty"`
	TaskDag                 string                          `json:"task_dag,omitempty"`
	Tasks                   []Task                          `json:"tasks,omitempty"`
	ResourceSchedule        ComputationalResourceScheduling `json:"resource_schedule"`
	ProcessInputs           []InputDataObject               `json:"process_inputs,omitempty"`
	ProcessOutputs          []OutputDataObject              `json:"process_outputs,omitempty"`
	ProcessStatuses         []ProcessStatus                 `json:"process_statuses,omitempty"`
}

// LatestStatus returns the most recent status entry, or a zero status
// if none has been recorded.
func (p *Process) LatestStatus() ProcessStatus {
	if len(p.ProcessStatuses) == 0 {
		return ProcessStatus{}
	}
	return p.ProcessStatuses[len(p.ProcessStatuses)-1]
}

// TaskExecutionOrder returns the task ids of the stored DAG in
// execution order.
func (p *Process) TaskExecutionOrder() []string {
	if p.TaskDag == "" {
		return nil
	}
	var order []string
	for _, id := range strings.Split(p.TaskDag, TaskDagSeparator) {
		if id = strings.TrimSpace(id); id != "" {
			order = append(order, id)
		}
	}
	return order
}

// TaskByID returns the task model with the given id, if present.
func (p *Process) TaskByID(taskID string) (Task, bool) {
	for _, t := range p.Tasks {
		if t.TaskID == taskID {
			return t, true
		}
	}
	return Task{}, false
}

// HasTaskOfType reports whether any task in the process has the given
// type. Used, e.g., to recognize intermediate-output-fetching
// processes, which must not drive experiment-level status.
func (p *Process) HasTaskOfType(tt TaskType) bool {
	for _, t := range p.Tasks {
		if t.TaskType == tt {
			return true
		}
	}
	return false
}
