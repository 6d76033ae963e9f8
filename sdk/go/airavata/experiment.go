// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

// Package airavata holds the shared domain model for the Airavata
// orchestration services: experiments, processes, tasks, jobs, the
// application catalog descriptions they reference, and the registry
// client used to read and mutate them.
package airavata

import "time"

// ExperimentState is the lifecycle state of an Experiment.
type ExperimentState string

const (
	ExperimentStateCreated   ExperimentState = "CREATED"
	ExperimentStateValidated ExperimentState = "VALIDATED"
	ExperimentStateLaunched  ExperimentState = "LAUNCHED"
	ExperimentStateExecuting ExperimentState = "EXECUTING"
	ExperimentStateCompleted ExperimentState = "COMPLETED"
	ExperimentStateCanceling ExperimentState = "CANCELING"
	ExperimentStateCanceled  ExperimentState = "CANCELED"
	ExperimentStateFailed    ExperimentState = "FAILED"
)

// Terminal reports whether no further state change is expected.
func (s ExperimentState) Terminal() bool {
	switch s {
	case ExperimentStateCompleted, ExperimentStateCanceled, ExperimentStateFailed:
		return true
	}
	return false
}

// ExperimentType distinguishes a single application run from a
// multi-step workflow.
type ExperimentType string

const (
	ExperimentTypeSingleApplication ExperimentType = "SINGLE_APPLICATION"
	ExperimentTypeWorkflow          ExperimentType = "WORKFLOW"
)

// ExperimentStatus is one entry in an experiment's status history.
type ExperimentStatus struct {
	State             ExperimentState `json:"state"`
	Reason            string          `json:"reason,omitempty"`
	TimeOfStateChange time.Time       `json:"time_of_state_change"`
}

// ComputationalResourceScheduling carries the resource request for an
// experiment or, on a process, per-process overrides of it. Empty
// override fields mean "inherit from the preference layers".
type ComputationalResourceScheduling struct {
	ResourceHostID                  string `json:"resource_host_id,omitempty"`
	TotalCPUCount                   int    `json:"total_cpu_count,omitempty"`
	NodeCount                       int    `json:"node_count,omitempty"`
	WallTimeLimit                   int    `json:"wall_time_limit,omitempty"`
	QueueName                       string `json:"queue_name,omitempty"`
	OverrideScratchLocation         string `json:"override_scratch_location,omitempty"`
	OverrideLoginUserName           string `json:"override_login_user_name,omitempty"`
	OverrideAllocationProjectNumber string `json:"override_allocation_project_number,omitempty"`
	StaticWorkingDir                string `json:"static_working_dir,omitempty"`
}

// UserConfigurationData is the user-supplied launch configuration of
// an experiment.
type UserConfigurationData struct {
	GroupResourceProfileID          string                          `json:"group_resource_profile_id,omitempty"`
	AiravataAutoSchedule            bool                            `json:"airavata_auto_schedule,omitempty"`
	UseUserCRPref                   bool                            `json:"use_user_cr_pref,omitempty"`
	StorageID                       string                          `json:"storage_id,omitempty"`
	ComputationalResourceScheduling ComputationalResourceScheduling `json:"computational_resource_scheduling"`
}

// Experiment is a user's top-level request to run one application (or
// workflow). The registry owns the record; the orchestrator mutates
// status only.
type Experiment struct {
	ExperimentID          string                `json:"experiment_id"`
	GatewayID             string                `json:"gateway_id"`
	UserName              string                `json:"user_name,omitempty"`
	ExperimentName        string                `json:"experiment_name,omitempty"`
	ExperimentType        ExperimentType        `json:"experiment_type"`
	ExecutionID           string                `json:"execution_id,omitempty"` // application interface id
	UserConfigurationData UserConfigurationData `json:"user_configuration_data"`
	ExperimentInputs      []InputDataObject     `json:"experiment_inputs,omitempty"`
	ExperimentOutputs     []OutputDataObject    `json:"experiment_outputs,omitempty"`
	ProcessIDs            []string              `json:"process_ids,omitempty"`
	ExperimentStatus      []ExperimentStatus    `json:"experiment_status,omitempty"`
}

// LatestStatus returns the most recent status entry, or a zero status
// if none has been recorded.
func (e *Experiment) LatestStatus() ExperimentStatus {
	if len(e.ExperimentStatus) == 0 {
		return ExperimentStatus{}
	}
	return e.ExperimentStatus[len(e.ExperimentStatus)-1]
}
