// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package airavata

import "time"

// TaskType identifies what a task does.
type TaskType string

const (
	TaskTypeEnvSetup       TaskType = "ENV_SETUP"
	TaskTypeDataStaging    TaskType = "DATA_STAGING"
	TaskTypeJobSubmission  TaskType = "JOB_SUBMISSION"
	TaskTypeOutputFetching TaskType = "OUTPUT_FETCHING"
	TaskTypeCompleting     TaskType = "COMPLETING"
	TaskTypeDataParsing    TaskType = "DATA_PARSING"
)

// TaskState is the lifecycle state of a Task.
type TaskState string

const (
	TaskStateCreated   TaskState = "CREATED"
	TaskStateExecuting TaskState = "EXECUTING"
	TaskStateCompleted TaskState = "COMPLETED"
	TaskStateFailed    TaskState = "FAILED"
	TaskStateCanceled  TaskState = "CANCELED"
)

// TaskStatus is one entry in a task's status history.
type TaskStatus struct {
	State             TaskState `json:"state"`
	Reason            string    `json:"reason,omitempty"`
	TimeOfStateChange time.Time `json:"time_of_state_change"`
}

// DataStagingType is the stored subtype of a data-staging task. Note
// that post-submission chains classify staging tasks by chain position
// as well; see the workflow builder.
type DataStagingType string

const (
	DataStagingInput         DataStagingType = "INPUT"
	DataStagingOutput        DataStagingType = "OUTPUT"
	DataStagingArchiveOutput DataStagingType = "ARCHIVE_OUTPUT"
)

// DataStagingTaskModel is the subtask payload of a DATA_STAGING task.
type DataStagingTaskModel struct {
	Type          DataStagingType   `json:"type"`
	Source        string            `json:"source,omitempty"`
	Destination   string            `json:"destination,omitempty"`
	ProcessInput  *InputDataObject  `json:"process_input,omitempty"`
	ProcessOutput *OutputDataObject `json:"process_output,omitempty"`
}

// JobSubmissionTaskModel is the subtask payload of a JOB_SUBMISSION
// task.
type JobSubmissionTaskModel struct {
	JobSubmissionProtocol JobSubmissionProtocol `json:"job_submission_protocol,omitempty"`
	WallTimeLimit         int                   `json:"wall_time_limit,omitempty"`
}

// DataParsingTaskModel is the subtask payload of a DATA_PARSING task.
type DataParsingTaskModel struct {
	ParserID        string            `json:"parser_id"`
	InputMapping    map[string]string `json:"input_mapping,omitempty"`    // parser input id -> context variable name
	LiteralInputs   map[string]string `json:"literal_inputs,omitempty"`   // parser input id -> literal/expression value
	ContextOutputs  map[string]string `json:"context_outputs,omitempty"`  // parser output id -> context variable name
	GatewayID       string            `json:"gateway_id,omitempty"`
	LocalDataDir    string            `json:"local_data_dir,omitempty"`
}

// Task is one typed unit of work belonging to exactly one Process.
type Task struct {
	TaskID           string                  `json:"task_id"`
	ParentProcessID  string                  `json:"parent_process_id"`
	TaskType         TaskType                `json:"task_type"`
	TaskStatuses     []TaskStatus            `json:"task_statuses,omitempty"`
	DataStaging      *DataStagingTaskModel   `json:"data_staging,omitempty"`
	JobSubmission    *JobSubmissionTaskModel `json:"job_submission,omitempty"`
	DataParsing      *DataParsingTaskModel   `json:"data_parsing,omitempty"`
	CreationTime     time.Time               `json:"creation_time,omitempty"`
	LastUpdateTime   time.Time               `json:"last_update_time,omitempty"`
}

// LatestStatus returns the most recent status entry, or a zero status
// if none has been recorded.
func (t *Task) LatestStatus() TaskStatus {
	if len(t.TaskStatuses) == 0 {
		return TaskStatus{}
	}
	return t.TaskStatuses[len(t.TaskStatuses)-1]
}
