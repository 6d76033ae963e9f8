// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package airavata

import "time"

// JobState is the batch-scheduler-side state of a submitted job.
// Transitions arrive asynchronously from monitoring and must be
// validated against the currently recorded state before being applied.
type JobState string

const (
	JobStateSubmitted JobState = "SUBMITTED"
	JobStateQueued    JobState = "QUEUED"
	JobStateExecuting JobState = "EXECUTING"
	JobStateComplete  JobState = "COMPLETE"
	JobStateFailed    JobState = "FAILED"
	JobStateCanceled  JobState = "CANCELED"
)

// Terminal reports whether no further state change is expected.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateComplete, JobStateFailed, JobStateCanceled:
		return true
	}
	return false
}

// JobStatus is one entry in a job's status history.
type JobStatus struct {
	State             JobState  `json:"state"`
	Reason            string    `json:"reason,omitempty"`
	TimeOfStateChange time.Time `json:"time_of_state_change"`
}

// Job represents one batch-scheduler submission tied to a
// JOB_SUBMISSION task.
type Job struct {
	JobID          string      `json:"job_id"` // scheduler-assigned
	TaskID         string      `json:"task_id"`
	ProcessID      string      `json:"process_id"`
	JobName        string      `json:"job_name,omitempty"`
	WorkingDir     string      `json:"working_dir,omitempty"`
	JobDescription string      `json:"job_description,omitempty"`
	CreationTime   time.Time   `json:"creation_time"`
	JobStatuses    []JobStatus `json:"job_statuses,omitempty"`
}
