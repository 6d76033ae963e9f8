// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

// Package coordination is the path-addressed key/value store the
// orchestration core uses to correlate bare scheduler job ids back to
// their owning experiment/process/task, to record cancel requests,
// and to register launched workflow ids for later cancellation.
//
// All call sites go through the typed helpers below rather than
// building path strings themselves.
package coordination

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

// Store is a small path-addressed key/value contract. Paths are
// slash-separated; List returns the immediate children of a prefix.
type Store interface {
	Put(ctx context.Context, path, value string) error
	// Get returns the value and true, or "" and false when the
	// path has never been written.
	Get(ctx context.Context, path string) (string, bool, error)
	Delete(ctx context.Context, path string) error
	// DeleteTree removes the path and everything below it.
	DeleteTree(ctx context.Context, path string) error
	List(ctx context.Context, path string) ([]string, error)
}

func monitoringPath(jobID, field string) string {
	return "/monitoring/" + jobID + "/" + field
}

func registryPath(processID, field string) string {
	return "/registry/" + processID + "/" + field
}

// JobRecord is the identity bundle stored per monitored job.
type JobRecord struct {
	JobID        string
	ProcessID    string
	TaskID       string
	ExperimentID string
	GatewayID    string
	Status       airavata.JobState
}

// SaveJob records the full identity of a newly submitted job so that
// later bare-job-id status events can be correlated.
func SaveJob(ctx context.Context, s Store, rec JobRecord) error {
	for field, value := range map[string]string{
		"process":    rec.ProcessID,
		"task":       rec.TaskID,
		"experiment": rec.ExperimentID,
		"gateway":    rec.GatewayID,
		"status":     string(rec.Status),
	} {
		if err := s.Put(ctx, monitoringPath(rec.JobID, field), value); err != nil {
			return fmt.Errorf("save job %s field %s: %w", rec.JobID, field, err)
		}
	}
	return nil
}

// LookupJob resolves a bare job id to its identity record. ok is
// false when the job id was never registered.
func LookupJob(ctx context.Context, s Store, jobID string) (rec JobRecord, ok bool, err error) {
	rec.JobID = jobID
	for field, dst := range map[string]*string{
		"process":    &rec.ProcessID,
		"task":       &rec.TaskID,
		"experiment": &rec.ExperimentID,
		"gateway":    &rec.GatewayID,
	} {
		value, found, err := s.Get(ctx, monitoringPath(jobID, field))
		if err != nil {
			return rec, false, err
		}
		if !found {
			return rec, false, nil
		}
		*dst = value
	}
	if status, found, err := s.Get(ctx, monitoringPath(jobID, "status")); err != nil {
		return rec, false, err
	} else if found {
		rec.Status = airavata.JobState(status)
	}
	return rec, true, nil
}

// JobStatus returns the last recorded state of a job, or "" when
// none has been recorded.
func JobStatus(ctx context.Context, s Store, jobID string) (airavata.JobState, error) {
	value, _, err := s.Get(ctx, monitoringPath(jobID, "status"))
	return airavata.JobState(value), err
}

// SaveJobStatus records the state a job has been observed in. Called
// after the transition passed validation, so the stored value only
// moves forward.
func SaveJobStatus(ctx context.Context, s Store, jobID string, state airavata.JobState) error {
	return s.Put(ctx, monitoringPath(jobID, "status"), string(state))
}

const cancelMarker = "cancelled"

// RequestCancel flags a process so that downstream orchestration
// (post-workflow launch) is suppressed. Cancellation of the remote
// job itself happens out-of-band.
func RequestCancel(ctx context.Context, s Store, processID string) error {
	return s.Put(ctx, registryPath(processID, "status"), cancelMarker)
}

// CancelRequested reports whether a cancel marker exists for the
// process.
func CancelRequested(ctx context.Context, s Store, processID string) (bool, error) {
	value, ok, err := s.Get(ctx, registryPath(processID, "status"))
	return ok && value == cancelMarker, err
}

// RegisterWorkflow records a launched workflow id against its
// process, so cancellation can find in-flight workflows.
func RegisterWorkflow(ctx context.Context, s Store, processID, workflowID string) error {
	return s.Put(ctx, registryPath(processID, "workflows/"+workflowID), "")
}

// Workflows lists the workflow ids launched for a process.
func Workflows(ctx context.Context, s Store, processID string) ([]string, error) {
	children, err := s.List(ctx, registryPath(processID, "workflows"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(children))
	for _, child := range children {
		ids = append(ids, strings.TrimPrefix(child, registryPath(processID, "workflows")+"/"))
	}
	return ids, nil
}

// ForgetJob removes all monitoring records for a job, typically after
// its process reaches a terminal state.
func ForgetJob(ctx context.Context, s Store, jobID string) error {
	return s.DeleteTree(ctx, "/monitoring/"+jobID)
}

// ForgetProcess removes all registry records for a process.
func ForgetProcess(ctx context.Context, s Store, processID string) error {
	return s.DeleteTree(ctx, "/registry/"+processID)
}
