// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"sync"
	"time"

	"github.com/apache/airavata-sub033/lib/coordination"
	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/lib/taskcontext"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// JobSubmission submits the batch job for a process and registers the
// scheduler-assigned job id with the registry and the coordination
// store so that later bare-job-id monitor events can be correlated
// back to this process.
type JobSubmission struct {
	Submitter  Submitter
	CoordStore coordination.Store
	Model      *airavata.JobSubmissionTaskModel
	TaskID     string

	mtx   sync.Mutex
	jobID string
}

func (t *JobSubmission) Type() airavata.TaskType { return airavata.TaskTypeJobSubmission }

func (t *JobSubmission) Run(ctx context.Context, tc *taskcontext.TaskContext) error {
	logger := ctxlog.FromContext(ctx)

	job, auth, err := t.describeJob(tc)
	if err != nil {
		return Fatalf(err, "could not assemble job description for process %s", tc.Process.ProcessID)
	}

	jobID, err := t.Submitter.Submit(ctx, auth, job)
	if err != nil {
		return Retryablef(err, "job submission to %s failed", auth.HostName)
	}
	t.mtx.Lock()
	t.jobID = jobID
	t.mtx.Unlock()
	logger.WithField("JobID", jobID).Info("job submitted")

	now := time.Now().UTC()
	if err := tc.Registry.AddJob(ctx, &airavata.Job{
		JobID:        jobID,
		TaskID:       t.TaskID,
		ProcessID:    tc.Process.ProcessID,
		JobName:      job.JobName,
		WorkingDir:   job.WorkingDir,
		CreationTime: now,
		JobStatuses:  []airavata.JobStatus{{State: airavata.JobStateSubmitted, TimeOfStateChange: now}},
	}); err != nil {
		return Retryablef(err, "could not record job %s in registry", jobID)
	}

	// Without this record the monitors cannot attribute status
	// events for the job, so failing here fails the task.
	if err := coordination.SaveJob(ctx, t.CoordStore, coordination.JobRecord{
		JobID:        jobID,
		ProcessID:    tc.Process.ProcessID,
		TaskID:       t.TaskID,
		ExperimentID: tc.Process.ExperimentID,
		GatewayID:    tc.GatewayID,
		Status:       airavata.JobStateSubmitted,
	}); err != nil {
		return Retryablef(err, "could not register job %s for monitoring", jobID)
	}

	msg, err := eventbus.NewMessage(eventbus.MessageTypeJob, tc.GatewayID, eventbus.JobStatusChangeEvent{
		Identity: eventbus.JobIdentity{JobID: jobID, TaskID: t.TaskID, ProcessIdentity: tc.Identity()},
		State:    airavata.JobStateSubmitted,
	})
	if err == nil {
		if err := tc.Publisher.Publish(ctx, msg); err != nil {
			logger.WithError(err).Warn("could not publish job SUBMITTED event")
		}
	}
	return nil
}

// Cancel asks the scheduler to cancel the submitted job, if one was
// submitted.
func (t *JobSubmission) Cancel(ctx context.Context, tc *taskcontext.TaskContext) error {
	t.mtx.Lock()
	jobID := t.jobID
	t.mtx.Unlock()
	if jobID == "" {
		return nil
	}
	auth, err := computeAuth(tc)
	if err != nil {
		return err
	}
	return t.Submitter.Cancel(ctx, auth, jobID)
}

func (t *JobSubmission) describeJob(tc *taskcontext.TaskContext) (JobDescriptor, AuthInfo, error) {
	auth, err := computeAuth(tc)
	if err != nil {
		return JobDescriptor{}, AuthInfo{}, err
	}
	workingDir, err := tc.WorkingDir()
	if err != nil {
		return JobDescriptor{}, AuthInfo{}, err
	}
	iface, err := tc.PreferredJobSubmissionInterface()
	if err != nil {
		return JobDescriptor{}, AuthInfo{}, err
	}
	protocol, err := tc.JobSubmissionProtocol()
	if err != nil {
		return JobDescriptor{}, AuthInfo{}, err
	}
	stdout, err := tc.StdoutLocation()
	if err != nil {
		return JobDescriptor{}, AuthInfo{}, err
	}
	stderr, err := tc.StderrLocation()
	if err != nil {
		return JobDescriptor{}, AuthInfo{}, err
	}
	jobName := "A" + tc.Process.ProcessID
	wallTime := tc.Process.ResourceSchedule.WallTimeLimit
	if t.Model != nil && t.Model.WallTimeLimit > 0 {
		wallTime = t.Model.WallTimeLimit
	}
	var execPath string
	if tc.ApplicationDeployment != nil {
		execPath = tc.ApplicationDeployment.ExecutablePath
	}
	return JobDescriptor{
		JobName:          jobName,
		WorkingDir:       workingDir,
		ExecutablePath:   execPath,
		QueueName:        tc.QueueName(),
		QueueMacros:      tc.QueueSpecificMacros(),
		ReservationID:    tc.ReservationID(),
		QualityOfService: tc.QualityOfService(),
		Allocation:       tc.AllocationProjectNumber(),
		StdoutPath:       stdout,
		StderrPath:       stderr,
		NodeCount:        tc.Process.ResourceSchedule.NodeCount,
		CPUCount:         tc.Process.ResourceSchedule.TotalCPUCount,
		WallTimeLimit:    wallTime,
		Protocol:         protocol,
		Interface:        iface,
	}, auth, nil
}
