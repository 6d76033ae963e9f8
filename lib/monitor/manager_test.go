// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"sync"
	"time"

	check "gopkg.in/check.v1"

	"github.com/apache/airavata-sub033/lib/coordination"
	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/lib/orchestrator"
	"github.com/apache/airavata-sub033/lib/task"
	"github.com/apache/airavata-sub033/lib/workflow"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/airavatatest"
)

type fakeAgent struct {
	entries []string
}

func (a *fakeAgent) CreateDirectory(ctx context.Context, auth task.AuthInfo, dir string) error {
	return nil
}

func (a *fakeAgent) ListDirectory(ctx context.Context, auth task.AuthInfo, dir string) ([]string, error) {
	return a.entries, nil
}

type fakeMover struct {
	mtx       sync.Mutex
	transfers int
}

func (m *fakeMover) Transfer(ctx context.Context, src, dst task.Endpoint) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.transfers++
	return nil
}

func (m *fakeMover) count() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.transfers
}

type fakeSubmitter struct {
	mtx     sync.Mutex
	jobID   string
	submits int
	cancels int
}

func (s *fakeSubmitter) Submit(ctx context.Context, auth task.AuthInfo, job task.JobDescriptor) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.submits++
	return s.jobID, nil
}

func (s *fakeSubmitter) Cancel(ctx context.Context, auth task.AuthInfo, jobID string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.cancels++
	return nil
}

func (s *fakeSubmitter) submitCount() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.submits
}

var _ = check.Suite(&managerSuite{})

type managerSuite struct {
	registry  *airavatatest.StubRegistry
	bus       *eventbus.MemBus
	store     *coordination.MemStore
	engine    *workflow.InProcessEngine
	mover     *fakeMover
	submitter *fakeSubmitter
	deps      Deps
}

func (s *managerSuite) SetUpTest(c *check.C) {
	s.registry = airavatatest.NewStubRegistry()
	s.bus = eventbus.NewMemBus()
	s.store = coordination.NewMemStore()
	s.engine = workflow.NewInProcessEngine()
	s.mover = &fakeMover{}
	s.submitter = &fakeSubmitter{jobID: "job-1"}

	s.registry.GatewayProfiles["gw1"] = &airavata.GatewayResourceProfile{
		GatewayID:            "gw1",
		CredentialStoreToken: "gw-token",
	}
	s.registry.GatewayComputePrefs["gw1/hpc1"] = &airavata.ComputeResourcePreference{
		ComputeResourceID:              "hpc1",
		LoginUserName:                  "gwuser",
		ScratchLocation:                "/scratch",
		PreferredJobSubmissionProtocol: airavata.JobSubmissionProtocolSSH,
		PreferredDataMovementProtocol:  airavata.DataMovementProtocolSCP,
	}
	s.registry.GatewayStoragePrefs["gw1/store1"] = &airavata.StoragePreference{
		StorageResourceID:      "store1",
		LoginUserName:          "storeuser",
		FileSystemRootLocation: "/gwstore",
	}
	s.registry.ComputeResources["hpc1"] = &airavata.ComputeResourceDescription{
		ComputeResourceID: "hpc1",
		HostName:          "hpc1.example.edu",
		Enabled:           true,
		BatchQueues:       []airavata.BatchQueue{{QueueName: "shared", IsDefaultQueue: true}},
		JobSubmissionInterfaces: []airavata.JobSubmissionInterface{
			{JobSubmissionInterfaceID: "ssh-0", JobSubmissionProtocol: airavata.JobSubmissionProtocolSSH},
		},
	}
	s.registry.StorageResources["store1"] = &airavata.StorageResourceDescription{
		StorageResourceID: "store1",
		HostName:          "store1.example.edu",
		Enabled:           true,
	}
	s.registry.Experiments["EXP_1"] = &airavata.Experiment{
		ExperimentID:     "EXP_1",
		GatewayID:        "gw1",
		UserName:         "alice",
		ExperimentType:   airavata.ExperimentTypeSingleApplication,
		ExperimentStatus: []airavata.ExperimentStatus{{State: airavata.ExperimentStateLaunched}},
	}

	process := &airavata.Process{
		ProcessID:         "PROCESS_1",
		ExperimentID:      "EXP_1",
		ComputeResourceID: "hpc1",
		StorageResourceID: "store1",
		UserName:          "alice",
		TaskDag:           "t-env,t-sub,t-out,t-arch",
		Tasks: []airavata.Task{
			{TaskID: "t-env", ParentProcessID: "PROCESS_1", TaskType: airavata.TaskTypeEnvSetup},
			{
				TaskID: "t-sub", ParentProcessID: "PROCESS_1", TaskType: airavata.TaskTypeJobSubmission,
				JobSubmission: &airavata.JobSubmissionTaskModel{WallTimeLimit: 30},
			},
			{
				TaskID: "t-out", ParentProcessID: "PROCESS_1", TaskType: airavata.TaskTypeDataStaging,
				DataStaging: &airavata.DataStagingTaskModel{
					Type:          airavata.DataStagingOutput,
					ProcessOutput: &airavata.OutputDataObject{Name: "result", Type: airavata.DataTypeURI, Value: "out.txt"},
				},
			},
			{
				TaskID: "t-arch", ParentProcessID: "PROCESS_1", TaskType: airavata.TaskTypeDataStaging,
				DataStaging: &airavata.DataStagingTaskModel{Type: airavata.DataStagingArchiveOutput},
			},
		},
	}
	s.registry.Processes["PROCESS_1"] = process

	builder := &workflow.Builder{
		Deps: workflow.Deps{
			Agent:      &fakeAgent{},
			Mover:      s.mover,
			Submitter:  s.submitter,
			CoordStore: s.store,
		},
		MaxTaskRetries: 3,
	}
	s.deps = Deps{
		Registry:   s.registry,
		Publisher:  s.bus,
		Source:     s.bus,
		CoordStore: s.store,
		Engine:     s.engine,
		Builder:    builder,
	}
}

func (s *managerSuite) TearDownTest(c *check.C) {
	s.bus.Close()
}

func (s *managerSuite) saveJobRecord(c *check.C, state airavata.JobState) {
	c.Assert(coordination.SaveJob(context.Background(), s.store, coordination.JobRecord{
		JobID:        "job-1",
		ProcessID:    "PROCESS_1",
		TaskID:       "t-sub",
		ExperimentID: "EXP_1",
		GatewayID:    "gw1",
		Status:       state,
	}), check.IsNil)
	s.registry.Jobs["PROCESS_1"] = []airavata.Job{{JobID: "job-1", TaskID: "t-sub", ProcessID: "PROCESS_1"}}
}

func jobEvent(c *check.C, jobID string, state airavata.JobState) *eventbus.MessageContext {
	msg, err := eventbus.NewMessage(eventbus.MessageTypeJob, "gw1", eventbus.JobStatusChangeEvent{
		Identity: eventbus.JobIdentity{JobID: jobID},
		State:    state,
	})
	c.Assert(err, check.IsNil)
	return msg
}

func (s *managerSuite) TestUnregisteredJobDropped(c *check.C) {
	m := &PostWorkflowManager{Deps: s.deps}
	m.setup()
	c.Check(m.handle(context.Background(), jobEvent(c, "job-unknown", airavata.JobStateComplete)), check.IsNil)
	s.engine.Wait()
	c.Check(s.mover.count(), check.Equals, 0)
}

func (s *managerSuite) TestDuplicateJobStateDropped(c *check.C) {
	s.saveJobRecord(c, airavata.JobStateSubmitted)
	m := &PostWorkflowManager{Deps: s.deps}
	m.setup()
	c.Check(m.handle(context.Background(), jobEvent(c, "job-1", airavata.JobStateSubmitted)), check.IsNil)

	state, err := coordination.JobStatus(context.Background(), s.store, "job-1")
	c.Assert(err, check.IsNil)
	c.Check(state, check.Equals, airavata.JobStateSubmitted)
	c.Check(s.registry.Jobs["PROCESS_1"][0].JobStatuses, check.HasLen, 0)
}

func (s *managerSuite) TestCompleteJobLaunchesPostChain(c *check.C) {
	s.saveJobRecord(c, airavata.JobStateSubmitted)
	m := &PostWorkflowManager{Deps: s.deps}
	m.setup()
	c.Assert(m.handle(context.Background(), jobEvent(c, "job-1", airavata.JobStateComplete)), check.IsNil)
	s.engine.Wait()

	// One output staged plus the archive.
	c.Check(s.mover.count(), check.Equals, 2)

	process := s.registry.Processes["PROCESS_1"]
	c.Check(process.LatestStatus().State, check.Equals, airavata.ProcessStateCompleted)

	state, err := coordination.JobStatus(context.Background(), s.store, "job-1")
	c.Assert(err, check.IsNil)
	c.Check(state, check.Equals, airavata.JobStateComplete)

	workflowIDs, err := coordination.Workflows(context.Background(), s.store, "PROCESS_1")
	c.Assert(err, check.IsNil)
	c.Check(workflowIDs, check.HasLen, 1)
}

func (s *managerSuite) TestCancelMarkerSuppressesPostChain(c *check.C) {
	s.saveJobRecord(c, airavata.JobStateSubmitted)
	c.Assert(coordination.RequestCancel(context.Background(), s.store, "PROCESS_1"), check.IsNil)

	m := &PostWorkflowManager{Deps: s.deps}
	m.setup()
	c.Assert(m.handle(context.Background(), jobEvent(c, "job-1", airavata.JobStateComplete)), check.IsNil)
	s.engine.Wait()

	c.Check(s.mover.count(), check.Equals, 0)
	process := s.registry.Processes["PROCESS_1"]
	status := process.LatestStatus()
	c.Check(status.State, check.Equals, airavata.ProcessStateCanceled)
	c.Check(status.Reason, check.Equals, "cancelled by user request")
}

func (s *managerSuite) TestCanceledJobCancelsProcess(c *check.C) {
	s.saveJobRecord(c, airavata.JobStateExecuting)
	m := &PostWorkflowManager{Deps: s.deps}
	m.setup()
	c.Assert(m.handle(context.Background(), jobEvent(c, "job-1", airavata.JobStateCanceled)), check.IsNil)

	process := s.registry.Processes["PROCESS_1"]
	status := process.LatestStatus()
	c.Check(status.State, check.Equals, airavata.ProcessStateCanceled)
	c.Check(status.Reason, check.Equals, "job cancelled")
}

func processEvent(c *check.C, state airavata.ProcessState, reason string) *eventbus.MessageContext {
	msg, err := eventbus.NewMessage(eventbus.MessageTypeProcess, "gw1", eventbus.ProcessStatusChangeEvent{
		Identity: eventbus.ProcessIdentity{ProcessID: "PROCESS_1", ExperimentID: "EXP_1", GatewayID: "gw1"},
		State:    state,
		Reason:   reason,
	})
	c.Assert(err, check.IsNil)
	return msg
}

func (s *managerSuite) setExperimentState(state airavata.ExperimentState) {
	s.registry.Experiments["EXP_1"].ExperimentStatus = []airavata.ExperimentStatus{{State: state}}
}

func (s *managerSuite) experimentState() airavata.ExperimentState {
	return s.registry.Experiments["EXP_1"].LatestStatus().State
}

func (s *managerSuite) TestExperimentFollowsProcess(c *check.C) {
	m := &ExperimentManager{Deps: s.deps}
	m.setup()

	c.Assert(m.handle(context.Background(), processEvent(c, airavata.ProcessStateExecuting, "")), check.IsNil)
	c.Check(s.experimentState(), check.Equals, airavata.ExperimentStateExecuting)

	c.Assert(m.handle(context.Background(), processEvent(c, airavata.ProcessStateCompleted, "")), check.IsNil)
	c.Check(s.experimentState(), check.Equals, airavata.ExperimentStateCompleted)
}

func (s *managerSuite) TestExperimentFailure(c *check.C) {
	m := &ExperimentManager{Deps: s.deps}
	m.setup()
	c.Assert(m.handle(context.Background(), processEvent(c, airavata.ProcessStateFailed, "disk quota exceeded")), check.IsNil)
	status := s.registry.Experiments["EXP_1"].LatestStatus()
	c.Check(status.State, check.Equals, airavata.ExperimentStateFailed)
	c.Check(status.Reason, check.Equals, "disk quota exceeded")
}

func (s *managerSuite) TestCancelingExperimentResolvesCanceled(c *check.C) {
	s.setExperimentState(airavata.ExperimentStateCanceling)
	m := &ExperimentManager{Deps: s.deps}
	m.setup()

	// A completed or failed process on a cancelling experiment
	// resolves it CANCELED, never COMPLETED or FAILED.
	c.Assert(m.handle(context.Background(), processEvent(c, airavata.ProcessStateCompleted, "")), check.IsNil)
	status := s.registry.Experiments["EXP_1"].LatestStatus()
	c.Check(status.State, check.Equals, airavata.ExperimentStateCanceled)
	c.Check(status.Reason, check.Equals, "cancelled by user request")
}

func (s *managerSuite) TestOutputFetchingProcessIgnored(c *check.C) {
	fetch := &airavata.Process{
		ProcessID:    "PROCESS_1",
		ExperimentID: "EXP_1",
		Tasks: []airavata.Task{
			{TaskID: "t-fetch", TaskType: airavata.TaskTypeOutputFetching},
		},
	}
	s.registry.Processes["PROCESS_1"] = fetch

	m := &ExperimentManager{Deps: s.deps}
	m.setup()
	c.Assert(m.handle(context.Background(), processEvent(c, airavata.ProcessStateCompleted, "")), check.IsNil)
	c.Check(s.experimentState(), check.Equals, airavata.ExperimentStateLaunched)
}

func (s *managerSuite) TestDuplicateExperimentStateNoOp(c *check.C) {
	s.setExperimentState(airavata.ExperimentStateExecuting)
	m := &ExperimentManager{Deps: s.deps}
	m.setup()
	c.Assert(m.handle(context.Background(), processEvent(c, airavata.ProcessStateExecuting, "")), check.IsNil)
	c.Check(s.registry.Experiments["EXP_1"].ExperimentStatus, check.HasLen, 1)
}

func (s *managerSuite) TestTerminalExperimentIgnoresLateEvents(c *check.C) {
	s.setExperimentState(airavata.ExperimentStateCompleted)
	m := &ExperimentManager{Deps: s.deps}
	m.setup()
	c.Assert(m.handle(context.Background(), processEvent(c, airavata.ProcessStateFailed, "late straggler")), check.IsNil)
	c.Check(s.experimentState(), check.Equals, airavata.ExperimentStateCompleted)
}

// TestExperimentRunsToCompletion drives a whole experiment through the
// orchestrator, the bus, and all managers: launch, pre chain with job
// submission, a terminal job event, post chain, experiment COMPLETED.
func (s *managerSuite) TestExperimentRunsToCompletion(c *check.C) {
	exp := s.registry.Experiments["EXP_1"]
	exp.ExperimentName = "md-run"
	exp.ExecutionID = "iface1"
	exp.ExperimentStatus = []airavata.ExperimentStatus{{State: airavata.ExperimentStateCreated}}
	exp.UserConfigurationData = airavata.UserConfigurationData{
		GroupResourceProfileID: "grp1",
		StorageID:              "store1",
		ComputationalResourceScheduling: airavata.ComputationalResourceScheduling{
			ResourceHostID: "hpc1",
			QueueName:      "shared",
			NodeCount:      1,
			TotalCPUCount:  4,
			WallTimeLimit:  30,
		},
	}
	exp.ExperimentInputs = []airavata.InputDataObject{
		{Name: "coords", Type: airavata.DataTypeURI, Value: "/gwstore/in/coords.pdb"},
	}
	exp.ExperimentOutputs = []airavata.OutputDataObject{
		{Name: "result", Type: airavata.DataTypeURI, Value: "out.txt"},
	}
	s.registry.GroupProfiles["grp1"] = &airavata.GroupResourceProfile{
		GroupResourceProfileID:      "grp1",
		GatewayID:                   "gw1",
		DefaultCredentialStoreToken: "grp-token",
	}
	s.registry.AppInterfaces["iface1"] = &airavata.ApplicationInterfaceDescription{
		ApplicationInterfaceID: "iface1",
		ApplicationName:        "namd",
		ApplicationModules:     []string{"mod1"},
	}
	s.registry.AppDeployments["dep1"] = &airavata.ApplicationDeploymentDescription{
		AppDeploymentID: "dep1",
		AppModuleID:     "mod1",
		ComputeHostID:   "hpc1",
		ExecutablePath:  "/opt/namd/namd2",
	}
	delete(s.registry.Processes, "PROCESS_1")

	handler := &orchestrator.Handler{Registry: s.registry, Publisher: s.bus, CoordStore: s.store}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, mgr := range []interface {
		Run(context.Context) error
	}{
		&PreWorkflowManager{Deps: s.deps},
		&PostWorkflowManager{Deps: s.deps},
		&ExperimentManager{Deps: s.deps},
	} {
		mgr := mgr
		go mgr.Run(ctx)
	}
	// Give the managers a moment to subscribe.
	time.Sleep(50 * time.Millisecond)

	launched, err := handler.LaunchExperiment(context.Background(), "EXP_1", "gw1")
	c.Assert(err, check.IsNil)
	c.Assert(launched, check.Equals, true)
	handler.Wait()

	// Wait for the pre chain to submit the job, then report it
	// finished the way an external monitor would: by bare job id.
	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, ok, err := coordination.LookupJob(context.Background(), s.store, "job-1"); err == nil && ok {
			break
		}
		if time.Now().After(deadline) {
			c.Fatal("timed out waiting for job submission")
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.Assert(s.bus.Publish(context.Background(), jobEvent(c, "job-1", airavata.JobStateComplete)), check.IsNil)

	for {
		status, err := s.registry.GetExperimentStatus(context.Background(), "EXP_1")
		c.Assert(err, check.IsNil)
		if status.State == airavata.ExperimentStateCompleted {
			break
		}
		c.Assert(status.State, check.Not(check.Equals), airavata.ExperimentStateFailed,
			check.Commentf("experiment failed: %s", status.Reason))
		if time.Now().After(deadline) {
			c.Fatalf("timed out waiting for experiment completion (state %s)", status.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Input staging, output staging, archive.
	c.Check(s.mover.count(), check.Equals, 3)
	c.Check(s.submitter.submitCount(), check.Equals, 1)
}
