// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"strings"

	check "gopkg.in/check.v1"

	"github.com/apache/airavata-sub033/lib/coordination"
	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/airavatatest"
)

var _ = check.Suite(&handlerSuite{})

type handlerSuite struct {
	registry *airavatatest.StubRegistry
	bus      *eventbus.MemBus
	store    *coordination.MemStore
	handler  *Handler
}

func (s *handlerSuite) SetUpTest(c *check.C) {
	s.registry = airavatatest.NewStubRegistry()
	s.bus = eventbus.NewMemBus()
	s.store = coordination.NewMemStore()
	s.handler = &Handler{Registry: s.registry, Publisher: s.bus, CoordStore: s.store}

	s.registry.GatewayProfiles["gw1"] = &airavata.GatewayResourceProfile{
		GatewayID:            "gw1",
		CredentialStoreToken: "gw-token",
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
	s.registry.Experiments["EXP_1"] = &airavata.Experiment{
		ExperimentID:   "EXP_1",
		GatewayID:      "gw1",
		UserName:       "alice",
		ExperimentName: "md-run",
		ExperimentType: airavata.ExperimentTypeSingleApplication,
		ExecutionID:    "iface1",
		UserConfigurationData: airavata.UserConfigurationData{
			GroupResourceProfileID: "grp1",
			StorageID:              "store1",
			ComputationalResourceScheduling: airavata.ComputationalResourceScheduling{
				ResourceHostID: "hpc1",
				QueueName:      "shared",
				WallTimeLimit:  30,
			},
		},
		ExperimentInputs: []airavata.InputDataObject{
			{Name: "coords", Type: airavata.DataTypeURI, Value: "/gwstore/in/coords.pdb"},
		},
		ExperimentOutputs: []airavata.OutputDataObject{
			{Name: "result", Type: airavata.DataTypeURI, Value: "out.txt"},
			{Name: "log", Type: airavata.DataTypeStdout},
		},
		ExperimentStatus: []airavata.ExperimentStatus{{State: airavata.ExperimentStateCreated}},
	}
}

func (s *handlerSuite) TearDownTest(c *check.C) {
	s.bus.Close()
}

func (s *handlerSuite) experimentState() airavata.ExperimentState {
	return s.registry.Experiments["EXP_1"].LatestStatus().State
}

func (s *handlerSuite) onlyProcess(c *check.C) *airavata.Process {
	ids := s.registry.Experiments["EXP_1"].ProcessIDs
	c.Assert(ids, check.HasLen, 1)
	process, err := s.registry.GetProcess(context.Background(), ids[0])
	c.Assert(err, check.IsNil)
	return process
}

func (s *handlerSuite) TestLaunchBuildsTaskDag(c *check.C) {
	sink := s.bus.NewSink(eventbus.MessageTypeLaunchProcess)

	launched, err := s.handler.LaunchExperiment(context.Background(), "EXP_1", "gw1")
	c.Assert(err, check.IsNil)
	c.Check(launched, check.Equals, true)
	c.Check(s.experimentState(), check.Equals, airavata.ExperimentStateLaunched)
	s.handler.Wait()

	process := s.onlyProcess(c)
	c.Check(process.ExperimentID, check.Equals, "EXP_1")
	c.Check(process.ApplicationInterfaceID, check.Equals, "iface1")
	// Host scheduling picked the deployment on the chosen resource.
	c.Check(process.ApplicationDeploymentID, check.Equals, "dep1")
	c.Check(process.ComputeResourceID, check.Equals, "hpc1")

	// Environment setup, one input staging, job submission, two
	// output stagings (URI and stdout), archive.
	order := process.TaskExecutionOrder()
	c.Assert(order, check.HasLen, 6)
	var types []airavata.TaskType
	for _, id := range order {
		model, ok := process.TaskByID(id)
		c.Assert(ok, check.Equals, true)
		types = append(types, model.TaskType)
	}
	c.Check(types, check.DeepEquals, []airavata.TaskType{
		airavata.TaskTypeEnvSetup,
		airavata.TaskTypeDataStaging,
		airavata.TaskTypeJobSubmission,
		airavata.TaskTypeDataStaging,
		airavata.TaskTypeDataStaging,
		airavata.TaskTypeDataStaging,
	})

	msg := <-sink.Channel()
	var event eventbus.ProcessSubmitEvent
	c.Assert(msg.Decode(&event), check.IsNil)
	c.Check(event.ProcessID, check.Equals, process.ProcessID)
	c.Check(event.ExperimentID, check.Equals, "EXP_1")
	c.Check(event.TokenID, check.Equals, "grp-token")
}

func (s *handlerSuite) TestLaunchIsIdempotent(c *check.C) {
	s.registry.Experiments["EXP_1"].ExperimentStatus = []airavata.ExperimentStatus{{State: airavata.ExperimentStateLaunched}}
	launched, err := s.handler.LaunchExperiment(context.Background(), "EXP_1", "gw1")
	c.Check(err, check.IsNil)
	c.Check(launched, check.Equals, false)
	c.Check(s.registry.Experiments["EXP_1"].ProcessIDs, check.HasLen, 0)
}

func (s *handlerSuite) TestWorkflowExperimentRejected(c *check.C) {
	s.registry.Experiments["EXP_1"].ExperimentType = airavata.ExperimentTypeWorkflow
	launched, err := s.handler.LaunchExperiment(context.Background(), "EXP_1", "gw1")
	c.Check(launched, check.Equals, false)
	c.Check(err, check.FitsTypeOf, &airavata.ValidationError{})
	c.Check(s.experimentState(), check.Equals, airavata.ExperimentStateFailed)
	c.Check(s.registry.ErrorsFor(airavata.ErrorScopeExperiment, "EXP_1"), check.HasLen, 1)
}

func (s *handlerSuite) TestLaunchResolvesReplicaURIs(c *check.C) {
	s.registry.DataProducts["airavata-dp://prod-1"] = &airavata.DataProduct{
		ProductURI: "airavata-dp://prod-1",
		GatewayID:  "gw1",
		ReplicaLocations: []airavata.DataReplicaLocation{{
			FilePath:                "/gwstore/products/coords.pdb",
			ReplicaLocationCategory: airavata.ReplicaLocationGatewayDataStore,
		}},
	}
	s.registry.Experiments["EXP_1"].ExperimentInputs[0].Value = "airavata-dp://prod-1"

	launched, err := s.handler.LaunchExperiment(context.Background(), "EXP_1", "gw1")
	c.Assert(err, check.IsNil)
	c.Check(launched, check.Equals, true)
	s.handler.Wait()

	process := s.onlyProcess(c)
	c.Assert(process.ProcessInputs, check.HasLen, 1)
	c.Check(process.ProcessInputs[0].Value, check.Equals, "/gwstore/products/coords.pdb")
	// The experiment record keeps the original product URI.
	c.Check(s.registry.Experiments["EXP_1"].ExperimentInputs[0].Value, check.Equals, "airavata-dp://prod-1")
}

func (s *handlerSuite) TestUnresolvableReplicaFailsLaunch(c *check.C) {
	s.registry.Experiments["EXP_1"].ExperimentInputs[0].Value = "airavata-dp://missing"
	launched, err := s.handler.LaunchExperiment(context.Background(), "EXP_1", "gw1")
	c.Check(launched, check.Equals, false)
	c.Check(err, check.NotNil)
	c.Check(s.experimentState(), check.Equals, airavata.ExperimentStateFailed)
}

func (s *handlerSuite) TestCollectionMembersSkippedWhenUnresolvable(c *check.C) {
	s.registry.DataProducts["airavata-dp://prod-1"] = &airavata.DataProduct{
		ProductURI: "airavata-dp://prod-1",
		GatewayID:  "gw1",
		ReplicaLocations: []airavata.DataReplicaLocation{{
			FilePath:                "/gwstore/products/a.dat",
			ReplicaLocationCategory: airavata.ReplicaLocationGatewayDataStore,
		}},
	}
	s.registry.Experiments["EXP_1"].ExperimentInputs[0] = airavata.InputDataObject{
		Name:  "frames",
		Type:  airavata.DataTypeURICollection,
		Value: "airavata-dp://prod-1, airavata-dp://missing, /gwstore/plain/b.dat",
	}

	launched, err := s.handler.LaunchExperiment(context.Background(), "EXP_1", "gw1")
	c.Assert(err, check.IsNil)
	c.Check(launched, check.Equals, true)
	s.handler.Wait()

	process := s.onlyProcess(c)
	c.Check(process.ProcessInputs[0].Value, check.Equals, "/gwstore/products/a.dat,/gwstore/plain/b.dat")
}

func (s *handlerSuite) TestLaunchProcessSkipsRunningProcess(c *check.C) {
	s.registry.Processes["PROCESS_1"] = &airavata.Process{
		ProcessID:       "PROCESS_1",
		ExperimentID:    "EXP_1",
		ProcessStatuses: []airavata.ProcessStatus{{State: airavata.ProcessStateExecuting}},
	}
	launched, err := s.handler.LaunchProcess(context.Background(), "PROCESS_1", "grp-token", "gw1")
	c.Check(err, check.IsNil)
	c.Check(launched, check.Equals, false)
}

func (s *handlerSuite) TestTerminateGuards(c *check.C) {
	for _, trial := range []struct {
		state airavata.ExperimentState
		match string
	}{
		{airavata.ExperimentStateCreated, `.*has not been launched.*`},
		{airavata.ExperimentStateCompleted, `.*already COMPLETED.*`},
		{airavata.ExperimentStateCanceling, `.*already being cancelled`},
	} {
		s.registry.Experiments["EXP_1"].ExperimentStatus = []airavata.ExperimentStatus{{State: trial.state}}
		err := s.handler.TerminateExperiment(context.Background(), "EXP_1", "gw1")
		c.Check(err, check.ErrorMatches, trial.match, check.Commentf("state=%s", trial.state))
	}
}

func (s *handlerSuite) TestTerminateFlagsProcesses(c *check.C) {
	s.registry.Experiments["EXP_1"].ExperimentStatus = []airavata.ExperimentStatus{{State: airavata.ExperimentStateExecuting}}
	c.Assert(s.registry.CreateProcess(context.Background(), &airavata.Process{ProcessID: "PROCESS_1", ExperimentID: "EXP_1"}), check.IsNil)
	sink := s.bus.NewSink(eventbus.MessageTypeTerminateProcess)

	c.Assert(s.handler.TerminateExperiment(context.Background(), "EXP_1", "gw1"), check.IsNil)
	c.Check(s.experimentState(), check.Equals, airavata.ExperimentStateCanceling)

	cancelled, err := coordination.CancelRequested(context.Background(), s.store, "PROCESS_1")
	c.Assert(err, check.IsNil)
	c.Check(cancelled, check.Equals, true)

	msg := <-sink.Channel()
	var event eventbus.ProcessTerminateEvent
	c.Assert(msg.Decode(&event), check.IsNil)
	c.Check(event.ProcessID, check.Equals, "PROCESS_1")
	c.Check(event.TokenID, check.Equals, "grp-token")
}

func (s *handlerSuite) TestFetchIntermediateOutputs(c *check.C) {
	sibling := &airavata.Process{
		ProcessID:              "PROCESS_1",
		ExperimentID:           "EXP_1",
		ApplicationInterfaceID: "iface1",
		ComputeResourceID:      "hpc1",
		StorageResourceID:      "store1",
		GroupResourceProfileID: "grp1",
		UserName:               "alice",
		TaskDag:                "t-sub",
		Tasks: []airavata.Task{{
			TaskID: "t-sub", ParentProcessID: "PROCESS_1", TaskType: airavata.TaskTypeJobSubmission,
		}},
		ProcessOutputs: []airavata.OutputDataObject{
			{Name: "result", Type: airavata.DataTypeURI, Value: "out.txt"},
			{Name: "log", Type: airavata.DataTypeStdout},
		},
	}
	c.Assert(s.registry.CreateProcess(context.Background(), sibling), check.IsNil)
	s.registry.Jobs["PROCESS_1"] = []airavata.Job{{
		JobID: "job-1", TaskID: "t-sub", ProcessID: "PROCESS_1", WorkingDir: "/scratch/PROCESS_1",
	}}
	sink := s.bus.NewSink(eventbus.MessageTypeLaunchProcess)

	c.Assert(s.handler.FetchIntermediateOutputs(context.Background(), "EXP_1", "gw1", []string{"result"}), check.IsNil)

	msg := <-sink.Channel()
	var event eventbus.ProcessSubmitEvent
	c.Assert(msg.Decode(&event), check.IsNil)
	c.Check(event.ProcessID, check.Not(check.Equals), "PROCESS_1")

	fetch, err := s.registry.GetProcess(context.Background(), event.ProcessID)
	c.Assert(err, check.IsNil)
	c.Check(fetch.ResourceSchedule.StaticWorkingDir, check.Equals, "/scratch/PROCESS_1")
	c.Assert(fetch.Tasks, check.HasLen, 1)
	c.Check(fetch.Tasks[0].TaskType, check.Equals, airavata.TaskTypeOutputFetching)
	c.Check(fetch.Tasks[0].DataStaging.ProcessOutput.Name, check.Equals, "result")
	c.Check(strings.Contains(fetch.TaskDag, fetch.Tasks[0].TaskID), check.Equals, true)
}

func (s *handlerSuite) TestFetchUnknownOutputRejected(c *check.C) {
	c.Assert(s.registry.CreateProcess(context.Background(), &airavata.Process{
		ProcessID:    "PROCESS_1",
		ExperimentID: "EXP_1",
		TaskDag:      "t-sub",
		Tasks: []airavata.Task{{
			TaskID: "t-sub", TaskType: airavata.TaskTypeJobSubmission,
		}},
		ProcessOutputs: []airavata.OutputDataObject{{Name: "result", Type: airavata.DataTypeURI}},
	}), check.IsNil)
	s.registry.Jobs["PROCESS_1"] = []airavata.Job{{JobID: "job-1", TaskID: "t-sub", ProcessID: "PROCESS_1", WorkingDir: "/scratch/PROCESS_1"}}

	err := s.handler.FetchIntermediateOutputs(context.Background(), "EXP_1", "gw1", []string{"no-such-output"})
	c.Check(err, check.FitsTypeOf, &airavata.ValidationError{})
}
