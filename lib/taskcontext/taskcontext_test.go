// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package taskcontext

import (
	"time"

	check "gopkg.in/check.v1"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

var _ = check.Suite(&resolveSuite{})

type resolveSuite struct{}

// fullTC returns a TaskContext with every preference layer populated
// with a distinct value, so precedence tests can knock layers out one
// by one.
func fullTC() *TaskContext {
	return &TaskContext{
		TaskID:    "TASK_1",
		GatewayID: "gw1",
		Process: &airavata.Process{
			ProcessID:         "PROCESS_1",
			ExperimentID:      "EXP_1",
			ComputeResourceID: "hpc1",
			StorageResourceID: "store1",
			UseUserCRPref:     true,
			ResourceSchedule: airavata.ComputationalResourceScheduling{
				QueueName:                       "sched-queue",
				OverrideScratchLocation:         "/override/scratch",
				OverrideLoginUserName:           "override-user",
				OverrideAllocationProjectNumber: "override-alloc",
			},
		},
		GatewayResourceProfile: &airavata.GatewayResourceProfile{
			GatewayID:            "gw1",
			CredentialStoreToken: "gateway-profile-token",
		},
		GatewayComputePreference: &airavata.ComputeResourcePreference{
			ComputeResourceID:                    "hpc1",
			LoginUserName:                        "gateway-user",
			ScratchLocation:                      "/gateway/scratch",
			AllocationProjectNumber:              "gateway-alloc",
			PreferredBatchQueue:                  "gateway-queue",
			ResourceSpecificCredentialStoreToken: "gateway-pref-token",
		},
		GatewayStoragePreference: &airavata.StoragePreference{
			StorageResourceID:      "store1",
			LoginUserName:          "storage-user",
			FileSystemRootLocation: "/gw/store",
		},
		GroupResourceProfile: &airavata.GroupResourceProfile{
			GroupResourceProfileID:      "grp1",
			DefaultCredentialStoreToken: "group-default-token",
		},
		GroupComputePreference: &airavata.GroupComputeResourcePreference{
			ComputeResourceID:                    "hpc1",
			LoginUserName:                        "group-user",
			ScratchLocation:                      "/group/scratch",
			AllocationProjectNumber:              "group-alloc",
			ResourceSpecificCredentialStoreToken: "group-pref-token",
		},
		UserComputePreference: &airavata.UserComputeResourcePreference{
			ComputeResourceID:       "hpc1",
			LoginUserName:           "user-user",
			ScratchLocation:         "/user/scratch",
			AllocationProjectNumber: "user-alloc",
			PreferredBatchQueue:     "user-queue",
		},
		ComputeResource: &airavata.ComputeResourceDescription{
			ComputeResourceID: "hpc1",
			HostName:          "hpc1.example.edu",
			BatchQueues: []airavata.BatchQueue{
				{QueueName: "default-queue", IsDefaultQueue: true, QueueSpecificMacros: "#SBATCH --constraint=knl"},
				{QueueName: "gateway-queue"},
			},
		},
	}
}

func (s *resolveSuite) TestScratchLocationPrecedence(c *check.C) {
	tc := fullTC()
	for _, trial := range []struct {
		drop func()
		want string
	}{
		{func() {}, "/user/scratch"},
		{func() { tc.UserComputePreference = nil }, "/override/scratch"},
		{func() { tc.Process.ResourceSchedule.OverrideScratchLocation = "" }, "/group/scratch"},
		{func() { tc.GroupComputePreference = nil }, "/gateway/scratch"},
	} {
		trial.drop()
		loc, err := tc.ScratchLocation()
		c.Assert(err, check.IsNil)
		c.Check(loc, check.Equals, trial.want)
	}
	tc.GatewayComputePreference.ScratchLocation = ""
	_, err := tc.ScratchLocation()
	c.Check(err, check.FitsTypeOf, &airavata.ConfigError{})
}

func (s *resolveSuite) TestUserPreferenceRequiresOptIn(c *check.C) {
	tc := fullTC()
	tc.Process.UseUserCRPref = false
	loc, err := tc.ScratchLocation()
	c.Assert(err, check.IsNil)
	c.Check(loc, check.Equals, "/override/scratch")
}

func (s *resolveSuite) TestLoginUserNamePrecedence(c *check.C) {
	tc := fullTC()
	for _, trial := range []struct {
		drop func()
		want string
	}{
		{func() {}, "user-user"},
		{func() { tc.UserComputePreference.LoginUserName = "" }, "override-user"},
		{func() { tc.Process.ResourceSchedule.OverrideLoginUserName = "" }, "group-user"},
		{func() { tc.GroupComputePreference.LoginUserName = "" }, "gateway-user"},
	} {
		trial.drop()
		login, err := tc.LoginUserName()
		c.Assert(err, check.IsNil)
		c.Check(login, check.Equals, trial.want)
	}
}

func (s *resolveSuite) TestCredentialTokenPrecedence(c *check.C) {
	tc := fullTC()
	tc.UserComputePreference.ResourceSpecificCredentialStoreToken = "user-token"
	for _, trial := range []struct {
		drop func()
		want string
	}{
		{func() {}, "user-token"},
		{func() { tc.UserComputePreference.ResourceSpecificCredentialStoreToken = "" }, "group-pref-token"},
		{func() { tc.GroupComputePreference.ResourceSpecificCredentialStoreToken = "" }, "group-default-token"},
		{func() { tc.GroupResourceProfile.DefaultCredentialStoreToken = "" }, "gateway-pref-token"},
		{func() { tc.GatewayComputePreference.ResourceSpecificCredentialStoreToken = "" }, "gateway-profile-token"},
	} {
		trial.drop()
		token, err := tc.CredentialToken()
		c.Assert(err, check.IsNil)
		c.Check(token, check.Equals, trial.want)
	}
	tc.GatewayResourceProfile.CredentialStoreToken = ""
	_, err := tc.CredentialToken()
	c.Check(err, check.FitsTypeOf, &airavata.ConfigError{})
}

func (s *resolveSuite) TestQueueNameFallsBackToDefaultQueue(c *check.C) {
	tc := fullTC()
	c.Check(tc.QueueName(), check.Equals, "user-queue")
	tc.UserComputePreference.PreferredBatchQueue = ""
	c.Check(tc.QueueName(), check.Equals, "sched-queue")
	tc.Process.ResourceSchedule.QueueName = ""
	c.Check(tc.QueueName(), check.Equals, "gateway-queue")
	tc.GatewayComputePreference.PreferredBatchQueue = ""
	c.Check(tc.QueueName(), check.Equals, "default-queue")
	c.Check(tc.QueueSpecificMacros(), check.Equals, "#SBATCH --constraint=knl")
}

func (s *resolveSuite) TestWorkingDir(c *check.C) {
	tc := fullTC()
	wd, err := tc.WorkingDir()
	c.Assert(err, check.IsNil)
	c.Check(wd, check.Equals, "/user/scratch/PROCESS_1")

	tc.Process.ResourceSchedule.StaticWorkingDir = "/existing/workdir"
	wd, err = tc.WorkingDir()
	c.Assert(err, check.IsNil)
	c.Check(wd, check.Equals, "/existing/workdir")
}

func (s *resolveSuite) TestReservationWindow(c *check.C) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	tc := fullTC()
	tc.UserComputePreference.Reservation = "resv-42"
	tc.UserComputePreference.ReservationStartTime = start
	tc.UserComputePreference.ReservationEndTime = end

	for _, trial := range []struct {
		now  time.Time
		want string
	}{
		{start.Add(-time.Second), ""},
		{start, "resv-42"}, // start is inclusive
		{start.Add(time.Hour), "resv-42"},
		{end.Add(-time.Second), "resv-42"},
		{end, ""}, // end is exclusive
		{end.Add(time.Second), ""},
	} {
		tc.Now = func() time.Time { return trial.now }
		c.Check(tc.ReservationID(), check.Equals, trial.want, check.Commentf("now=%s", trial.now))
	}
}

func (s *resolveSuite) TestGroupReservationMatchesQueue(c *check.C) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tc := fullTC()
	tc.Process.UseUserCRPref = false
	tc.GroupComputePreference.Reservations = []airavata.ComputeResourceReservation{{
		ReservationID: "group-resv",
		QueueNames:    []string{"sched-queue"},
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
	}}
	tc.Now = func() time.Time { return start.Add(time.Minute) }
	c.Check(tc.ReservationID(), check.Equals, "group-resv")

	// Reservation names a different queue than the resolved one.
	tc.GroupComputePreference.Reservations[0].QueueNames = []string{"other-queue"}
	c.Check(tc.ReservationID(), check.Equals, "")
}

func (s *resolveSuite) TestJobSubmissionInterfaceSelection(c *check.C) {
	tc := fullTC()
	tc.GatewayComputePreference.PreferredJobSubmissionProtocol = airavata.JobSubmissionProtocolSSH
	tc.ComputeResource.JobSubmissionInterfaces = []airavata.JobSubmissionInterface{
		{JobSubmissionInterfaceID: "local-0", JobSubmissionProtocol: airavata.JobSubmissionProtocolLocal, PriorityOrder: 0},
		{JobSubmissionInterfaceID: "ssh-2", JobSubmissionProtocol: airavata.JobSubmissionProtocolSSH, PriorityOrder: 2},
		{JobSubmissionInterfaceID: "ssh-1", JobSubmissionProtocol: airavata.JobSubmissionProtocolSSH, PriorityOrder: 1},
	}
	iface, err := tc.PreferredJobSubmissionInterface()
	c.Assert(err, check.IsNil)
	c.Check(iface.JobSubmissionInterfaceID, check.Equals, "ssh-1")

	tc.GatewayComputePreference.PreferredJobSubmissionProtocol = airavata.JobSubmissionProtocolCloud
	_, err = tc.PreferredJobSubmissionInterface()
	c.Check(err, check.FitsTypeOf, &airavata.ConfigError{})

	tc.ComputeResource.JobSubmissionInterfaces = nil
	_, err = tc.PreferredJobSubmissionInterface()
	c.Check(err, check.FitsTypeOf, &airavata.ConfigError{})
}

func (s *resolveSuite) TestStreamLocationDefaults(c *check.C) {
	tc := fullTC()
	tc.ApplicationInterface = &airavata.ApplicationInterfaceDescription{
		ApplicationName: "gaussian",
	}
	stdout, err := tc.StdoutLocation()
	c.Assert(err, check.IsNil)
	c.Check(stdout, check.Equals, "/user/scratch/PROCESS_1/gaussian.stdout")
	stderr, err := tc.StderrLocation()
	c.Assert(err, check.IsNil)
	c.Check(stderr, check.Equals, "/user/scratch/PROCESS_1/gaussian.stderr")

	tc.ApplicationInterface.ApplicationOutputs = []airavata.OutputDataObject{
		{Name: "stdout", Type: airavata.DataTypeStdout, Value: "/custom/out.log"},
	}
	stdout, err = tc.StdoutLocation()
	c.Assert(err, check.IsNil)
	c.Check(stdout, check.Equals, "/custom/out.log")
}

func (s *resolveSuite) TestAllocationPrecedence(c *check.C) {
	tc := fullTC()
	c.Check(tc.AllocationProjectNumber(), check.Equals, "user-alloc")
	tc.UserComputePreference.AllocationProjectNumber = ""
	c.Check(tc.AllocationProjectNumber(), check.Equals, "override-alloc")
	tc.Process.ResourceSchedule.OverrideAllocationProjectNumber = ""
	c.Check(tc.AllocationProjectNumber(), check.Equals, "group-alloc")
	tc.GroupComputePreference.AllocationProjectNumber = ""
	c.Check(tc.AllocationProjectNumber(), check.Equals, "gateway-alloc")
}
