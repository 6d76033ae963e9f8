// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

// Package taskcontext builds the per-task configuration bundle a task
// consumes: the compute and storage resources, credentials, protocols
// and scheduling parameters that apply to one execution attempt.
//
// Every derived value follows the same precedence: user-level
// preference (when the process opted in), then process-level
// override, then gateway/group default. The precedence lives in
// resolve(); each getter only lists its candidate layers in order.
package taskcontext

import (
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

// resolve returns the first non-empty candidate value.
func resolve(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// TaskContext is the resolved configuration for one task execution
// attempt. Built fresh per task by Builder; never persisted; owned
// exclusively by the executing task.
type TaskContext struct {
	TaskID     string
	GatewayID  string
	Process    *airavata.Process
	Experiment *airavata.Experiment

	GatewayResourceProfile   *airavata.GatewayResourceProfile
	GatewayComputePreference *airavata.ComputeResourcePreference
	GatewayStoragePreference *airavata.StoragePreference
	GroupResourceProfile     *airavata.GroupResourceProfile
	GroupComputePreference   *airavata.GroupComputeResourcePreference
	UserResourceProfile      *airavata.UserResourceProfile
	UserComputePreference    *airavata.UserComputeResourcePreference
	UserStoragePreference    *airavata.UserStoragePreference

	ComputeResource       *airavata.ComputeResourceDescription
	StorageResource       *airavata.StorageResourceDescription
	ApplicationInterface  *airavata.ApplicationInterfaceDescription
	ApplicationDeployment *airavata.ApplicationDeploymentDescription

	Registry  airavata.Registry
	Publisher eventbus.Publisher

	// Now is replaceable for reservation-window tests.
	Now func() time.Time
}

func (tc *TaskContext) now() time.Time {
	if tc.Now != nil {
		return tc.Now()
	}
	return time.Now()
}

// userPrefActive reports whether user-level compute preferences apply
// to this process.
func (tc *TaskContext) userPrefActive() bool {
	return tc.Process.UseUserCRPref && tc.UserComputePreference != nil
}

func (tc *TaskContext) userComputeField(get func(*airavata.UserComputeResourcePreference) string) string {
	if !tc.userPrefActive() {
		return ""
	}
	return get(tc.UserComputePreference)
}

func (tc *TaskContext) groupComputeField(get func(*airavata.GroupComputeResourcePreference) string) string {
	if tc.GroupComputePreference == nil {
		return ""
	}
	return get(tc.GroupComputePreference)
}

// Identity returns the event identity bundle for this task's process.
func (tc *TaskContext) Identity() eventbus.ProcessIdentity {
	return eventbus.ProcessIdentity{
		ProcessID:    tc.Process.ProcessID,
		ExperimentID: tc.Process.ExperimentID,
		GatewayID:    tc.GatewayID,
	}
}

// ScratchLocation resolves the scratch filesystem root on the compute
// resource.
func (tc *TaskContext) ScratchLocation() (string, error) {
	loc := resolve(
		tc.userComputeField(func(p *airavata.UserComputeResourcePreference) string { return p.ScratchLocation }),
		tc.Process.ResourceSchedule.OverrideScratchLocation,
		tc.groupComputeField(func(p *airavata.GroupComputeResourcePreference) string { return p.ScratchLocation }),
		tc.GatewayComputePreference.ScratchLocation,
	)
	if loc == "" {
		return "", &airavata.ConfigError{Field: "scratch location", Detail: "not set at any preference level for " + tc.Process.ComputeResourceID}
	}
	return loc, nil
}

// WorkingDir resolves the per-process working directory on the
// compute resource: the static working dir override if set, otherwise
// a process-id subdirectory of the scratch location.
func (tc *TaskContext) WorkingDir() (string, error) {
	if wd := tc.Process.ResourceSchedule.StaticWorkingDir; wd != "" {
		return wd, nil
	}
	scratch, err := tc.ScratchLocation()
	if err != nil {
		return "", err
	}
	return path.Join(scratch, tc.Process.ProcessID), nil
}

// QueueName resolves the batch queue, falling back to the compute
// resource's default queue when no layer names one.
func (tc *TaskContext) QueueName() string {
	queue := resolve(
		tc.userComputeField(func(p *airavata.UserComputeResourcePreference) string { return p.PreferredBatchQueue }),
		tc.Process.ResourceSchedule.QueueName,
		tc.GatewayComputePreference.PreferredBatchQueue,
	)
	if queue == "" && tc.ComputeResource != nil {
		if q, ok := tc.ComputeResource.DefaultQueue(); ok {
			queue = q.QueueName
		}
	}
	return queue
}

// QueueSpecificMacros returns the scheduler macros attached to the
// resolved queue, if any.
func (tc *TaskContext) QueueSpecificMacros() string {
	if tc.ComputeResource == nil {
		return ""
	}
	if q, ok := tc.ComputeResource.QueueByName(tc.QueueName()); ok {
		return q.QueueSpecificMacros
	}
	return ""
}

// LoginUserName resolves the account name used on the compute
// resource.
func (tc *TaskContext) LoginUserName() (string, error) {
	login := resolve(
		tc.userComputeField(func(p *airavata.UserComputeResourcePreference) string { return p.LoginUserName }),
		tc.Process.ResourceSchedule.OverrideLoginUserName,
		tc.groupComputeField(func(p *airavata.GroupComputeResourcePreference) string { return p.LoginUserName }),
		tc.GatewayComputePreference.LoginUserName,
	)
	if login == "" {
		return "", &airavata.ConfigError{Field: "login user name", Detail: "not set at any preference level for " + tc.Process.ComputeResourceID}
	}
	return login, nil
}

// CredentialToken resolves the credential store token used to reach
// the compute resource.
func (tc *TaskContext) CredentialToken() (string, error) {
	var groupDefault, gatewayDefault string
	if tc.GroupResourceProfile != nil {
		groupDefault = tc.GroupResourceProfile.DefaultCredentialStoreToken
	}
	if tc.GatewayResourceProfile != nil {
		gatewayDefault = tc.GatewayResourceProfile.CredentialStoreToken
	}
	token := resolve(
		tc.userComputeField(func(p *airavata.UserComputeResourcePreference) string { return p.ResourceSpecificCredentialStoreToken }),
		tc.groupComputeField(func(p *airavata.GroupComputeResourcePreference) string { return p.ResourceSpecificCredentialStoreToken }),
		groupDefault,
		tc.GatewayComputePreference.ResourceSpecificCredentialStoreToken,
		gatewayDefault,
	)
	if token == "" {
		return "", &airavata.ConfigError{Field: "credential token", Detail: "no usable token for compute resource " + tc.Process.ComputeResourceID}
	}
	return token, nil
}

// StorageCredentialToken resolves the credential store token used to
// reach the gateway storage resource.
func (tc *TaskContext) StorageCredentialToken() (string, error) {
	var userToken, gatewayDefault string
	if tc.Process.UseUserCRPref && tc.UserStoragePreference != nil {
		userToken = tc.UserStoragePreference.ResourceSpecificCredentialStoreToken
	}
	if tc.GatewayResourceProfile != nil {
		gatewayDefault = tc.GatewayResourceProfile.CredentialStoreToken
	}
	token := resolve(
		userToken,
		tc.GatewayStoragePreference.ResourceSpecificCredentialStoreToken,
		gatewayDefault,
	)
	if token == "" {
		return "", &airavata.ConfigError{Field: "storage credential token", Detail: "no usable token for storage resource " + tc.Process.StorageResourceID}
	}
	return token, nil
}

// StorageLoginUserName resolves the account name on the storage
// resource.
func (tc *TaskContext) StorageLoginUserName() (string, error) {
	var userLogin string
	if tc.Process.UseUserCRPref && tc.UserStoragePreference != nil {
		userLogin = tc.UserStoragePreference.LoginUserName
	}
	login := resolve(userLogin, tc.GatewayStoragePreference.LoginUserName)
	if login == "" {
		return "", &airavata.ConfigError{Field: "storage login user name", Detail: "not set for storage resource " + tc.Process.StorageResourceID}
	}
	return login, nil
}

// StorageFileSystemRootLocation resolves the root path on the gateway
// storage resource.
func (tc *TaskContext) StorageFileSystemRootLocation() (string, error) {
	var userRoot string
	if tc.Process.UseUserCRPref && tc.UserStoragePreference != nil {
		userRoot = tc.UserStoragePreference.FileSystemRootLocation
	}
	root := resolve(userRoot, tc.GatewayStoragePreference.FileSystemRootLocation)
	if root == "" {
		return "", &airavata.ConfigError{Field: "storage root location", Detail: "not set for storage resource " + tc.Process.StorageResourceID}
	}
	return root, nil
}

// AllocationProjectNumber resolves the charge allocation, if any.
func (tc *TaskContext) AllocationProjectNumber() string {
	return resolve(
		tc.userComputeField(func(p *airavata.UserComputeResourcePreference) string { return p.AllocationProjectNumber }),
		tc.Process.ResourceSchedule.OverrideAllocationProjectNumber,
		tc.groupComputeField(func(p *airavata.GroupComputeResourcePreference) string { return p.AllocationProjectNumber }),
		tc.GatewayComputePreference.AllocationProjectNumber,
	)
}

// QualityOfService resolves the scheduler QoS string, if any.
func (tc *TaskContext) QualityOfService() string {
	return resolve(
		tc.userComputeField(func(p *airavata.UserComputeResourcePreference) string { return p.QualityOfService }),
		tc.groupComputeField(func(p *airavata.GroupComputeResourcePreference) string { return p.QualityOfService }),
	)
}

// ReservationID resolves an applicable scheduler reservation. A
// reservation is a time-bounded lease: it only applies while "now"
// falls within [start, end). Returns "" when no active reservation
// covers the resolved queue.
func (tc *TaskContext) ReservationID() string {
	now := tc.now()
	if tc.userPrefActive() && tc.UserComputePreference.Reservation != "" {
		p := tc.UserComputePreference
		window := airavata.ComputeResourceReservation{
			ReservationID: p.Reservation,
			StartTime:     p.ReservationStartTime,
			EndTime:       p.ReservationEndTime,
		}
		if window.Active(now) {
			return p.Reservation
		}
		return ""
	}
	if tc.GroupComputePreference != nil {
		if r, ok := tc.GroupComputePreference.ActiveReservationForQueue(tc.QueueName(), now); ok {
			return r.ReservationID
		}
	}
	return ""
}

// JobSubmissionProtocol resolves the protocol used to submit jobs,
// preferring the gateway preference and falling back to the compute
// resource's highest-priority interface.
func (tc *TaskContext) JobSubmissionProtocol() (airavata.JobSubmissionProtocol, error) {
	if p := tc.GatewayComputePreference.PreferredJobSubmissionProtocol; p != "" {
		return p, nil
	}
	iface, err := tc.selectJobSubmissionInterface("")
	if err != nil {
		return "", err
	}
	return iface.JobSubmissionProtocol, nil
}

// DataMovementProtocol resolves the protocol used to move data to and
// from the compute resource.
func (tc *TaskContext) DataMovementProtocol() (airavata.DataMovementProtocol, error) {
	if p := tc.GatewayComputePreference.PreferredDataMovementProtocol; p != "" {
		return p, nil
	}
	if tc.ComputeResource == nil || len(tc.ComputeResource.DataMovementInterfaces) == 0 {
		return "", &airavata.ConfigError{Field: "data movement protocol", Detail: "compute resource " + tc.Process.ComputeResourceID + " has no data movement interfaces"}
	}
	ifaces := append([]airavata.DataMovementInterface(nil), tc.ComputeResource.DataMovementInterfaces...)
	sort.SliceStable(ifaces, func(i, j int) bool { return ifaces[i].PriorityOrder < ifaces[j].PriorityOrder })
	return ifaces[0].DataMovementProtocol, nil
}

// PreferredJobSubmissionInterface selects the job submission
// interface to use: filter the compute resource's interfaces to the
// preferred protocol, sort ascending by priority order, take the
// first. Fails when the resource has no interfaces at all, or none
// matching the preferred protocol.
func (tc *TaskContext) PreferredJobSubmissionInterface() (airavata.JobSubmissionInterface, error) {
	return tc.selectJobSubmissionInterface(tc.GatewayComputePreference.PreferredJobSubmissionProtocol)
}

func (tc *TaskContext) selectJobSubmissionInterface(protocol airavata.JobSubmissionProtocol) (airavata.JobSubmissionInterface, error) {
	if tc.ComputeResource == nil || len(tc.ComputeResource.JobSubmissionInterfaces) == 0 {
		return airavata.JobSubmissionInterface{}, &airavata.ConfigError{
			Field:  "job submission interface",
			Detail: "compute resource " + tc.Process.ComputeResourceID + " has no job submission interfaces",
		}
	}
	var matching []airavata.JobSubmissionInterface
	for _, iface := range tc.ComputeResource.JobSubmissionInterfaces {
		if protocol == "" || iface.JobSubmissionProtocol == protocol {
			matching = append(matching, iface)
		}
	}
	if len(matching) == 0 {
		return airavata.JobSubmissionInterface{}, &airavata.ConfigError{
			Field:  "job submission interface",
			Detail: fmt.Sprintf("compute resource %s has no interface for protocol %s", tc.Process.ComputeResourceID, protocol),
		}
	}
	sort.SliceStable(matching, func(i, j int) bool { return matching[i].PriorityOrder < matching[j].PriorityOrder })
	return matching[0], nil
}

// StdoutLocation returns the declared standard-output location, or
// the default <workingDir>/<applicationName>.stdout when the
// application interface does not declare one.
func (tc *TaskContext) StdoutLocation() (string, error) {
	return tc.streamLocation(airavata.DataTypeStdout, ".stdout")
}

// StderrLocation returns the declared standard-error location, or the
// default <workingDir>/<applicationName>.stderr.
func (tc *TaskContext) StderrLocation() (string, error) {
	return tc.streamLocation(airavata.DataTypeStderr, ".stderr")
}

func (tc *TaskContext) streamLocation(dt airavata.DataType, suffix string) (string, error) {
	if tc.ApplicationInterface != nil {
		for _, out := range tc.ApplicationInterface.ApplicationOutputs {
			if out.Type == dt && out.Value != "" {
				return out.Value, nil
			}
		}
	}
	wd, err := tc.WorkingDir()
	if err != nil {
		return "", err
	}
	appName := "application"
	if tc.ApplicationInterface != nil && tc.ApplicationInterface.ApplicationName != "" {
		appName = tc.ApplicationInterface.ApplicationName
	}
	return path.Join(wd, appName+suffix), nil
}
