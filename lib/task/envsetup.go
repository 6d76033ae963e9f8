// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"time"

	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/lib/taskcontext"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// EnvSetup prepares the process working directory on the compute
// resource. It is the first task of a pre-execution chain, so it also
// moves the process into EXECUTING.
type EnvSetup struct {
	Agent Agent
}

func (t *EnvSetup) Type() airavata.TaskType { return airavata.TaskTypeEnvSetup }

func (t *EnvSetup) Run(ctx context.Context, tc *taskcontext.TaskContext) error {
	logger := ctxlog.FromContext(ctx)

	status := airavata.ProcessStatus{State: airavata.ProcessStateExecuting, TimeOfStateChange: time.Now().UTC()}
	if err := tc.Registry.AddProcessStatus(ctx, tc.Process.ProcessID, status); err != nil {
		logger.WithError(err).Warn("could not record process EXECUTING status")
	} else if msg, err := eventbus.NewMessage(eventbus.MessageTypeProcess, tc.GatewayID, eventbus.ProcessStatusChangeEvent{
		Identity: tc.Identity(),
		State:    airavata.ProcessStateExecuting,
	}); err == nil {
		if err := tc.Publisher.Publish(ctx, msg); err != nil {
			logger.WithError(err).Warn("could not publish process EXECUTING event")
		}
	}

	workingDir, err := tc.WorkingDir()
	if err != nil {
		return Fatalf(err, "could not resolve working directory for process %s", tc.Process.ProcessID)
	}
	auth, err := computeAuth(tc)
	if err != nil {
		return Fatalf(err, "could not resolve compute credentials for process %s", tc.Process.ProcessID)
	}
	logger.WithField("WorkingDir", workingDir).Info("creating working directory")
	if err := t.Agent.CreateDirectory(ctx, auth, workingDir); err != nil {
		return Retryablef(err, "could not create working directory %s on %s", workingDir, auth.HostName)
	}
	return nil
}

// computeAuth bundles the resolved login/credential/host for the
// process's compute resource.
func computeAuth(tc *taskcontext.TaskContext) (AuthInfo, error) {
	login, err := tc.LoginUserName()
	if err != nil {
		return AuthInfo{}, err
	}
	token, err := tc.CredentialToken()
	if err != nil {
		return AuthInfo{}, err
	}
	host := tc.Process.ComputeResourceID
	if tc.ComputeResource != nil && tc.ComputeResource.HostName != "" {
		host = tc.ComputeResource.HostName
	}
	return AuthInfo{HostName: host, LoginUserName: login, Token: token, GatewayID: tc.GatewayID}, nil
}

// storageAuth bundles the resolved login/credential/host for the
// gateway storage resource.
func storageAuth(tc *taskcontext.TaskContext) (AuthInfo, error) {
	login, err := tc.StorageLoginUserName()
	if err != nil {
		return AuthInfo{}, err
	}
	token, err := tc.StorageCredentialToken()
	if err != nil {
		return AuthInfo{}, err
	}
	host := tc.Process.StorageResourceID
	if tc.StorageResource != nil && tc.StorageResource.HostName != "" {
		host = tc.StorageResource.HostName
	}
	return AuthInfo{HostName: host, LoginUserName: login, Token: token, GatewayID: tc.GatewayID}, nil
}
