// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package airavata

import "context"

// Registry is the narrow contract the orchestration core needs from
// the registry/catalog service. The registry is the single source of
// truth for experiment/process/task state; implementations must return
// an error wrapping ErrNotFound for missing records.
type Registry interface {
	// Experiments. The orchestrator mutates status only; the
	// experiment record itself is owned by the user-facing API.
	GetExperiment(ctx context.Context, experimentID string) (*Experiment, error)
	GetExperimentStatus(ctx context.Context, experimentID string) (ExperimentStatus, error)
	AddExperimentStatus(ctx context.Context, experimentID string, status ExperimentStatus) error
	UpdateExperimentOutputs(ctx context.Context, experimentID string, outputs []OutputDataObject) error

	// Processes and their tasks.
	CreateProcess(ctx context.Context, process *Process) error
	GetProcess(ctx context.Context, processID string) (*Process, error)
	UpdateProcess(ctx context.Context, process *Process) error
	GetProcessIDs(ctx context.Context, experimentID string) ([]string, error)
	GetProcessStatus(ctx context.Context, processID string) (ProcessStatus, error)
	AddProcessStatus(ctx context.Context, processID string, status ProcessStatus) error
	UpdateProcessOutputs(ctx context.Context, processID string, outputs []OutputDataObject) error
	AddTaskStatus(ctx context.Context, processID, taskID string, status TaskStatus) error

	// Jobs.
	AddJob(ctx context.Context, job *Job) error
	AddJobStatus(ctx context.Context, jobID, taskID string, status JobStatus) error
	GetJobs(ctx context.Context, processID string) ([]Job, error)

	// Error records.
	AddError(ctx context.Context, scope ErrorScope, id string, errModel ErrorModel) error

	// Application catalog.
	GetApplicationInterface(ctx context.Context, interfaceID string) (*ApplicationInterfaceDescription, error)
	GetApplicationDeployment(ctx context.Context, deploymentID string) (*ApplicationDeploymentDescription, error)
	ListApplicationDeployments(ctx context.Context, appModuleID string) ([]ApplicationDeploymentDescription, error)
	GetComputeResource(ctx context.Context, resourceID string) (*ComputeResourceDescription, error)
	GetStorageResource(ctx context.Context, resourceID string) (*StorageResourceDescription, error)

	// Resource profiles and preferences.
	GetGatewayResourceProfile(ctx context.Context, gatewayID string) (*GatewayResourceProfile, error)
	GetGatewayComputeResourcePreference(ctx context.Context, gatewayID, computeResourceID string) (*ComputeResourcePreference, error)
	GetGatewayStoragePreference(ctx context.Context, gatewayID, storageResourceID string) (*StoragePreference, error)
	GetGroupResourceProfile(ctx context.Context, groupResourceProfileID string) (*GroupResourceProfile, error)
	GetUserResourceProfile(ctx context.Context, userName, gatewayID string) (*UserResourceProfile, error)
	GetUserComputeResourcePreference(ctx context.Context, userName, gatewayID, computeResourceID string) (*UserComputeResourcePreference, error)
	GetUserStoragePreference(ctx context.Context, userName, gatewayID, storageResourceID string) (*UserStoragePreference, error)

	// Data products.
	GetDataProduct(ctx context.Context, productURI string) (*DataProduct, error)
	RegisterDataProduct(ctx context.Context, product *DataProduct) (string, error)

	// Parsing catalog.
	GetParser(ctx context.Context, parserID, gatewayID string) (*Parser, error)
	ListParsingTemplates(ctx context.Context, applicationInterfaceID, gatewayID string) ([]ParsingTemplate, error)

	// Gateway bootstrap records (migration tooling).
	ListGatewayIDs(ctx context.Context) ([]string, error)
	GetGatewayGroups(ctx context.Context, gatewayID string) (*GatewayGroups, error)
	SaveGatewayGroups(ctx context.Context, groups *GatewayGroups) error
}
