// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

// Package airavatatest provides test doubles for the registry contract
// so orchestration components can be exercised without a registry
// service.
package airavatatest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

// StubRegistry is an in-memory airavata.Registry. Seed the exported
// maps directly, or via the fixture helpers, before handing it to the
// component under test. All methods are safe for concurrent use.
type StubRegistry struct {
	Experiments         map[string]*airavata.Experiment
	Processes           map[string]*airavata.Process
	Jobs                map[string][]airavata.Job // keyed by process id
	Errors              map[string][]airavata.ErrorModel
	AppInterfaces       map[string]*airavata.ApplicationInterfaceDescription
	AppDeployments      map[string]*airavata.ApplicationDeploymentDescription
	ComputeResources    map[string]*airavata.ComputeResourceDescription
	StorageResources    map[string]*airavata.StorageResourceDescription
	GatewayProfiles     map[string]*airavata.GatewayResourceProfile
	GatewayComputePrefs map[string]*airavata.ComputeResourcePreference // gatewayID/resourceID
	GatewayStoragePrefs map[string]*airavata.StoragePreference         // gatewayID/resourceID
	GroupProfiles       map[string]*airavata.GroupResourceProfile
	UserProfiles        map[string]*airavata.UserResourceProfile           // userName/gatewayID
	UserComputePrefs    map[string]*airavata.UserComputeResourcePreference // userName/gatewayID/resourceID
	UserStoragePrefs    map[string]*airavata.UserStoragePreference         // userName/gatewayID/resourceID
	DataProducts        map[string]*airavata.DataProduct
	Parsers             map[string]*airavata.Parser
	Templates           []airavata.ParsingTemplate
	GatewayGroups       map[string]*airavata.GatewayGroups

	mtx          sync.Mutex
	processOrder []string
}

var _ airavata.Registry = (*StubRegistry)(nil)

// NewStubRegistry returns an empty StubRegistry with all maps
// initialized.
func NewStubRegistry() *StubRegistry {
	return &StubRegistry{
		Experiments:         map[string]*airavata.Experiment{},
		Processes:           map[string]*airavata.Process{},
		Jobs:                map[string][]airavata.Job{},
		Errors:              map[string][]airavata.ErrorModel{},
		AppInterfaces:       map[string]*airavata.ApplicationInterfaceDescription{},
		AppDeployments:      map[string]*airavata.ApplicationDeploymentDescription{},
		ComputeResources:    map[string]*airavata.ComputeResourceDescription{},
		StorageResources:    map[string]*airavata.StorageResourceDescription{},
		GatewayProfiles:     map[string]*airavata.GatewayResourceProfile{},
		GatewayComputePrefs: map[string]*airavata.ComputeResourcePreference{},
		GatewayStoragePrefs: map[string]*airavata.StoragePreference{},
		GroupProfiles:       map[string]*airavata.GroupResourceProfile{},
		UserProfiles:        map[string]*airavata.UserResourceProfile{},
		UserComputePrefs:    map[string]*airavata.UserComputeResourcePreference{},
		UserStoragePrefs:    map[string]*airavata.UserStoragePreference{},
		DataProducts:        map[string]*airavata.DataProduct{},
		Parsers:             map[string]*airavata.Parser{},
		GatewayGroups:       map[string]*airavata.GatewayGroups{},
	}
}

func notFound(kind, id string) error {
	return &airavata.NotFoundError{Kind: kind, ID: id}
}

func (r *StubRegistry) GetExperiment(ctx context.Context, experimentID string) (*airavata.Experiment, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	e, ok := r.Experiments[experimentID]
	if !ok {
		return nil, notFound("experiment", experimentID)
	}
	cp := *e
	return &cp, nil
}

func (r *StubRegistry) GetExperimentStatus(ctx context.Context, experimentID string) (airavata.ExperimentStatus, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	e, ok := r.Experiments[experimentID]
	if !ok {
		return airavata.ExperimentStatus{}, notFound("experiment", experimentID)
	}
	return e.LatestStatus(), nil
}

func (r *StubRegistry) AddExperimentStatus(ctx context.Context, experimentID string, status airavata.ExperimentStatus) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	e, ok := r.Experiments[experimentID]
	if !ok {
		return notFound("experiment", experimentID)
	}
	e.ExperimentStatus = append(e.ExperimentStatus, status)
	return nil
}

func (r *StubRegistry) UpdateExperimentOutputs(ctx context.Context, experimentID string, outputs []airavata.OutputDataObject) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	e, ok := r.Experiments[experimentID]
	if !ok {
		return notFound("experiment", experimentID)
	}
	e.ExperimentOutputs = outputs
	return nil
}

func (r *StubRegistry) CreateProcess(ctx context.Context, process *airavata.Process) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	cp := *process
	r.Processes[process.ProcessID] = &cp
	r.processOrder = append(r.processOrder, process.ProcessID)
	if e, ok := r.Experiments[process.ExperimentID]; ok {
		e.ProcessIDs = append(e.ProcessIDs, process.ProcessID)
	}
	return nil
}

func (r *StubRegistry) GetProcess(ctx context.Context, processID string) (*airavata.Process, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.Processes[processID]
	if !ok {
		return nil, notFound("process", processID)
	}
	cp := *p
	return &cp, nil
}

func (r *StubRegistry) UpdateProcess(ctx context.Context, process *airavata.Process) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, ok := r.Processes[process.ProcessID]; !ok {
		return notFound("process", process.ProcessID)
	}
	cp := *process
	r.Processes[process.ProcessID] = &cp
	return nil
}

func (r *StubRegistry) GetProcessIDs(ctx context.Context, experimentID string) ([]string, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var ids []string
	for _, id := range r.processOrder {
		if p := r.Processes[id]; p != nil && p.ExperimentID == experimentID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *StubRegistry) GetProcessStatus(ctx context.Context, processID string) (airavata.ProcessStatus, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.Processes[processID]
	if !ok {
		return airavata.ProcessStatus{}, notFound("process", processID)
	}
	return p.LatestStatus(), nil
}

func (r *StubRegistry) AddProcessStatus(ctx context.Context, processID string, status airavata.ProcessStatus) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.Processes[processID]
	if !ok {
		return notFound("process", processID)
	}
	p.ProcessStatuses = append(p.ProcessStatuses, status)
	return nil
}

func (r *StubRegistry) UpdateProcessOutputs(ctx context.Context, processID string, outputs []airavata.OutputDataObject) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.Processes[processID]
	if !ok {
		return notFound("process", processID)
	}
	p.ProcessOutputs = outputs
	return nil
}

func (r *StubRegistry) AddTaskStatus(ctx context.Context, processID, taskID string, status airavata.TaskStatus) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.Processes[processID]
	if !ok {
		return notFound("process", processID)
	}
	for i := range p.Tasks {
		if p.Tasks[i].TaskID == taskID {
			p.Tasks[i].TaskStatuses = append(p.Tasks[i].TaskStatuses, status)
			return nil
		}
	}
	return notFound("task", taskID)
}

func (r *StubRegistry) AddJob(ctx context.Context, job *airavata.Job) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.Jobs[job.ProcessID] = append(r.Jobs[job.ProcessID], *job)
	return nil
}

func (r *StubRegistry) AddJobStatus(ctx context.Context, jobID, taskID string, status airavata.JobStatus) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for processID, jobs := range r.Jobs {
		for i := range jobs {
			if jobs[i].JobID == jobID && jobs[i].TaskID == taskID {
				jobs[i].JobStatuses = append(jobs[i].JobStatuses, status)
				r.Jobs[processID] = jobs
				return nil
			}
		}
	}
	return notFound("job", jobID)
}

func (r *StubRegistry) GetJobs(ctx context.Context, processID string) ([]airavata.Job, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]airavata.Job(nil), r.Jobs[processID]...), nil
}

func (r *StubRegistry) AddError(ctx context.Context, scope airavata.ErrorScope, id string, errModel airavata.ErrorModel) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	key := string(scope) + "/" + id
	r.Errors[key] = append(r.Errors[key], errModel)
	return nil
}

func (r *StubRegistry) GetApplicationInterface(ctx context.Context, interfaceID string) (*airavata.ApplicationInterfaceDescription, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	d, ok := r.AppInterfaces[interfaceID]
	if !ok {
		return nil, notFound("application interface", interfaceID)
	}
	return d, nil
}

func (r *StubRegistry) GetApplicationDeployment(ctx context.Context, deploymentID string) (*airavata.ApplicationDeploymentDescription, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	d, ok := r.AppDeployments[deploymentID]
	if !ok {
		return nil, notFound("application deployment", deploymentID)
	}
	return d, nil
}

func (r *StubRegistry) ListApplicationDeployments(ctx context.Context, appModuleID string) ([]airavata.ApplicationDeploymentDescription, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var out []airavata.ApplicationDeploymentDescription
	for _, d := range r.AppDeployments {
		if d.AppModuleID == appModuleID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *StubRegistry) GetComputeResource(ctx context.Context, resourceID string) (*airavata.ComputeResourceDescription, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	d, ok := r.ComputeResources[resourceID]
	if !ok {
		return nil, notFound("compute resource", resourceID)
	}
	return d, nil
}

func (r *StubRegistry) GetStorageResource(ctx context.Context, resourceID string) (*airavata.StorageResourceDescription, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	d, ok := r.StorageResources[resourceID]
	if !ok {
		return nil, notFound("storage resource", resourceID)
	}
	return d, nil
}

func (r *StubRegistry) GetGatewayResourceProfile(ctx context.Context, gatewayID string) (*airavata.GatewayResourceProfile, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.GatewayProfiles[gatewayID]
	if !ok {
		return nil, notFound("gateway resource profile", gatewayID)
	}
	return p, nil
}

func (r *StubRegistry) GetGatewayComputeResourcePreference(ctx context.Context, gatewayID, computeResourceID string) (*airavata.ComputeResourcePreference, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.GatewayComputePrefs[gatewayID+"/"+computeResourceID]
	if !ok {
		return nil, notFound("gateway compute preference", gatewayID+"/"+computeResourceID)
	}
	return p, nil
}

func (r *StubRegistry) GetGatewayStoragePreference(ctx context.Context, gatewayID, storageResourceID string) (*airavata.StoragePreference, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.GatewayStoragePrefs[gatewayID+"/"+storageResourceID]
	if !ok {
		return nil, notFound("gateway storage preference", gatewayID+"/"+storageResourceID)
	}
	return p, nil
}

func (r *StubRegistry) GetGroupResourceProfile(ctx context.Context, groupResourceProfileID string) (*airavata.GroupResourceProfile, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.GroupProfiles[groupResourceProfileID]
	if !ok {
		return nil, notFound("group resource profile", groupResourceProfileID)
	}
	return p, nil
}

func (r *StubRegistry) GetUserResourceProfile(ctx context.Context, userName, gatewayID string) (*airavata.UserResourceProfile, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.UserProfiles[userName+"/"+gatewayID]
	if !ok {
		return nil, notFound("user resource profile", userName+"/"+gatewayID)
	}
	return p, nil
}

func (r *StubRegistry) GetUserComputeResourcePreference(ctx context.Context, userName, gatewayID, computeResourceID string) (*airavata.UserComputeResourcePreference, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.UserComputePrefs[userName+"/"+gatewayID+"/"+computeResourceID]
	if !ok {
		return nil, notFound("user compute preference", userName+"/"+gatewayID+"/"+computeResourceID)
	}
	return p, nil
}

func (r *StubRegistry) GetUserStoragePreference(ctx context.Context, userName, gatewayID, storageResourceID string) (*airavata.UserStoragePreference, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.UserStoragePrefs[userName+"/"+gatewayID+"/"+storageResourceID]
	if !ok {
		return nil, notFound("user storage preference", userName+"/"+gatewayID+"/"+storageResourceID)
	}
	return p, nil
}

func (r *StubRegistry) GetDataProduct(ctx context.Context, productURI string) (*airavata.DataProduct, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	d, ok := r.DataProducts[productURI]
	if !ok {
		return nil, notFound("data product", productURI)
	}
	return d, nil
}

func (r *StubRegistry) RegisterDataProduct(ctx context.Context, product *airavata.DataProduct) (string, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if product.ProductURI == "" {
		product.ProductURI = airavata.DataProductURIScheme + uuid.NewString()
	}
	cp := *product
	r.DataProducts[product.ProductURI] = &cp
	return product.ProductURI, nil
}

func (r *StubRegistry) GetParser(ctx context.Context, parserID, gatewayID string) (*airavata.Parser, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	p, ok := r.Parsers[parserID]
	if !ok {
		return nil, notFound("parser", parserID)
	}
	return p, nil
}

func (r *StubRegistry) ListParsingTemplates(ctx context.Context, applicationInterfaceID, gatewayID string) ([]airavata.ParsingTemplate, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var out []airavata.ParsingTemplate
	for _, t := range r.Templates {
		if t.ApplicationInterfaceID == applicationInterfaceID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *StubRegistry) ListGatewayIDs(ctx context.Context) ([]string, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var ids []string
	for id := range r.GatewayProfiles {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *StubRegistry) GetGatewayGroups(ctx context.Context, gatewayID string) (*airavata.GatewayGroups, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	g, ok := r.GatewayGroups[gatewayID]
	if !ok {
		return nil, notFound("gateway groups", gatewayID)
	}
	return g, nil
}

func (r *StubRegistry) SaveGatewayGroups(ctx context.Context, groups *airavata.GatewayGroups) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	cp := *groups
	r.GatewayGroups[groups.GatewayID] = &cp
	return nil
}

// ErrorsFor returns the error models recorded for the given scope and
// record id.
func (r *StubRegistry) ErrorsFor(scope airavata.ErrorScope, id string) []airavata.ErrorModel {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]airavata.ErrorModel(nil), r.Errors[string(scope)+"/"+id]...)
}
