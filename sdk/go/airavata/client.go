// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package airavata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru"
)

// Client talks to the registry REST service. Immutable application
// catalog records (interfaces, deployments, resource descriptions) are
// cached in an LRU so task-context resolution does not hammer the
// registry once per task.
type Client struct {
	// APIHost is the host:port of the registry service.
	APIHost string

	// AuthToken is sent as a bearer token on every request.
	AuthToken string

	// Scheme is http or https; default https.
	Scheme string

	// Timeout for a single request including retries.
	Timeout time.Duration

	httpClient *retryablehttp.Client
	descCache  *lru.TwoQueueCache
}

const descCacheSize = 512

// NewClient returns a Client for the given registry host.
func NewClient(apiHost, authToken string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	cache, _ := lru.New2Q(descCacheSize)
	return &Client{
		APIHost:    apiHost,
		AuthToken:  authToken,
		Scheme:     "https",
		Timeout:    time.Minute,
		httpClient: rc,
		descCache:  cache,
	}
}

var _ Registry = (*Client)(nil)

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body, out interface{}) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: c.APIHost, Path: path}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Kind: path, ID: u.RawQuery}
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s (%q)", method, path, resp.Status, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.doRequest(ctx, http.MethodGet, path, params, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.doRequest(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) put(ctx context.Context, path string, body interface{}) error {
	return c.doRequest(ctx, http.MethodPut, path, nil, body, nil)
}

// getCached is get with LRU read-through, for records that never
// change once registered (app catalog descriptions).
func (c *Client) getCached(ctx context.Context, path string, out interface{}) error {
	if cached, ok := c.descCache.Get(path); ok {
		return json.Unmarshal(cached.([]byte), out)
	}
	if err := c.get(ctx, path, nil, out); err != nil {
		return err
	}
	if buf, err := json.Marshal(out); err == nil {
		c.descCache.Add(path, buf)
	}
	return nil
}

func (c *Client) GetExperiment(ctx context.Context, experimentID string) (*Experiment, error) {
	var exp Experiment
	err := c.get(ctx, "/api/v1/experiments/"+experimentID, nil, &exp)
	return &exp, err
}

func (c *Client) GetExperimentStatus(ctx context.Context, experimentID string) (ExperimentStatus, error) {
	var st ExperimentStatus
	err := c.get(ctx, "/api/v1/experiments/"+experimentID+"/status", nil, &st)
	return st, err
}

func (c *Client) AddExperimentStatus(ctx context.Context, experimentID string, status ExperimentStatus) error {
	return c.post(ctx, "/api/v1/experiments/"+experimentID+"/statuses", status, nil)
}

func (c *Client) UpdateExperimentOutputs(ctx context.Context, experimentID string, outputs []OutputDataObject) error {
	return c.put(ctx, "/api/v1/experiments/"+experimentID+"/outputs", outputs)
}

func (c *Client) CreateProcess(ctx context.Context, process *Process) error {
	return c.post(ctx, "/api/v1/processes", process, process)
}

func (c *Client) GetProcess(ctx context.Context, processID string) (*Process, error) {
	var p Process
	err := c.get(ctx, "/api/v1/processes/"+processID, nil, &p)
	return &p, err
}

func (c *Client) UpdateProcess(ctx context.Context, process *Process) error {
	return c.put(ctx, "/api/v1/processes/"+process.ProcessID, process)
}

func (c *Client) GetProcessIDs(ctx context.Context, experimentID string) ([]string, error) {
	var ids []string
	err := c.get(ctx, "/api/v1/experiments/"+experimentID+"/processes", nil, &ids)
	return ids, err
}

func (c *Client) GetProcessStatus(ctx context.Context, processID string) (ProcessStatus, error) {
	var st ProcessStatus
	err := c.get(ctx, "/api/v1/processes/"+processID+"/status", nil, &st)
	return st, err
}

func (c *Client) AddProcessStatus(ctx context.Context, processID string, status ProcessStatus) error {
	return c.post(ctx, "/api/v1/processes/"+processID+"/statuses", status, nil)
}

func (c *Client) UpdateProcessOutputs(ctx context.Context, processID string, outputs []OutputDataObject) error {
	return c.put(ctx, "/api/v1/processes/"+processID+"/outputs", outputs)
}

func (c *Client) AddTaskStatus(ctx context.Context, processID, taskID string, status TaskStatus) error {
	return c.post(ctx, "/api/v1/processes/"+processID+"/tasks/"+taskID+"/statuses", status, nil)
}

func (c *Client) AddJob(ctx context.Context, job *Job) error {
	return c.post(ctx, "/api/v1/jobs", job, nil)
}

func (c *Client) AddJobStatus(ctx context.Context, jobID, taskID string, status JobStatus) error {
	return c.post(ctx, "/api/v1/jobs/"+jobID+"/statuses", map[string]interface{}{
		"task_id": taskID,
		"status":  status,
	}, nil)
}

func (c *Client) GetJobs(ctx context.Context, processID string) ([]Job, error) {
	var jobs []Job
	err := c.get(ctx, "/api/v1/processes/"+processID+"/jobs", nil, &jobs)
	return jobs, err
}

func (c *Client) AddError(ctx context.Context, scope ErrorScope, id string, errModel ErrorModel) error {
	return c.post(ctx, "/api/v1/errors", map[string]interface{}{
		"scope": scope,
		"id":    id,
		"error": errModel,
	}, nil)
}

func (c *Client) GetApplicationInterface(ctx context.Context, interfaceID string) (*ApplicationInterfaceDescription, error) {
	var d ApplicationInterfaceDescription
	err := c.getCached(ctx, "/api/v1/appcatalog/interfaces/"+interfaceID, &d)
	return &d, err
}

func (c *Client) GetApplicationDeployment(ctx context.Context, deploymentID string) (*ApplicationDeploymentDescription, error) {
	var d ApplicationDeploymentDescription
	err := c.getCached(ctx, "/api/v1/appcatalog/deployments/"+deploymentID, &d)
	return &d, err
}

func (c *Client) ListApplicationDeployments(ctx context.Context, appModuleID string) ([]ApplicationDeploymentDescription, error) {
	var dd []ApplicationDeploymentDescription
	err := c.get(ctx, "/api/v1/appcatalog/deployments", url.Values{"app_module_id": {appModuleID}}, &dd)
	return dd, err
}

func (c *Client) GetComputeResource(ctx context.Context, resourceID string) (*ComputeResourceDescription, error) {
	var d ComputeResourceDescription
	err := c.getCached(ctx, "/api/v1/appcatalog/compute-resources/"+resourceID, &d)
	return &d, err
}

func (c *Client) GetStorageResource(ctx context.Context, resourceID string) (*StorageResourceDescription, error) {
	var d StorageResourceDescription
	err := c.getCached(ctx, "/api/v1/appcatalog/storage-resources/"+resourceID, &d)
	return &d, err
}

func (c *Client) GetGatewayResourceProfile(ctx context.Context, gatewayID string) (*GatewayResourceProfile, error) {
	var p GatewayResourceProfile
	err := c.get(ctx, "/api/v1/gateways/"+gatewayID+"/resource-profile", nil, &p)
	return &p, err
}

func (c *Client) GetGatewayComputeResourcePreference(ctx context.Context, gatewayID, computeResourceID string) (*ComputeResourcePreference, error) {
	var p ComputeResourcePreference
	err := c.get(ctx, "/api/v1/gateways/"+gatewayID+"/compute-preferences/"+computeResourceID, nil, &p)
	return &p, err
}

func (c *Client) GetGatewayStoragePreference(ctx context.Context, gatewayID, storageResourceID string) (*StoragePreference, error) {
	var p StoragePreference
	err := c.get(ctx, "/api/v1/gateways/"+gatewayID+"/storage-preferences/"+storageResourceID, nil, &p)
	return &p, err
}

func (c *Client) GetGroupResourceProfile(ctx context.Context, groupResourceProfileID string) (*GroupResourceProfile, error) {
	var p GroupResourceProfile
	err := c.get(ctx, "/api/v1/group-resource-profiles/"+groupResourceProfileID, nil, &p)
	return &p, err
}

func (c *Client) GetUserResourceProfile(ctx context.Context, userName, gatewayID string) (*UserResourceProfile, error) {
	var p UserResourceProfile
	err := c.get(ctx, "/api/v1/users/"+userName+"/resource-profile", url.Values{"gateway_id": {gatewayID}}, &p)
	return &p, err
}

func (c *Client) GetUserComputeResourcePreference(ctx context.Context, userName, gatewayID, computeResourceID string) (*UserComputeResourcePreference, error) {
	var p UserComputeResourcePreference
	err := c.get(ctx, "/api/v1/users/"+userName+"/compute-preferences/"+computeResourceID, url.Values{"gateway_id": {gatewayID}}, &p)
	return &p, err
}

func (c *Client) GetUserStoragePreference(ctx context.Context, userName, gatewayID, storageResourceID string) (*UserStoragePreference, error) {
	var p UserStoragePreference
	err := c.get(ctx, "/api/v1/users/"+userName+"/storage-preferences/"+storageResourceID, url.Values{"gateway_id": {gatewayID}}, &p)
	return &p, err
}

func (c *Client) GetDataProduct(ctx context.Context, productURI string) (*DataProduct, error) {
	var d DataProduct
	err := c.get(ctx, "/api/v1/data-products", url.Values{"product_uri": {productURI}}, &d)
	return &d, err
}

func (c *Client) RegisterDataProduct(ctx context.Context, product *DataProduct) (string, error) {
	var out struct {
		ProductURI string `json:"product_uri"`
	}
	err := c.post(ctx, "/api/v1/data-products", product, &out)
	return out.ProductURI, err
}

func (c *Client) GetParser(ctx context.Context, parserID, gatewayID string) (*Parser, error) {
	var p Parser
	err := c.getCached(ctx, "/api/v1/parsers/"+gatewayID+"/"+parserID, &p)
	return &p, err
}

func (c *Client) ListParsingTemplates(ctx context.Context, applicationInterfaceID, gatewayID string) ([]ParsingTemplate, error) {
	var tt []ParsingTemplate
	err := c.get(ctx, "/api/v1/parsing-templates", url.Values{
		"application_interface_id": {applicationInterfaceID},
		"gateway_id":               {gatewayID},
	}, &tt)
	return tt, err
}

func (c *Client) ListGatewayIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.get(ctx, "/api/v1/gateways", nil, &ids)
	return ids, err
}

func (c *Client) GetGatewayGroups(ctx context.Context, gatewayID string) (*GatewayGroups, error) {
	var g GatewayGroups
	err := c.get(ctx, "/api/v1/gateways/"+gatewayID+"/groups", nil, &g)
	return &g, err
}

func (c *Client) SaveGatewayGroups(ctx context.Context, groups *GatewayGroups) error {
	return c.put(ctx, "/api/v1/gateways/"+groups.GatewayID+"/groups", groups)
}
