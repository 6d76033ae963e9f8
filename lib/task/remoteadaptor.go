// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

// RemoteAdaptor performs remote filesystem, transfer, scheduler, and
// parser operations through the agent service that holds the actual
// SSH/transfer machinery. It implements Agent, Mover, Submitter, and
// ParserExecutor.
type RemoteAdaptor struct {
	// BaseURL is the agent service endpoint, e.g.
	// "https://agent.example:8941".
	BaseURL   string
	AuthToken string
	Timeout   time.Duration

	httpClient *retryablehttp.Client
}

// NewRemoteAdaptor returns a RemoteAdaptor for the given agent
// service.
func NewRemoteAdaptor(baseURL, authToken string) *RemoteAdaptor {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return &RemoteAdaptor{
		BaseURL:    baseURL,
		AuthToken:  authToken,
		Timeout:    10 * time.Minute,
		httpClient: rc,
	}
}

var (
	_ Agent          = (*RemoteAdaptor)(nil)
	_ Mover          = (*RemoteAdaptor)(nil)
	_ Submitter      = (*RemoteAdaptor)(nil)
	_ ParserExecutor = (*RemoteAdaptor)(nil)
)

func (a *RemoteAdaptor) post(ctx context.Context, path string, body, out interface{}) error {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.AuthToken)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("POST %s: %s (%q)", path, resp.Status, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *RemoteAdaptor) CreateDirectory(ctx context.Context, auth AuthInfo, dir string) error {
	return a.post(ctx, "/api/v1/agent/mkdir", map[string]interface{}{
		"auth": auth,
		"path": dir,
	}, nil)
}

func (a *RemoteAdaptor) ListDirectory(ctx context.Context, auth AuthInfo, dir string) ([]string, error) {
	var out struct {
		Entries []string `json:"entries"`
	}
	err := a.post(ctx, "/api/v1/agent/list", map[string]interface{}{
		"auth": auth,
		"path": dir,
	}, &out)
	return out.Entries, err
}

func (a *RemoteAdaptor) Transfer(ctx context.Context, src, dst Endpoint) error {
	return a.post(ctx, "/api/v1/agent/transfer", map[string]interface{}{
		"source":      src,
		"destination": dst,
	}, nil)
}

func (a *RemoteAdaptor) Submit(ctx context.Context, auth AuthInfo, job JobDescriptor) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	err := a.post(ctx, "/api/v1/agent/submit", map[string]interface{}{
		"auth": auth,
		"job":  job,
	}, &out)
	return out.JobID, err
}

func (a *RemoteAdaptor) Cancel(ctx context.Context, auth AuthInfo, jobID string) error {
	return a.post(ctx, "/api/v1/agent/cancel", map[string]interface{}{
		"auth":   auth,
		"job_id": jobID,
	}, nil)
}

func (a *RemoteAdaptor) RunParser(ctx context.Context, parser *airavata.Parser, inputs map[string]string) (map[string]string, error) {
	var out struct {
		Outputs map[string]string `json:"outputs"`
	}
	err := a.post(ctx, "/api/v1/agent/parse", map[string]interface{}{
		"parser": parser,
		"inputs": inputs,
	}, &out)
	return out.Outputs, err
}
