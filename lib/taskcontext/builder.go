// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package taskcontext

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// Builder assembles a TaskContext. The first six fields are
// mandatory; Build fails listing every missing one. The remaining
// records are fetched from the registry during Build.
type Builder struct {
	TaskID                   string
	GatewayID                string
	Process                  *airavata.Process
	GatewayResourceProfile   *airavata.GatewayResourceProfile
	GatewayComputePreference *airavata.ComputeResourcePreference
	GatewayStoragePreference *airavata.StoragePreference
	Registry                 airavata.Registry
	Publisher                eventbus.Publisher
}

// Build validates the mandatory inputs, loads the remaining records
// from the registry, and returns a ready TaskContext.
func (b Builder) Build(ctx context.Context) (*TaskContext, error) {
	var missing []string
	if b.Process == nil {
		missing = append(missing, "process model")
	}
	if b.GatewayResourceProfile == nil {
		missing = append(missing, "gateway resource profile")
	}
	if b.GatewayComputePreference == nil {
		missing = append(missing, "gateway compute resource preference")
	}
	if b.GatewayStoragePreference == nil {
		missing = append(missing, "gateway storage preference")
	}
	if b.Registry == nil {
		missing = append(missing, "registry client")
	}
	if b.Publisher == nil {
		missing = append(missing, "status publisher")
	}
	if len(missing) > 0 {
		return nil, &airavata.ConfigError{Field: "task context", Detail: "missing mandatory inputs: " + strings.Join(missing, ", ")}
	}

	tc := &TaskContext{
		TaskID:                   b.TaskID,
		GatewayID:                b.GatewayID,
		Process:                  b.Process,
		GatewayResourceProfile:   b.GatewayResourceProfile,
		GatewayComputePreference: b.GatewayComputePreference,
		GatewayStoragePreference: b.GatewayStoragePreference,
		Registry:                 b.Registry,
		Publisher:                b.Publisher,
	}
	logger := ctxlog.FromContext(ctx)

	exp, err := b.Registry.GetExperiment(ctx, b.Process.ExperimentID)
	if err != nil {
		return nil, fmt.Errorf("load experiment %s: %w", b.Process.ExperimentID, err)
	}
	tc.Experiment = exp

	if id := b.Process.GroupResourceProfileID; id != "" {
		grp, err := b.Registry.GetGroupResourceProfile(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load group resource profile %s: %w", id, err)
		}
		tc.GroupResourceProfile = grp
		if pref, ok := grp.ComputePreference(b.Process.ComputeResourceID); ok {
			tc.GroupComputePreference = &pref
		}
	}

	if b.Process.UseUserCRPref {
		if err := b.loadUserPreferences(ctx, tc); err != nil {
			return nil, err
		}
		if tc.UserComputePreference == nil {
			logger.WithField("UserName", b.Process.UserName).Debug("process opted in to user preferences but none are registered")
		}
	}

	if id := b.Process.ApplicationInterfaceID; id != "" {
		iface, err := b.Registry.GetApplicationInterface(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load application interface %s: %w", id, err)
		}
		tc.ApplicationInterface = iface
	}
	if id := b.Process.ApplicationDeploymentID; id != "" {
		depl, err := b.Registry.GetApplicationDeployment(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load application deployment %s: %w", id, err)
		}
		tc.ApplicationDeployment = depl
	}
	if id := b.Process.ComputeResourceID; id != "" {
		cr, err := b.Registry.GetComputeResource(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load compute resource %s: %w", id, err)
		}
		tc.ComputeResource = cr
	}
	if id := b.Process.StorageResourceID; id != "" {
		sr, err := b.Registry.GetStorageResource(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load storage resource %s: %w", id, err)
		}
		tc.StorageResource = sr
	}
	return tc, nil
}

// loadUserPreferences fetches the per-user records. A missing record
// is not an error: it just means the corresponding layer contributes
// nothing to resolution.
func (b Builder) loadUserPreferences(ctx context.Context, tc *TaskContext) error {
	urp, err := b.Registry.GetUserResourceProfile(ctx, b.Process.UserName, b.GatewayID)
	if err != nil && !errors.Is(err, airavata.ErrNotFound) {
		return fmt.Errorf("load user resource profile for %s: %w", b.Process.UserName, err)
	} else if err == nil {
		tc.UserResourceProfile = urp
	}
	ucp, err := b.Registry.GetUserComputeResourcePreference(ctx, b.Process.UserName, b.GatewayID, b.Process.ComputeResourceID)
	if err != nil && !errors.Is(err, airavata.ErrNotFound) {
		return fmt.Errorf("load user compute preference for %s: %w", b.Process.UserName, err)
	} else if err == nil {
		tc.UserComputePreference = ucp
	}
	if b.Process.StorageResourceID != "" {
		usp, err := b.Registry.GetUserStoragePreference(ctx, b.Process.UserName, b.GatewayID, b.Process.StorageResourceID)
		if err != nil && !errors.Is(err, airavata.ErrNotFound) {
			return fmt.Errorf("load user storage preference for %s: %w", b.Process.UserName, err)
		} else if err == nil {
			tc.UserStoragePreference = usp
		}
	}
	return nil
}
