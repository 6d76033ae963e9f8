// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

// scheduleDeployment picks the application deployment a process runs
// on: among the deployments of the application's modules, prefer one
// installed on the process's chosen compute resource; with no chosen
// resource, take the first candidate.
func (h *Handler) scheduleDeployment(ctx context.Context, process *airavata.Process) (*airavata.ApplicationDeploymentDescription, error) {
	iface, err := h.Registry.GetApplicationInterface(ctx, process.ApplicationInterfaceID)
	if err != nil {
		return nil, fmt.Errorf("load application interface %s: %w", process.ApplicationInterfaceID, err)
	}
	var candidates []airavata.ApplicationDeploymentDescription
	for _, moduleID := range iface.ApplicationModules {
		deployments, err := h.Registry.ListApplicationDeployments(ctx, moduleID)
		if err != nil {
			return nil, fmt.Errorf("list deployments for module %s: %w", moduleID, err)
		}
		candidates = append(candidates, deployments...)
	}
	if len(candidates) == 0 {
		return nil, &airavata.ConfigError{Field: "application deployment", Detail: "no deployments registered for application " + process.ApplicationInterfaceID}
	}
	if process.ComputeResourceID != "" {
		for i := range candidates {
			if candidates[i].ComputeHostID == process.ComputeResourceID {
				return &candidates[i], nil
			}
		}
		return nil, &airavata.ConfigError{
			Field:  "application deployment",
			Detail: fmt.Sprintf("application %s has no deployment on compute resource %s", process.ApplicationInterfaceID, process.ComputeResourceID),
		}
	}
	return &candidates[0], nil
}
