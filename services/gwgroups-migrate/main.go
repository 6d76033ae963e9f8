// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

// gwgroups-migrate is a one-time bootstrap tool: it fills in the
// access-control group records for gateways that predate gateway
// groups. Gateways that already have all three groups are left alone.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

func main() {
	apiHost := flag.String("registry", "localhost:8930", "registry service `host:port`")
	authToken := flag.String("token", "", "registry auth token")
	dryRun := flag.Bool("dry-run", false, "report what would change without saving")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [options] [gateway-id]\n\nWith no gateway-id, all gateways are migrated.\n\n", flag.CommandLine.Name())
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := ctxlog.FromContext(nil)
	ctx := context.Background()
	registry := airavata.NewClient(*apiHost, *authToken)

	var gatewayIDs []string
	if flag.NArg() > 0 {
		gatewayIDs = flag.Args()
	} else {
		var err error
		gatewayIDs, err = registry.ListGatewayIDs(ctx)
		if err != nil {
			logger.WithError(err).Fatal("could not list gateways")
		}
	}

	failed := 0
	for _, gatewayID := range gatewayIDs {
		if err := migrate(ctx, registry, gatewayID, *dryRun); err != nil {
			logger.WithError(err).WithField("GatewayID", gatewayID).Error("migration failed")
			failed++
		}
	}
	if failed > 0 {
		logger.WithField("Failed", failed).Fatal("some gateways were not migrated")
	}
}

func migrate(ctx context.Context, registry airavata.Registry, gatewayID string, dryRun bool) error {
	logger := ctxlog.FromContext(nil).WithField("GatewayID", gatewayID)

	groups, err := registry.GetGatewayGroups(ctx, gatewayID)
	if errors.Is(err, airavata.ErrNotFound) {
		groups = &airavata.GatewayGroups{GatewayID: gatewayID}
	} else if err != nil {
		return fmt.Errorf("load gateway groups: %w", err)
	}

	changed := false
	if groups.DefaultGatewayUsersGroupID == "" {
		groups.DefaultGatewayUsersGroupID = groupID(gatewayID, "gateway-users")
		changed = true
	}
	if groups.AdminsGroupID == "" {
		groups.AdminsGroupID = groupID(gatewayID, "admins")
		changed = true
	}
	if groups.ReadOnlyAdminsGroupID == "" {
		groups.ReadOnlyAdminsGroupID = groupID(gatewayID, "read-only-admins")
		changed = true
	}
	if !changed {
		logger.Info("gateway groups already present, skipping")
		return nil
	}
	if dryRun {
		logger.WithField("Groups", groups).Info("would save gateway groups (dry run)")
		return nil
	}
	if err := registry.SaveGatewayGroups(ctx, groups); err != nil {
		return fmt.Errorf("save gateway groups: %w", err)
	}
	logger.Info("gateway groups migrated")
	return nil
}

func groupID(gatewayID, name string) string {
	return name + "-" + gatewayID
}
