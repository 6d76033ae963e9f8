// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"path"

	"github.com/apache/airavata-sub033/lib/taskcontext"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// OutputFetching copies a subset of outputs from a still-running (or
// finished) job's working directory to gateway storage, without
// touching process or experiment state. It powers the
// intermediate-output side channel: the working directory it reads
// belongs to the sibling process that performed job submission.
type OutputFetching struct {
	Agent Agent
	Mover Mover
	Model *airavata.DataStagingTaskModel
}

func (t *OutputFetching) Type() airavata.TaskType { return airavata.TaskTypeOutputFetching }

func (t *OutputFetching) Run(ctx context.Context, tc *taskcontext.TaskContext) error {
	if t.Model == nil || t.Model.ProcessOutput == nil {
		return Fatalf(nil, "output fetching task has no output model")
	}
	output := *t.Model.ProcessOutput
	// The builder points Source at the submitting sibling's working
	// directory; fall back to this process's own.
	workingDir := t.Model.Source
	if workingDir == "" {
		wd, err := tc.WorkingDir()
		if err != nil {
			return Fatalf(err, "could not resolve working directory")
		}
		workingDir = wd
	}
	storageRoot, err := tc.StorageFileSystemRootLocation()
	if err != nil {
		return Fatalf(err, "could not resolve storage root")
	}
	destDir := path.Join(storageRoot, tc.Process.ExperimentID, "intermediates")

	fileName := output.Value
	if fileName == "" {
		return Fatalf(nil, "output %s has no value to fetch", output.Name)
	}
	var names []string
	if IsWildcard(fileName) {
		auth, err := computeAuth(tc)
		if err != nil {
			return Fatalf(err, "could not resolve compute credentials")
		}
		entries, err := t.Agent.ListDirectory(ctx, auth, workingDir)
		if err != nil {
			return Retryablef(err, "could not list working directory %s", workingDir)
		}
		for _, entry := range entries {
			if IsWildcardMatch(fileName, path.Base(entry)) {
				names = append(names, path.Base(entry))
			}
		}
		if len(names) == 0 {
			ctxlog.FromContext(ctx).WithField("Pattern", fileName).Info("no matching intermediate output yet")
			return nil
		}
	} else {
		names = []string{path.Base(fileName)}
	}

	for _, name := range names {
		src, dst, err := stagingEndpointsOut(tc, path.Join(workingDir, name), path.Join(destDir, name))
		if err != nil {
			return Fatalf(err, "could not resolve fetch endpoints for %s", name)
		}
		ctxlog.FromContext(ctx).WithField("File", name).Info("fetching intermediate output")
		if err := t.Mover.Transfer(ctx, src, dst); err != nil {
			return Retryablef(err, "could not fetch intermediate output %s", name)
		}
	}
	return nil
}
