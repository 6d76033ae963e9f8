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

// InputStaging copies one process input from gateway storage to the
// process working directory on the compute resource.
type InputStaging struct {
	Mover Mover
	Model *airavata.DataStagingTaskModel
}

func (t *InputStaging) Type() airavata.TaskType { return airavata.TaskTypeDataStaging }

func (t *InputStaging) Run(ctx context.Context, tc *taskcontext.TaskContext) error {
	if t.Model == nil || t.Model.ProcessInput == nil {
		return Fatalf(nil, "input staging task has no input model")
	}
	source := t.Model.Source
	if source == "" {
		source = t.Model.ProcessInput.Value
	}
	if source == "" {
		return Fatalf(nil, "input %s has no source to stage", t.Model.ProcessInput.Name)
	}
	workingDir, err := tc.WorkingDir()
	if err != nil {
		return Fatalf(err, "could not resolve working directory")
	}
	dest := t.Model.Destination
	if dest == "" {
		dest = path.Join(workingDir, path.Base(source))
	}
	src, dst, err := stagingEndpoints(tc, source, dest)
	if err != nil {
		return Fatalf(err, "could not resolve staging endpoints for input %s", t.Model.ProcessInput.Name)
	}
	ctxlog.FromContext(ctx).WithField("Source", source).WithField("Destination", dest).Info("staging input")
	if err := t.Mover.Transfer(ctx, src, dst); err != nil {
		return Retryablef(err, "could not stage input %s", t.Model.ProcessInput.Name)
	}
	return nil
}

// OutputStaging copies one produced output from the compute working
// directory back to gateway storage, registers it as a data product,
// and records the product URI on the experiment and process outputs.
// Wildcard output names expand to every matching file in the working
// directory.
type OutputStaging struct {
	Agent Agent
	Mover Mover
	Model *airavata.DataStagingTaskModel
}

func (t *OutputStaging) Type() airavata.TaskType { return airavata.TaskTypeDataStaging }

func (t *OutputStaging) Run(ctx context.Context, tc *taskcontext.TaskContext) error {
	if t.Model == nil || t.Model.ProcessOutput == nil {
		return Fatalf(nil, "output staging task has no output model")
	}
	output := *t.Model.ProcessOutput
	workingDir, err := tc.WorkingDir()
	if err != nil {
		return Fatalf(err, "could not resolve working directory")
	}
	storageRoot, err := tc.StorageFileSystemRootLocation()
	if err != nil {
		return Fatalf(err, "could not resolve storage root")
	}
	destDir := path.Join(storageRoot, tc.Process.ExperimentID)

	fileName := output.Value
	if fileName == "" {
		return Fatalf(nil, "output %s has no value to stage", output.Name)
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
			if output.IsRequired {
				return Fatalf(nil, "no file matching %q found in %s", fileName, workingDir)
			}
			ctxlog.FromContext(ctx).WithField("Pattern", fileName).Info("no matching optional output, skipping")
			return nil
		}
	} else {
		names = []string{path.Base(fileName)}
	}

	for _, name := range names {
		src, dst, err := stagingEndpointsOut(tc, path.Join(workingDir, name), path.Join(destDir, name))
		if err != nil {
			return Fatalf(err, "could not resolve staging endpoints for output %s", output.Name)
		}
		ctxlog.FromContext(ctx).WithField("File", name).Info("staging output")
		if err := t.Mover.Transfer(ctx, src, dst); err != nil {
			return Retryablef(err, "could not stage output %s", name)
		}
		if err := registerOutput(ctx, tc, output, path.Join(destDir, name)); err != nil {
			ctxlog.FromContext(ctx).WithError(err).WithField("File", name).Warn("could not register output data product")
		}
	}
	return nil
}

// Archive copies the entire working directory to the gateway archive
// location after the post chain has staged the declared outputs.
type Archive struct {
	Mover Mover
	Model *airavata.DataStagingTaskModel
}

func (t *Archive) Type() airavata.TaskType { return airavata.TaskTypeDataStaging }

func (t *Archive) Run(ctx context.Context, tc *taskcontext.TaskContext) error {
	workingDir, err := tc.WorkingDir()
	if err != nil {
		return Fatalf(err, "could not resolve working directory")
	}
	storageRoot, err := tc.StorageFileSystemRootLocation()
	if err != nil {
		return Fatalf(err, "could not resolve storage root")
	}
	dest := path.Join(storageRoot, tc.Process.ExperimentID, "ARCHIVE")
	src, dst, err := stagingEndpointsOut(tc, workingDir, dest)
	if err != nil {
		return Fatalf(err, "could not resolve archive endpoints")
	}
	ctxlog.FromContext(ctx).WithField("Destination", dest).Info("archiving working directory")
	if err := t.Mover.Transfer(ctx, src, dst); err != nil {
		return Retryablef(err, "could not archive working directory %s", workingDir)
	}
	return nil
}

// registerOutput records a staged output file as a data product with
// a gateway-data-store replica, and writes the product URI back to
// the process and experiment output records.
func registerOutput(ctx context.Context, tc *taskcontext.TaskContext, output airavata.OutputDataObject, storagePath string) error {
	productURI, err := tc.Registry.RegisterDataProduct(ctx, &airavata.DataProduct{
		GatewayID:   tc.GatewayID,
		OwnerName:   tc.Process.UserName,
		ProductName: output.Name,
		ReplicaLocations: []airavata.DataReplicaLocation{{
			ReplicaName:             output.Name + " gateway data store copy",
			StorageResourceID:       tc.Process.StorageResourceID,
			FilePath:                storagePath,
			ReplicaLocationCategory: airavata.ReplicaLocationGatewayDataStore,
			ReplicaPersistentType:   airavata.ReplicaPersistentTypeTransient,
		}},
	})
	if err != nil {
		return err
	}
	output.Value = productURI
	if err := tc.Registry.UpdateProcessOutputs(ctx, tc.Process.ProcessID, mergeOutput(tc.Process.ProcessOutputs, output)); err != nil {
		return err
	}
	if tc.Experiment != nil {
		if err := tc.Registry.UpdateExperimentOutputs(ctx, tc.Process.ExperimentID, mergeOutput(tc.Experiment.ExperimentOutputs, output)); err != nil {
			return err
		}
	}
	return nil
}

func mergeOutput(outputs []airavata.OutputDataObject, updated airavata.OutputDataObject) []airavata.OutputDataObject {
	merged := append([]airavata.OutputDataObject(nil), outputs...)
	for i := range merged {
		if merged[i].Name == updated.Name {
			merged[i] = updated
			return merged
		}
	}
	return append(merged, updated)
}

func stagingEndpoints(tc *taskcontext.TaskContext, storagePath, computePath string) (src, dst Endpoint, err error) {
	sAuth, err := storageAuth(tc)
	if err != nil {
		return src, dst, err
	}
	cAuth, err := computeAuth(tc)
	if err != nil {
		return src, dst, err
	}
	protocol, err := tc.DataMovementProtocol()
	if err != nil {
		return src, dst, err
	}
	src = Endpoint{Auth: sAuth, Path: storagePath, Protocol: protocol}
	dst = Endpoint{Auth: cAuth, Path: computePath, Protocol: protocol}
	return src, dst, nil
}

func stagingEndpointsOut(tc *taskcontext.TaskContext, computePath, storagePath string) (src, dst Endpoint, err error) {
	dstEp, srcEp, err := stagingEndpoints(tc, storagePath, computePath)
	return srcEp, dstEp, err
}

// IsWildcard reports whether the output name is a glob pattern.
func IsWildcard(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' || pattern[i] == '?' {
			return true
		}
	}
	return false
}

// IsWildcardMatch matches name against a glob pattern where '*'
// matches any run of characters and '?' matches exactly one.
func IsWildcardMatch(pattern, name string) bool {
	// Iterative glob with single-star backtracking.
	var pi, ni int
	star, starN := -1, 0
	for ni < len(name) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == name[ni]):
			pi++
			ni++
		case pi < len(pattern) && pattern[pi] == '*':
			star, starN = pi, ni
			pi++
		case star >= 0:
			starN++
			pi, ni = star+1, starN
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
