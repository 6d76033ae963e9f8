// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator is the entry point of the execution core: it
// turns launch/terminate/fetch requests into processes, task DAGs,
// and bus commands for the workflow managers.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/apache/airavata-sub033/lib/coordination"
	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// Handler services experiment-level requests. All state lives in the
// registry and the coordination store; the handler itself is
// stateless apart from in-flight dispatch goroutines.
type Handler struct {
	Registry   airavata.Registry
	Publisher  eventbus.Publisher
	CoordStore coordination.Store

	// Validators run against every process before launch. The
	// first failure aborts the whole experiment launch.
	Validators []Validator

	wg sync.WaitGroup

	launches     *prometheus.CounterVec
	terminations prometheus.Counter
}

// RegisterMetrics registers the handler's counters on reg.
func (h *Handler) RegisterMetrics(reg *prometheus.Registry) {
	h.setupMetrics()
	reg.MustRegister(h.launches, h.terminations)
}

func (h *Handler) setupMetrics() {
	if h.launches != nil {
		return
	}
	h.launches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "airavata",
		Subsystem: "orchestrator",
		Name:      "experiment_launches_total",
		Help:      "Number of experiment launch requests, by outcome.",
	}, []string{"outcome"})
	h.terminations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "airavata",
		Subsystem: "orchestrator",
		Name:      "experiment_terminations_total",
		Help:      "Number of experiment termination requests accepted.",
	})
}

// Wait blocks until all asynchronous process dispatches have been
// handed to the bus. Test helper.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// LaunchExperiment creates, validates, and dispatches the processes
// of an experiment. Only experiments still in CREATED state proceed;
// anything else returns false without side effects, so repeated
// launch calls cannot double-submit.
func (h *Handler) LaunchExperiment(ctx context.Context, experimentID, gatewayID string) (bool, error) {
	h.setupMetrics()
	ctx = ctxlog.WithExperiment(ctx, experimentID, gatewayID)
	logger := ctxlog.FromContext(ctx)

	status, err := h.Registry.GetExperimentStatus(ctx, experimentID)
	if err != nil {
		return false, fmt.Errorf("load experiment status: %w", err)
	}
	if status.State != airavata.ExperimentStateCreated {
		logger.WithField("State", status.State).Info("experiment is not in CREATED state, not launching")
		h.launches.WithLabelValues("skipped").Inc()
		return false, nil
	}

	experiment, err := h.Registry.GetExperiment(ctx, experimentID)
	if err != nil {
		return false, fmt.Errorf("load experiment: %w", err)
	}
	if experiment.ExperimentType != airavata.ExperimentTypeSingleApplication {
		err := &airavata.ValidationError{ExperimentID: experimentID, Reason: fmt.Sprintf("experiment type %s is not supported", experiment.ExperimentType)}
		h.failExperiment(ctx, experimentID, gatewayID, err)
		h.launches.WithLabelValues("failed").Inc()
		return false, err
	}

	token, err := h.resolveCredentialToken(ctx, experiment, gatewayID)
	if err != nil {
		h.failExperiment(ctx, experimentID, gatewayID, err)
		h.launches.WithLabelValues("failed").Inc()
		return false, err
	}

	processes, err := h.createProcesses(ctx, experiment, gatewayID)
	if err != nil {
		h.failExperiment(ctx, experimentID, gatewayID, err)
		h.launches.WithLabelValues("failed").Inc()
		return false, err
	}

	// Fail fast: one invalid process aborts the whole launch.
	for _, process := range processes {
		if err := h.validateProcess(ctx, experiment, process); err != nil {
			h.failExperiment(ctx, experimentID, gatewayID, err)
			h.launches.WithLabelValues("failed").Inc()
			return false, err
		}
	}

	if err := h.saveAndPublishExperimentStatus(ctx, experimentID, gatewayID, airavata.ExperimentStateLaunched, ""); err != nil {
		return false, fmt.Errorf("record LAUNCHED status: %w", err)
	}
	logger.WithField("Processes", len(processes)).Info("experiment launched")
	h.launches.WithLabelValues("launched").Inc()

	// The caller is not blocked for the process launches; each is
	// dispatched on its own goroutine.
	for _, process := range processes {
		process := process
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			dispatchCtx := ctxlog.Context(context.Background(), logger)
			if _, err := h.LaunchProcess(dispatchCtx, process.ProcessID, token, gatewayID); err != nil {
				logger.WithError(err).WithField("ProcessID", process.ProcessID).Error("process dispatch failed")
			}
		}()
	}
	return true, nil
}

// LaunchProcess resolves the application deployment for a process via
// host scheduling and asks the pre-workflow manager to execute it.
// Only processes in CREATED or VALIDATED state are launched; repeated
// calls on an already-running process return false.
func (h *Handler) LaunchProcess(ctx context.Context, processID, token, gatewayID string) (bool, error) {
	ctx = ctxlog.WithProcess(ctx, processID)
	logger := ctxlog.FromContext(ctx)

	status, err := h.Registry.GetProcessStatus(ctx, processID)
	if err != nil {
		return false, fmt.Errorf("load process status: %w", err)
	}
	switch status.State {
	case airavata.ProcessStateCreated, airavata.ProcessStateValidated, "":
	default:
		logger.WithField("State", status.State).Info("process already launched, not launching again")
		return false, nil
	}

	process, err := h.Registry.GetProcess(ctx, processID)
	if err != nil {
		return false, fmt.Errorf("load process: %w", err)
	}
	deployment, err := h.scheduleDeployment(ctx, process)
	if err != nil {
		return false, err
	}
	process.ApplicationDeploymentID = deployment.AppDeploymentID
	process.ComputeResourceID = deployment.ComputeHostID
	if err := h.Registry.UpdateProcess(ctx, process); err != nil {
		return false, fmt.Errorf("persist scheduled deployment: %w", err)
	}

	msg, err := eventbus.NewMessage(eventbus.MessageTypeLaunchProcess, gatewayID, eventbus.ProcessSubmitEvent{
		ProcessID:    processID,
		ExperimentID: process.ExperimentID,
		GatewayID:    gatewayID,
		TokenID:      token,
	})
	if err != nil {
		return false, err
	}
	if err := h.Publisher.Publish(ctx, msg); err != nil {
		return false, fmt.Errorf("publish launch command: %w", err)
	}
	logger.WithField("DeploymentID", deployment.AppDeploymentID).Info("process dispatched")
	return true, nil
}

// TerminateExperiment requests cancellation of a running experiment.
// Experiments that are already terminal, already cancelling, or not
// yet launched cannot be terminated.
func (h *Handler) TerminateExperiment(ctx context.Context, experimentID, gatewayID string) error {
	h.setupMetrics()
	ctx = ctxlog.WithExperiment(ctx, experimentID, gatewayID)
	logger := ctxlog.FromContext(ctx)

	status, err := h.Registry.GetExperimentStatus(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("load experiment status: %w", err)
	}
	switch status.State {
	case airavata.ExperimentStateCompleted, airavata.ExperimentStateCanceled, airavata.ExperimentStateFailed:
		return fmt.Errorf("experiment %s is already %s and cannot be terminated", experimentID, status.State)
	case airavata.ExperimentStateCanceling:
		return fmt.Errorf("experiment %s is already being cancelled", experimentID)
	case airavata.ExperimentStateCreated:
		return fmt.Errorf("experiment %s has not been launched and cannot be terminated", experimentID)
	}

	experiment, err := h.Registry.GetExperiment(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("load experiment: %w", err)
	}
	token, err := h.resolveCredentialToken(ctx, experiment, gatewayID)
	if err != nil {
		return err
	}

	processIDs, err := h.Registry.GetProcessIDs(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}
	for _, processID := range processIDs {
		if err := coordination.RequestCancel(ctx, h.CoordStore, processID); err != nil {
			return fmt.Errorf("flag cancel for process %s: %w", processID, err)
		}
		msg, err := eventbus.NewMessage(eventbus.MessageTypeTerminateProcess, gatewayID, eventbus.ProcessTerminateEvent{
			ProcessID: processID,
			GatewayID: gatewayID,
			TokenID:   token,
		})
		if err != nil {
			return err
		}
		if err := h.Publisher.Publish(ctx, msg); err != nil {
			return fmt.Errorf("publish terminate command for process %s: %w", processID, err)
		}
	}

	if err := h.saveAndPublishExperimentStatus(ctx, experimentID, gatewayID, airavata.ExperimentStateCanceling, "cancellation requested by user"); err != nil {
		return fmt.Errorf("record CANCELING status: %w", err)
	}
	h.terminations.Inc()
	logger.WithField("Processes", len(processIDs)).Info("experiment termination requested")
	return nil
}

// failExperiment records a launch failure: an experiment-scope error
// model plus a FAILED status with a user-readable reason.
func (h *Handler) failExperiment(ctx context.Context, experimentID, gatewayID string, cause error) {
	logger := ctxlog.FromContext(ctx)
	logger.WithError(cause).Error("experiment launch failed")
	if err := h.Registry.AddError(ctx, airavata.ErrorScopeExperiment, experimentID, airavata.ErrorModel{
		ErrorID:             newID("ERROR"),
		CreationTime:        time.Now().UTC(),
		UserFriendlyMessage: "experiment launch failed",
		ActualErrorMessage:  cause.Error(),
	}); err != nil {
		logger.WithError(err).Warn("could not record error model")
	}
	if err := h.saveAndPublishExperimentStatus(ctx, experimentID, gatewayID, airavata.ExperimentStateFailed, cause.Error()); err != nil {
		logger.WithError(err).Warn("could not record FAILED status")
	}
}

func (h *Handler) saveAndPublishExperimentStatus(ctx context.Context, experimentID, gatewayID string, state airavata.ExperimentState, reason string) error {
	status := airavata.ExperimentStatus{State: state, Reason: reason, TimeOfStateChange: time.Now().UTC()}
	if err := h.Registry.AddExperimentStatus(ctx, experimentID, status); err != nil {
		return err
	}
	msg, err := eventbus.NewMessage(eventbus.MessageTypeExperiment, gatewayID, eventbus.ExperimentStatusChangeEvent{
		ExperimentID: experimentID,
		GatewayID:    gatewayID,
		State:        state,
		Reason:       reason,
	})
	if err != nil {
		return err
	}
	return h.Publisher.Publish(ctx, msg)
}

// resolveCredentialToken finds a usable credential store token for
// the experiment's group resource profile: the compute-resource-
// specific token when one is registered for the scheduled host,
// otherwise the profile's default, otherwise the gateway default.
func (h *Handler) resolveCredentialToken(ctx context.Context, experiment *airavata.Experiment, gatewayID string) (string, error) {
	profileID := experiment.UserConfigurationData.GroupResourceProfileID
	if profileID == "" {
		return "", &airavata.ConfigError{Field: "group resource profile", Detail: "experiment " + experiment.ExperimentID + " has no group resource profile"}
	}
	profile, err := h.Registry.GetGroupResourceProfile(ctx, profileID)
	if err != nil {
		return "", fmt.Errorf("load group resource profile %s: %w", profileID, err)
	}
	var token string
	hostID := experiment.UserConfigurationData.ComputationalResourceScheduling.ResourceHostID
	if pref, ok := profile.ComputePreference(hostID); ok {
		token = pref.ResourceSpecificCredentialStoreToken
	}
	if token == "" {
		token = profile.DefaultCredentialStoreToken
	}
	if token == "" {
		if grp, err := h.Registry.GetGatewayResourceProfile(ctx, gatewayID); err == nil {
			token = grp.CredentialStoreToken
		}
	}
	if token == "" {
		return "", &airavata.ConfigError{Field: "credential token", Detail: "no usable credential token for experiment " + experiment.ExperimentID}
	}
	return token, nil
}
