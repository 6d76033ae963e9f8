// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package airavata

import (
	"errors"
	"fmt"
	"time"
)

// ErrorModel preserves low-level failure detail against an experiment,
// process, or task record. The user-facing status reason is kept
// separately on the status history entries.
type ErrorModel struct {
	ErrorID             string    `json:"error_id"`
	CreationTime        time.Time `json:"creation_time"`
	UserFriendlyMessage string    `json:"user_friendly_message,omitempty"`
	ActualErrorMessage  string    `json:"actual_error_message,omitempty"`
}

// ErrorScope selects which record an ErrorModel is attached to.
type ErrorScope string

const (
	ErrorScopeExperiment ErrorScope = "EXPERIMENT_ERROR"
	ErrorScopeProcess    ErrorScope = "PROCESS_ERROR"
	ErrorScopeTask       ErrorScope = "TASK_ERROR"
)

// ErrNotFound is returned (wrapped) by registry implementations when a
// requested record does not exist.
var ErrNotFound = errors.New("not found")

// NotFoundError decorates ErrNotFound with the record kind and id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q: not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError indicates an experiment or process failed pre-flight
// checks. It is surfaced to the caller and recorded as an
// experiment-level error; it is never retried automatically.
type ValidationError struct {
	ExperimentID string
	ProcessID    string
	Reason       string
}

func (e *ValidationError) Error() string {
	if e.ProcessID != "" {
		return fmt.Sprintf("validation failed for process %s of experiment %s: %s", e.ProcessID, e.ExperimentID, e.Reason)
	}
	return fmt.Sprintf("validation failed for experiment %s: %s", e.ExperimentID, e.Reason)
}

// ConfigError indicates missing or unusable configuration (no
// credential token, no group resource profile, no matching job
// submission interface). Fatal for the affected process/experiment.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Detail)
}
