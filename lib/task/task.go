// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

// Package task implements the unit of work executed within a
// process's workflow: the shared lifecycle (status transitions,
// error recording, cancellation) and the concrete variants
// (environment setup, data staging, job submission, completion,
// output fetching, data parsing).
package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/lib/taskcontext"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// ResultKind classifies how a task (or chain) ended.
type ResultKind string

const (
	ResultCompleted   ResultKind = "COMPLETED"
	ResultFailed      ResultKind = "FAILED"       // retryable
	ResultFatalFailed ResultKind = "FATAL_FAILED" // do not retry
	ResultCanceled    ResultKind = "CANCELED"
)

// Result is the outcome of executing a task or chain.
type Result struct {
	Kind   ResultKind
	Reason string
	Err    error
}

// Failure is the error a Runner returns to fail its task. Fatal
// failures abort the process without retrying; non-fatal failures may
// be retried up to the task's retry budget.
type Failure struct {
	// Reason is the user-facing message recorded on the status
	// history.
	Reason string
	Fatal  bool
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	}
	return f.Reason
}

func (f *Failure) Unwrap() error { return f.Err }

// Fatalf returns a fatal Failure.
func Fatalf(err error, format string, args ...interface{}) *Failure {
	return &Failure{Reason: fmt.Sprintf(format, args...), Fatal: true, Err: err}
}

// Retryablef returns a retryable Failure.
func Retryablef(err error, format string, args ...interface{}) *Failure {
	return &Failure{Reason: fmt.Sprintf(format, args...), Err: err}
}

// Runner is the domain action of one task variant. Run returns nil on
// success, or an error (ideally a *Failure) on failure. The base Task
// handles every status/telemetry concern around it.
type Runner interface {
	Type() airavata.TaskType
	Run(ctx context.Context, tc *taskcontext.TaskContext) error
}

// Canceler is implemented by runners with work to undo or interrupt
// on cancellation (e.g. cancelling a submitted job).
type Canceler interface {
	Cancel(ctx context.Context, tc *taskcontext.TaskContext) error
}

// Spec is the identity and behavior flags of one task node, fixed at
// construction.
type Spec struct {
	TaskID       string
	ProcessID    string
	ExperimentID string
	GatewayID    string

	// SkipStatusPublish suppresses status-change events for this
	// task. Persisted status history is still written. Synthetic
	// bookkeeping tasks set this so they do not contribute
	// duplicate user-visible events.
	SkipStatusPublish bool

	// ForceRun executes the task even when its stored status says
	// it already ran. Without it, a task found in a non-CREATED
	// state is skipped with success (replay after manager restart).
	ForceRun bool

	// MaxRetries bounds re-running the task after retryable
	// failures. 0 means no retries.
	MaxRetries int
}

// Task is one node of an executable chain: a Spec, a Runner, and a
// link to the next node.
type Task struct {
	Spec
	Runner Runner
	Next   *Task

	canceled atomic.Bool
}

// ExecuteChain runs the chain rooted at t. Each node only starts
// after its predecessor completed; the whole chain runs on the
// calling goroutine. The first failure or cancellation stops the
// chain and is returned as the chain's result.
func (t *Task) ExecuteChain(ctx context.Context, tc *taskcontext.TaskContext) Result {
	for node := t; node != nil; node = node.Next {
		res := node.execute(ctx, tc)
		if res.Kind != ResultCompleted {
			return res
		}
	}
	return Result{Kind: ResultCompleted}
}

// RequestCancel flags the task so that execution stops at the next
// task boundary, and interrupts the runner if it supports it. Safe to
// call at any time, from any goroutine, repeatedly.
func (t *Task) RequestCancel(ctx context.Context, tc *taskcontext.TaskContext) {
	if t.canceled.Swap(true) {
		return
	}
	if c, ok := t.Runner.(Canceler); ok {
		if err := c.Cancel(ctx, tc); err != nil {
			ctxlog.FromContext(ctx).WithError(err).WithField("TaskID", t.TaskID).Warn("cancel hook failed")
		}
	}
}

func (t *Task) execute(ctx context.Context, tc *taskcontext.TaskContext) Result {
	ctx = ctxlog.WithTask(ctxlog.WithProcess(ctxlog.WithExperiment(ctx, t.ExperimentID, t.GatewayID), t.ProcessID), t.TaskID, string(t.Runner.Type()))
	logger := ctxlog.FromContext(ctx)

	if t.canceled.Load() {
		return t.onCancel(ctx, tc)
	}

	if !t.ForceRun {
		if model, ok := tc.Process.TaskByID(t.TaskID); ok {
			if st := model.LatestStatus().State; st != "" && st != airavata.TaskStateCreated {
				logger.WithField("State", st).Info("task already ran, skipping")
				return Result{Kind: ResultCompleted}
			}
		}
	}

	if err := t.saveAndPublishStatus(ctx, tc, airavata.TaskStateExecuting, ""); err != nil {
		logger.WithError(err).Warn("could not record EXECUTING status")
	}

	for attempt := 0; ; attempt++ {
		err := t.Runner.Run(ctx, tc)
		if t.canceled.Load() {
			return t.onCancel(ctx, tc)
		}
		if err == nil {
			return t.onSuccess(ctx, tc)
		}
		var failure *Failure
		if errors.As(err, &failure) && !failure.Fatal && attempt < t.MaxRetries {
			logger.WithError(err).WithField("Attempt", attempt+1).Warn("task failed, retrying")
			continue
		}
		// A retryable failure that exhausted its retry budget is
		// escalated to fatal.
		exhausted := t.MaxRetries > 0 && attempt >= t.MaxRetries
		return t.onFail(ctx, tc, err, exhausted)
	}
}

func (t *Task) onSuccess(ctx context.Context, tc *taskcontext.TaskContext) Result {
	if err := t.saveAndPublishStatus(ctx, tc, airavata.TaskStateCompleted, ""); err != nil {
		ctxlog.FromContext(ctx).WithError(err).Warn("could not record COMPLETED status")
	}
	return Result{Kind: ResultCompleted}
}

// onFail records the failure at task, process, and experiment scope,
// marks the process FAILED, and classifies the result as retryable or
// fatal based on the failure's flag.
func (t *Task) onFail(ctx context.Context, tc *taskcontext.TaskContext, err error, retriesExhausted bool) Result {
	logger := ctxlog.FromContext(ctx)
	var failure *Failure
	if !errors.As(err, &failure) {
		failure = &Failure{Reason: "task failed", Err: err}
	}
	logger.WithError(err).WithField("Fatal", failure.Fatal).Error("task failed")

	errModel := airavata.ErrorModel{
		ErrorID:             uuid.NewString(),
		CreationTime:        time.Now().UTC(),
		UserFriendlyMessage: failure.Reason,
		ActualErrorMessage:  err.Error(),
	}
	for scope, id := range map[airavata.ErrorScope]string{
		airavata.ErrorScopeTask:       t.TaskID,
		airavata.ErrorScopeProcess:    t.ProcessID,
		airavata.ErrorScopeExperiment: t.ExperimentID,
	} {
		if err := tc.Registry.AddError(ctx, scope, id, errModel); err != nil {
			logger.WithError(err).WithField("Scope", scope).Warn("could not record error model")
		}
	}

	if err := t.saveAndPublishStatus(ctx, tc, airavata.TaskStateFailed, failure.Reason); err != nil {
		logger.WithError(err).Warn("could not record FAILED status")
	}
	if err := t.saveAndPublishProcessStatus(ctx, tc, airavata.ProcessStateFailed, failure.Reason); err != nil {
		logger.WithError(err).Warn("could not record process FAILED status")
	}

	kind := ResultFailed
	if failure.Fatal || retriesExhausted {
		kind = ResultFatalFailed
	}
	return Result{Kind: kind, Reason: failure.Reason, Err: err}
}

func (t *Task) onCancel(ctx context.Context, tc *taskcontext.TaskContext) Result {
	if err := t.saveAndPublishStatus(ctx, tc, airavata.TaskStateCanceled, "cancelled by user request"); err != nil {
		ctxlog.FromContext(ctx).WithError(err).Warn("could not record CANCELED status")
	}
	return Result{Kind: ResultCanceled, Reason: "cancelled by user request"}
}

func (t *Task) saveAndPublishStatus(ctx context.Context, tc *taskcontext.TaskContext, state airavata.TaskState, reason string) error {
	status := airavata.TaskStatus{State: state, Reason: reason, TimeOfStateChange: time.Now().UTC()}
	if err := tc.Registry.AddTaskStatus(ctx, t.ProcessID, t.TaskID, status); err != nil {
		return err
	}
	if t.SkipStatusPublish {
		return nil
	}
	msg, err := eventbus.NewMessage(eventbus.MessageTypeTask, t.GatewayID, eventbus.TaskStatusChangeEvent{
		TaskID:   t.TaskID,
		Identity: tc.Identity(),
		State:    state,
		Reason:   reason,
	})
	if err != nil {
		return err
	}
	return tc.Publisher.Publish(ctx, msg)
}

func (t *Task) saveAndPublishProcessStatus(ctx context.Context, tc *taskcontext.TaskContext, state airavata.ProcessState, reason string) error {
	status := airavata.ProcessStatus{State: state, Reason: reason, TimeOfStateChange: time.Now().UTC()}
	if err := tc.Registry.AddProcessStatus(ctx, t.ProcessID, status); err != nil {
		return err
	}
	// Process-level transitions are always published; the skip flag
	// only suppresses this task's own status events.
	msg, err := eventbus.NewMessage(eventbus.MessageTypeProcess, t.GatewayID, eventbus.ProcessStatusChangeEvent{
		Identity: tc.Identity(),
		State:    state,
		Reason:   reason,
	})
	if err != nil {
		return err
	}
	return tc.Publisher.Publish(ctx, msg)
}
