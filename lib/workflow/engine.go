// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

// Package workflow assembles executable task chains from stored
// process task DAGs and runs them on a workflow engine.
package workflow

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/apache/airavata-sub033/lib/task"
	"github.com/apache/airavata-sub033/lib/taskcontext"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// Engine runs task chains. The production substrate is external; the
// core only needs launch and cancel.
type Engine interface {
	// LaunchWorkflow starts executing the chain rooted at root and
	// returns a workflow id without waiting for completion.
	LaunchWorkflow(ctx context.Context, name string, root *task.Task, tc *taskcontext.TaskContext) (workflowID string, err error)
	// CancelWorkflow requests cooperative cancellation of a
	// running workflow. Unknown ids are a no-op.
	CancelWorkflow(ctx context.Context, workflowID string) error
}

// InProcessEngine executes each workflow chain on its own goroutine
// within this process. Chains run strictly sequentially internally;
// separate workflows are independent.
type InProcessEngine struct {
	// OnResult, if set, is called with each finished workflow's
	// result. Used by tests and by managers that chain workflows.
	OnResult func(workflowID string, result task.Result)

	mtx     sync.Mutex
	running map[string]*launchedWorkflow
	wg      sync.WaitGroup

	launched  prometheus.Counter
	completed *prometheus.CounterVec
}

type launchedWorkflow struct {
	root *task.Task
	tc   *taskcontext.TaskContext
}

// NewInProcessEngine returns a ready engine.
func NewInProcessEngine() *InProcessEngine {
	return &InProcessEngine{
		running: map[string]*launchedWorkflow{},
		launched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airavata",
			Subsystem: "workflow",
			Name:      "launched_total",
			Help:      "Number of workflows launched.",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airavata",
			Subsystem: "workflow",
			Name:      "completed_total",
			Help:      "Number of workflows finished, by result.",
		}, []string{"result"}),
	}
}

// RegisterMetrics registers the engine's counters on reg.
func (e *InProcessEngine) RegisterMetrics(reg *prometheus.Registry) {
	reg.MustRegister(e.launched, e.completed)
}

// LaunchWorkflow implements Engine.
func (e *InProcessEngine) LaunchWorkflow(ctx context.Context, name string, root *task.Task, tc *taskcontext.TaskContext) (string, error) {
	workflowID := name + "-" + uuid.NewString()
	logger := ctxlog.FromContext(ctx).WithField("WorkflowID", workflowID)
	e.mtx.Lock()
	e.running[workflowID] = &launchedWorkflow{root: root, tc: tc}
	e.mtx.Unlock()
	e.launched.Inc()

	// The chain outlives the caller's request context; only its
	// logger travels along.
	runCtx := ctxlog.Context(context.Background(), logger)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		result := root.ExecuteChain(runCtx, tc)
		logger.WithField("Result", result.Kind).Info("workflow finished")
		e.completed.WithLabelValues(string(result.Kind)).Inc()
		e.mtx.Lock()
		delete(e.running, workflowID)
		e.mtx.Unlock()
		if e.OnResult != nil {
			e.OnResult(workflowID, result)
		}
	}()
	return workflowID, nil
}

// CancelWorkflow implements Engine.
func (e *InProcessEngine) CancelWorkflow(ctx context.Context, workflowID string) error {
	e.mtx.Lock()
	lw := e.running[workflowID]
	e.mtx.Unlock()
	if lw == nil {
		return nil
	}
	for node := lw.root; node != nil; node = node.Next {
		node.RequestCancel(ctx, lw.tc)
	}
	return nil
}

// Wait blocks until all launched workflows have finished. Test
// helper.
func (e *InProcessEngine) Wait() {
	e.wg.Wait()
}
