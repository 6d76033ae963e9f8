// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"time"

	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/lib/taskcontext"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// Completing is the synthetic terminal task appended to every
// post-execution chain. It marks the process COMPLETED and publishes
// that transition; its own task status events are suppressed by the
// workflow builder, so it contributes no user-visible task history.
type Completing struct{}

func (t *Completing) Type() airavata.TaskType { return airavata.TaskTypeCompleting }

func (t *Completing) Run(ctx context.Context, tc *taskcontext.TaskContext) error {
	logger := ctxlog.FromContext(ctx)
	status := airavata.ProcessStatus{
		State:             airavata.ProcessStateCompleted,
		Reason:            "process completed",
		TimeOfStateChange: time.Now().UTC(),
	}
	if err := tc.Registry.AddProcessStatus(ctx, tc.Process.ProcessID, status); err != nil {
		return Retryablef(err, "could not record process COMPLETED status")
	}
	msg, err := eventbus.NewMessage(eventbus.MessageTypeProcess, tc.GatewayID, eventbus.ProcessStatusChangeEvent{
		Identity: tc.Identity(),
		State:    airavata.ProcessStateCompleted,
		Reason:   status.Reason,
	})
	if err != nil {
		return Retryablef(err, "could not encode process COMPLETED event")
	}
	if err := tc.Publisher.Publish(ctx, msg); err != nil {
		return Retryablef(err, "could not publish process COMPLETED event")
	}
	logger.Info("process completed")
	return nil
}
