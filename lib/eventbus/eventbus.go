// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

// Package eventbus carries status-change and command events between
// the orchestrator, the workflow managers, and the monitoring
// consumers. The wire transport is pluggable; PGBus (postgres
// LISTEN/NOTIFY) is the production implementation and MemBus backs
// tests and single-node deployments.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

// MessageType is the routing key of a message.
type MessageType string

const (
	MessageTypeExperiment       MessageType = "EXPERIMENT"
	MessageTypeProcess          MessageType = "PROCESS"
	MessageTypeTask             MessageType = "TASK"
	MessageTypeJob              MessageType = "JOB"
	MessageTypeLaunchProcess    MessageType = "LAUNCHPROCESS"
	MessageTypeTerminateProcess MessageType = "TERMINATEPROCESS"
)

// MessageContext is the envelope every published event travels in.
// Payload holds the JSON-encoded event struct matching Type.
type MessageContext struct {
	MessageID   string          `json:"message_id"`
	Type        MessageType     `json:"type"`
	GatewayID   string          `json:"gateway_id"`
	UpdatedTime time.Time       `json:"updated_time"`
	Payload     json.RawMessage `json:"payload"`
}

// NewMessage wraps event in an envelope with a fresh message id.
func NewMessage(msgType MessageType, gatewayID string, event interface{}) (*MessageContext, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &MessageContext{
		MessageID:   uuid.NewString(),
		Type:        msgType,
		GatewayID:   gatewayID,
		UpdatedTime: time.Now().UTC(),
		Payload:     payload,
	}, nil
}

// Decode unmarshals the payload into the given event struct.
func (m *MessageContext) Decode(event interface{}) error {
	return json.Unmarshal(m.Payload, event)
}

// ProcessIdentity names the entity chain a process-scoped event
// belongs to.
type ProcessIdentity struct {
	ProcessID    string `json:"process_id"`
	ExperimentID string `json:"experiment_id"`
	GatewayID    string `json:"gateway_id"`
}

// JobIdentity extends ProcessIdentity with the job and the owning
// job-submission task.
type JobIdentity struct {
	JobID  string `json:"job_id"`
	TaskID string `json:"task_id"`
	ProcessIdentity
}

// ExperimentStatusChangeEvent reports an experiment state transition.
type ExperimentStatusChangeEvent struct {
	ExperimentID string                   `json:"experiment_id"`
	GatewayID    string                   `json:"gateway_id"`
	State        airavata.ExperimentState `json:"state"`
	Reason       string                   `json:"reason,omitempty"`
}

// ProcessStatusChangeEvent reports a process state transition.
type ProcessStatusChangeEvent struct {
	Identity ProcessIdentity       `json:"identity"`
	State    airavata.ProcessState `json:"state"`
	Reason   string                `json:"reason,omitempty"`
}

// TaskStatusChangeEvent reports a task state transition.
type TaskStatusChangeEvent struct {
	TaskID   string             `json:"task_id"`
	Identity ProcessIdentity    `json:"identity"`
	State    airavata.TaskState `json:"state"`
	Reason   string             `json:"reason,omitempty"`
}

// JobStatusChangeEvent reports a batch-scheduler job state change
// observed by a monitor.
type JobStatusChangeEvent struct {
	Identity JobIdentity       `json:"identity"`
	State    airavata.JobState `json:"state"`
	Reason   string            `json:"reason,omitempty"`
}

// ProcessSubmitEvent asks the pre-workflow manager to start executing
// a process that the orchestrator has created and validated.
type ProcessSubmitEvent struct {
	ProcessID    string `json:"process_id"`
	ExperimentID string `json:"experiment_id"`
	GatewayID    string `json:"gateway_id"`
	TokenID      string `json:"token_id,omitempty"`
}

// ProcessTerminateEvent asks the managers to cancel a running
// process.
type ProcessTerminateEvent struct {
	ProcessID string `json:"process_id"`
	GatewayID string `json:"gateway_id"`
	TokenID   string `json:"token_id,omitempty"`
}

// Publisher sends messages to the bus. Publish is fire-and-forget
// from the caller's point of view; an error means the message was
// certainly not sent.
type Publisher interface {
	Publish(ctx context.Context, msg *MessageContext) error
}

// Sink is one subscriber's view of the bus. The channel closes when
// the bus shuts down. Call Stop to unsubscribe.
type Sink interface {
	Channel() <-chan *MessageContext
	Stop()
}

// Source hands out sinks filtered by message type. An empty type list
// subscribes to everything. Delivery is at-least-once; consumers must
// tolerate duplicates and out-of-order arrival.
type Source interface {
	NewSink(types ...MessageType) Sink
}

// Bus is a full publish/subscribe endpoint.
type Bus interface {
	Publisher
	Source
}

const sinkBuffer = 64

// busSink is the Sink implementation shared by MemBus and PGBus.
type busSink struct {
	types   []MessageType
	channel chan *MessageContext
	once    sync.Once
	detach  func(*busSink)
}

func (sink *busSink) Channel() <-chan *MessageContext {
	return sink.channel
}

func (sink *busSink) Stop() {
	if sink.detach != nil {
		sink.detach(sink)
	}
}

func (sink *busSink) close() {
	sink.once.Do(func() { close(sink.channel) })
}

func typeMatch(types []MessageType, t MessageType) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}
