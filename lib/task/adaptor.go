// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

// AuthInfo identifies a remote account a task operates as. Token is
// an opaque credential-store token; the adaptor resolves it to key
// material itself.
type AuthInfo struct {
	HostName      string
	LoginUserName string
	Token         string
	GatewayID     string
}

// Endpoint is one side of a data transfer.
type Endpoint struct {
	Auth     AuthInfo
	Path     string
	Protocol airavata.DataMovementProtocol
}

// Agent performs remote filesystem operations on a compute or storage
// resource.
type Agent interface {
	CreateDirectory(ctx context.Context, auth AuthInfo, dir string) error
	ListDirectory(ctx context.Context, auth AuthInfo, dir string) ([]string, error)
}

// Mover copies a file between two endpoints (typically gateway
// storage and compute scratch).
type Mover interface {
	Transfer(ctx context.Context, src, dst Endpoint) error
}

// JobDescriptor carries everything a submitter needs to queue one
// batch job.
type JobDescriptor struct {
	JobName          string
	WorkingDir       string
	ExecutablePath   string
	QueueName        string
	QueueMacros      string
	ReservationID    string
	QualityOfService string
	Allocation       string
	StdoutPath       string
	StderrPath       string
	NodeCount        int
	CPUCount         int
	WallTimeLimit    int
	Protocol         airavata.JobSubmissionProtocol
	Interface        airavata.JobSubmissionInterface
}

// Submitter talks to the remote batch scheduler.
type Submitter interface {
	Submit(ctx context.Context, auth AuthInfo, job JobDescriptor) (jobID string, err error)
	Cancel(ctx context.Context, auth AuthInfo, jobID string) error
}

// ParserExecutor runs a registered parser (a container image) over
// named input files and returns the produced outputs keyed by parser
// output id.
type ParserExecutor interface {
	RunParser(ctx context.Context, parser *airavata.Parser, inputs map[string]string) (outputs map[string]string, err error)
}
