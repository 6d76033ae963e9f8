// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

// Package ctxlog attaches loggers to contexts so every component in a
// request path logs with the same correlation fields (gateway,
// experiment, process, task ids).
package ctxlog

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

var (
	loggerCtxKey = new(int)
	rootLogger   = logrus.New()
)

const rfc3339NanoFixed = "2006-01-02T15:04:05.000000000Z07:00"

// Context returns a new child context such that FromContext(child)
// returns the given logger.
func Context(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

// FromContext returns the logger suitable for the given context -- the
// one attached by Context() if applicable, otherwise the top-level
// logger with no fields/values.
func FromContext(ctx context.Context) logrus.FieldLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerCtxKey).(logrus.FieldLogger); ok {
			return logger
		}
	}
	return rootLogger.WithFields(nil)
}

// New returns a new logger with the indicated format and level.
func New(out io.Writer, format, level string) *logrus.Logger {
	logger := logrus.New()
	if out != nil {
		logger.Out = out
	}
	setFormat(logger, format)
	setLevel(logger, level)
	return logger
}

// WithExperiment returns a child context whose logger carries the
// experiment and gateway ids.
func WithExperiment(ctx context.Context, experimentID, gatewayID string) context.Context {
	return Context(ctx, FromContext(ctx).WithFields(logrus.Fields{
		"ExperimentID": experimentID,
		"GatewayID":    gatewayID,
	}))
}

// WithProcess returns a child context whose logger carries the process
// id.
func WithProcess(ctx context.Context, processID string) context.Context {
	return Context(ctx, FromContext(ctx).WithField("ProcessID", processID))
}

// WithTask returns a child context whose logger carries the task id
// and type.
func WithTask(ctx context.Context, taskID, taskType string) context.Context {
	return Context(ctx, FromContext(ctx).WithFields(logrus.Fields{
		"TaskID":   taskID,
		"TaskType": taskType,
	}))
}

// SetLevel sets the current logging level of the root logger. See
// logrus for level names.
func SetLevel(level string) {
	setLevel(rootLogger, level)
}

func setLevel(logger *logrus.Logger, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Fatal(err)
	}
	logger.Level = lvl
}

// SetFormat sets the current logging format of the root logger to
// "json" or "text".
func SetFormat(format string) {
	setFormat(rootLogger, format)
}

func setFormat(logger *logrus.Logger, format string) {
	switch format {
	case "text":
		logger.Formatter = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: rfc3339NanoFixed,
		}
	case "json", "":
		logger.Formatter = &logrus.JSONFormatter{
			TimestampFormat: rfc3339NanoFixed,
		}
	default:
		logrus.WithField("LogFormat", format).Fatal("unknown log format")
	}
}

// TestLogger returns a logger suitable for use in tests: text format,
// debug level, writing to the given writer via logrus defaults.
func TestLogger(out io.Writer) *logrus.Logger {
	return New(out, "text", "debug")
}
