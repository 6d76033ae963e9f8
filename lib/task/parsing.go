// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"sync"

	"github.com/apache/airavata-sub033/lib/taskcontext"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

// VarStore holds the named context variables that connect parsers in
// a parsing workflow: parent tasks write their outputs, child tasks
// read them as inputs. One VarStore is shared by all tasks of one
// parsing workflow.
type VarStore struct {
	mtx  sync.RWMutex
	vars map[string]string
}

// NewVarStore returns a VarStore seeded with the given initial
// variables.
func NewVarStore(initial map[string]string) *VarStore {
	vars := map[string]string{}
	for k, v := range initial {
		vars[k] = v
	}
	return &VarStore{vars: vars}
}

// Get returns the named variable.
func (s *VarStore) Get(name string) (string, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Set records the named variable.
func (s *VarStore) Set(name, value string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.vars[name] = value
}

// DataParsing runs one registered parser over inputs drawn from
// literal template values and from context variables produced by
// parent parsers, and publishes its outputs as context variables for
// its children.
type DataParsing struct {
	Executor ParserExecutor
	Model    *airavata.DataParsingTaskModel
	Vars     *VarStore
}

func (t *DataParsing) Type() airavata.TaskType { return airavata.TaskTypeDataParsing }

func (t *DataParsing) Run(ctx context.Context, tc *taskcontext.TaskContext) error {
	if t.Model == nil {
		return Fatalf(nil, "data parsing task has no model")
	}
	logger := ctxlog.FromContext(ctx).WithField("ParserID", t.Model.ParserID)

	gatewayID := t.Model.GatewayID
	if gatewayID == "" {
		gatewayID = tc.GatewayID
	}
	parser, err := tc.Registry.GetParser(ctx, t.Model.ParserID, gatewayID)
	if err != nil {
		return Fatalf(err, "could not load parser %s", t.Model.ParserID)
	}

	inputs := map[string]string{}
	for _, in := range parser.InputFiles {
		if value, ok := t.Model.LiteralInputs[in.ParserInputID]; ok {
			inputs[in.ParserInputID] = value
			continue
		}
		if varName, ok := t.Model.InputMapping[in.ParserInputID]; ok {
			if value, found := t.Vars.Get(varName); found {
				inputs[in.ParserInputID] = value
				continue
			}
			if in.RequiredInput {
				return Fatalf(nil, "context variable %s for parser input %s was never produced", varName, in.Name)
			}
			continue
		}
		if in.RequiredInput {
			return Fatalf(nil, "parser input %s has no binding", in.Name)
		}
	}

	logger.WithField("Inputs", len(inputs)).Info("running parser")
	outputs, err := t.Executor.RunParser(ctx, parser, inputs)
	if err != nil {
		return Retryablef(err, "parser %s failed", t.Model.ParserID)
	}
	for _, out := range parser.OutputFiles {
		varName, ok := t.Model.ContextOutputs[out.ParserOutputID]
		if !ok {
			continue
		}
		value, produced := outputs[out.ParserOutputID]
		if !produced {
			logger.WithField("Output", out.Name).Warn("parser did not produce a declared output")
			continue
		}
		t.Vars.Set(varName, value)
	}
	return nil
}
