// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/apache/airavata-sub033/lib/coordination"
	"github.com/apache/airavata-sub033/lib/task"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

// Deps are the collaborators concrete tasks need. The builder injects
// them through an explicit constructor table; nothing is looked up
// through global state.
type Deps struct {
	Agent          task.Agent
	Mover          task.Mover
	Submitter      task.Submitter
	ParserExecutor task.ParserExecutor
	CoordStore     coordination.Store
}

// Builder assembles executable task chains for a process.
type Builder struct {
	Deps Deps

	// MaxTaskRetries is the per-task retry budget for retryable
	// failures.
	MaxTaskRetries int
}

// taskKind refines TaskType with the chain-position-aware staging
// classification.
type taskKind string

const (
	kindEnvSetup      taskKind = "ENV_SETUP"
	kindInputStaging  taskKind = "INPUT_STAGING"
	kindOutputStaging taskKind = "OUTPUT_STAGING"
	kindArchive       taskKind = "ARCHIVE"
	kindJobSubmission taskKind = "JOB_SUBMISSION"
	kindOutputFetch   taskKind = "OUTPUT_FETCHING"
	kindCompleting    taskKind = "COMPLETING"
	kindDataParsing   taskKind = "DATA_PARSING"
)

// runnerFor is the type-driven construction table.
func (b *Builder) runnerFor(kind taskKind, model airavata.Task) (task.Runner, error) {
	switch kind {
	case kindEnvSetup:
		return &task.EnvSetup{Agent: b.Deps.Agent}, nil
	case kindInputStaging:
		return &task.InputStaging{Mover: b.Deps.Mover, Model: model.DataStaging}, nil
	case kindOutputStaging:
		return &task.OutputStaging{Agent: b.Deps.Agent, Mover: b.Deps.Mover, Model: model.DataStaging}, nil
	case kindArchive:
		return &task.Archive{Mover: b.Deps.Mover, Model: model.DataStaging}, nil
	case kindJobSubmission:
		return &task.JobSubmission{Submitter: b.Deps.Submitter, CoordStore: b.Deps.CoordStore, Model: model.JobSubmission, TaskID: model.TaskID}, nil
	case kindOutputFetch:
		return &task.OutputFetching{Agent: b.Deps.Agent, Mover: b.Deps.Mover, Model: model.DataStaging}, nil
	case kindCompleting:
		return &task.Completing{}, nil
	default:
		return nil, fmt.Errorf("no constructor for task kind %s", kind)
	}
}

// classify maps a stored task model to its kind. Staging tasks after
// a job submission in the same chain are classified by position as
// output staging, regardless of stored subtype, except archives.
func classify(model airavata.Task, jobSubmissionFound bool) (taskKind, error) {
	switch model.TaskType {
	case airavata.TaskTypeEnvSetup:
		return kindEnvSetup, nil
	case airavata.TaskTypeJobSubmission:
		return kindJobSubmission, nil
	case airavata.TaskTypeOutputFetching:
		return kindOutputFetch, nil
	case airavata.TaskTypeCompleting:
		return kindCompleting, nil
	case airavata.TaskTypeDataParsing:
		return kindDataParsing, nil
	case airavata.TaskTypeDataStaging:
		if model.DataStaging == nil {
			return "", fmt.Errorf("task %s has type DATA_STAGING but no staging model", model.TaskID)
		}
		switch {
		case model.DataStaging.Type == airavata.DataStagingArchiveOutput:
			return kindArchive, nil
		case jobSubmissionFound || model.DataStaging.Type == airavata.DataStagingOutput:
			return kindOutputStaging, nil
		default:
			return kindInputStaging, nil
		}
	default:
		return "", fmt.Errorf("task %s has unknown type %s", model.TaskID, model.TaskType)
	}
}

// buildChain links the given task models into an executable chain in
// order. jobSubmissionFound seeds the positional staging
// classification: true for chains that follow a job submission even
// when the submission task itself is not part of the chain.
// suppressLast suppresses status events for the final (synthetic)
// task.
func (b *Builder) buildChain(process *airavata.Process, gatewayID string, models []airavata.Task, jobSubmissionFound, suppressLast bool) (*task.Task, error) {
	var root, prev *task.Task
	for i, model := range models {
		kind, err := classify(model, jobSubmissionFound)
		if err != nil {
			return nil, err
		}
		if kind == kindJobSubmission {
			jobSubmissionFound = true
		}
		runner, err := b.runnerFor(kind, model)
		if err != nil {
			return nil, err
		}
		node := &task.Task{
			Spec: task.Spec{
				TaskID:            model.TaskID,
				ProcessID:         process.ProcessID,
				ExperimentID:      process.ExperimentID,
				GatewayID:         gatewayID,
				SkipStatusPublish: suppressLast && i == len(models)-1,
				MaxRetries:        b.MaxTaskRetries,
			},
			Runner: runner,
		}
		if prev != nil {
			prev.Next = node
		} else {
			root = node
		}
		prev = node
	}
	if root == nil {
		return nil, fmt.Errorf("process %s: no tasks to build", process.ProcessID)
	}
	return root, nil
}

// orderedModels resolves the stored DAG's task ids to models, in
// execution order.
func orderedModels(process *airavata.Process) ([]airavata.Task, error) {
	var models []airavata.Task
	for _, id := range process.TaskExecutionOrder() {
		model, ok := process.TaskByID(id)
		if !ok {
			return nil, fmt.Errorf("process %s: task %s in DAG but not in task list", process.ProcessID, id)
		}
		models = append(models, model)
	}
	return models, nil
}

// BuildPreChain builds the pre-execution chain: every stored task up
// to and including the job submission.
func (b *Builder) BuildPreChain(process *airavata.Process, gatewayID string) (*task.Task, error) {
	models, err := orderedModels(process)
	if err != nil {
		return nil, err
	}
	var pre []airavata.Task
	for _, model := range models {
		pre = append(pre, model)
		if model.TaskType == airavata.TaskTypeJobSubmission {
			break
		}
	}
	return b.buildChain(process, gatewayID, pre, false, false)
}

// BuildPostChain builds the post-execution chain: every stored task
// after the job submission, plus a synthetic completing task with
// status publishing suppressed.
func (b *Builder) BuildPostChain(process *airavata.Process, gatewayID string) (*task.Task, error) {
	models, err := orderedModels(process)
	if err != nil {
		return nil, err
	}
	var post []airavata.Task
	seenSubmission := false
	for _, model := range models {
		if seenSubmission {
			post = append(post, model)
		}
		if model.TaskType == airavata.TaskTypeJobSubmission {
			seenSubmission = true
		}
	}
	post = append(post, airavata.Task{
		TaskID:          "completing-" + uuid.NewString(),
		ParentProcessID: process.ProcessID,
		TaskType:        airavata.TaskTypeCompleting,
	})
	// The post chain follows a job submission even though the
	// submission task itself is not part of it; staging tasks here
	// are output-side.
	return b.buildChain(process, gatewayID, post, true, true)
}

// BuildCompleteChain builds the whole stored DAG as one chain, with
// the synthetic completing task appended. Used when a single engine
// runs a process end to end instead of splitting around the job
// monitor.
func (b *Builder) BuildCompleteChain(process *airavata.Process, gatewayID string) (*task.Task, error) {
	models, err := orderedModels(process)
	if err != nil {
		return nil, err
	}
	models = append(models, airavata.Task{
		TaskID:          "completing-" + uuid.NewString(),
		ParentProcessID: process.ProcessID,
		TaskType:        airavata.TaskTypeCompleting,
	})
	return b.buildChain(process, gatewayID, models, false, true)
}

// BuildFetchChain builds an output-fetching-only chain from a
// process whose tasks are all OUTPUT_FETCHING. No completing task is
// appended: intermediate fetches must not mark the process completed.
func (b *Builder) BuildFetchChain(process *airavata.Process, gatewayID string) (*task.Task, error) {
	models, err := orderedModels(process)
	if err != nil {
		return nil, err
	}
	return b.buildChain(process, gatewayID, models, false, false)
}

// BuildParserChain expands a parsing template into an executable
// chain. Parser connectors form a true DAG; the chain is its
// topological linearization rooted at the parser with no incoming
// edge, with data flowing between tasks through a shared VarStore
// rather than through chain links.
func (b *Builder) BuildParserChain(ctx context.Context, registry airavata.Registry, process *airavata.Process, template *airavata.ParsingTemplate, initialVars map[string]string) (*task.Task, error) {
	order, parents, err := parserOrder(template)
	if err != nil {
		return nil, err
	}
	vars := task.NewVarStore(initialVars)

	parsers := map[string]*airavata.Parser{}
	for _, parserID := range order {
		p, err := registry.GetParser(ctx, parserID, template.GatewayID)
		if err != nil {
			return nil, fmt.Errorf("load parser %s: %w", parserID, err)
		}
		parsers[parserID] = p
	}

	var root, prev *task.Task
	for _, parserID := range order {
		parser := parsers[parserID]
		model := &airavata.DataParsingTaskModel{
			ParserID:       parserID,
			GatewayID:      template.GatewayID,
			InputMapping:   map[string]string{},
			LiteralInputs:  map[string]string{},
			ContextOutputs: map[string]string{},
		}
		// Every output becomes a context variable named after
		// the producing parser and output.
		for _, out := range parser.OutputFiles {
			model.ContextOutputs[out.ParserOutputID] = contextVar(parserID, out.Name)
		}
		// Root inputs come from the template; child inputs bind
		// to a same-named output of one of the task's parents.
		if parserID == order[0] {
			for _, in := range template.InitialInputs {
				if in.Value != "" {
					model.LiteralInputs[in.TargetParserInputID] = in.Value
				} else if in.ContextVariable != "" {
					model.InputMapping[in.TargetParserInputID] = in.ContextVariable
				}
			}
		} else {
			for _, in := range parser.InputFiles {
				for _, parentID := range parents[parserID] {
					if parentOut, ok := outputByName(parsers[parentID], in.Name); ok {
						model.InputMapping[in.ParserInputID] = contextVar(parentID, parentOut.Name)
						break
					}
				}
			}
		}
		node := &task.Task{
			Spec: task.Spec{
				TaskID:       "parse-" + parserID + "-" + uuid.NewString(),
				ProcessID:    process.ProcessID,
				ExperimentID: process.ExperimentID,
				GatewayID:    template.GatewayID,
				MaxRetries:   b.MaxTaskRetries,
			},
			Runner: &task.DataParsing{Executor: b.Deps.ParserExecutor, Model: model, Vars: vars},
		}
		if prev != nil {
			prev.Next = node
		} else {
			root = node
		}
		prev = node
	}
	if root == nil {
		return nil, fmt.Errorf("parsing template %s has no parsers", template.TemplateID)
	}
	return root, nil
}

func contextVar(parserID, outputName string) string {
	return parserID + "/" + outputName
}

func outputByName(parser *airavata.Parser, name string) (airavata.ParserOutput, bool) {
	for _, out := range parser.OutputFiles {
		if out.Name == name {
			return out, true
		}
	}
	return airavata.ParserOutput{}, false
}

// parserOrder returns the template's parsers in topological order
// starting from the true root (the parser with no incoming
// connector), plus each parser's parent set.
func parserOrder(template *airavata.ParsingTemplate) ([]string, map[string][]string, error) {
	children := map[string][]string{}
	parents := map[string][]string{}
	nodes := map[string]bool{}
	for _, conn := range template.ParserConnections {
		children[conn.ParentParserID] = append(children[conn.ParentParserID], conn.ChildParserID)
		parents[conn.ChildParserID] = append(parents[conn.ChildParserID], conn.ParentParserID)
		nodes[conn.ParentParserID] = true
		nodes[conn.ChildParserID] = true
	}
	if len(nodes) == 0 {
		// Single-parser template: the root is named by the
		// initial inputs' target parser, which the caller
		// resolves; templates without connectors carry exactly
		// one parser id in their initial inputs' target ids.
		return nil, nil, fmt.Errorf("parsing template %s has no parser connections", template.TemplateID)
	}
	var root string
	for node := range nodes {
		if len(parents[node]) == 0 {
			if root != "" {
				return nil, nil, fmt.Errorf("parsing template %s has multiple root parsers (%s, %s)", template.TemplateID, root, node)
			}
			root = node
		}
	}
	if root == "" {
		return nil, nil, fmt.Errorf("parsing template %s has a connector cycle", template.TemplateID)
	}
	// Kahn's algorithm from the single root.
	indegree := map[string]int{}
	for node := range nodes {
		indegree[node] = len(parents[node])
	}
	order := []string{root}
	queue := []string{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, child := range children[node] {
			indegree[child]--
			if indegree[child] == 0 {
				order = append(order, child)
				queue = append(queue, child)
			}
		}
	}
	if len(order) != len(nodes) {
		return nil, nil, fmt.Errorf("parsing template %s has a connector cycle", template.TemplateID)
	}
	return order, parents, nil
}
