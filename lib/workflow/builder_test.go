// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"strings"

	check "gopkg.in/check.v1"

	"github.com/apache/airavata-sub033/lib/task"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/airavatatest"
)

var _ = check.Suite(&builderSuite{})

type builderSuite struct {
	builder *Builder
}

func (s *builderSuite) SetUpTest(c *check.C) {
	s.builder = &Builder{MaxTaskRetries: 3}
}

func makeProcess(models ...airavata.Task) *airavata.Process {
	process := &airavata.Process{
		ProcessID:    "PROCESS_1",
		ExperimentID: "EXP_1",
		Tasks:        models,
	}
	var ids []string
	for _, model := range models {
		ids = append(ids, model.TaskID)
	}
	process.TaskDag = strings.Join(ids, ",")
	return process
}

func envTask(id string) airavata.Task {
	return airavata.Task{TaskID: id, TaskType: airavata.TaskTypeEnvSetup}
}

func stagingTask(id string, dt airavata.DataStagingType) airavata.Task {
	return airavata.Task{
		TaskID:   id,
		TaskType: airavata.TaskTypeDataStaging,
		DataStaging: &airavata.DataStagingTaskModel{
			Type:          dt,
			ProcessInput:  &airavata.InputDataObject{Name: id + "-in"},
			ProcessOutput: &airavata.OutputDataObject{Name: id + "-out"},
		},
	}
}

func submissionTask(id string) airavata.Task {
	return airavata.Task{
		TaskID:        id,
		TaskType:      airavata.TaskTypeJobSubmission,
		JobSubmission: &airavata.JobSubmissionTaskModel{WallTimeLimit: 30},
	}
}

func chainNodes(root *task.Task) []*task.Task {
	var nodes []*task.Task
	for node := root; node != nil; node = node.Next {
		nodes = append(nodes, node)
	}
	return nodes
}

func (s *builderSuite) TestBuildCompleteChain(c *check.C) {
	process := makeProcess(
		envTask("t-env"),
		submissionTask("t-sub"),
		stagingTask("t-out", airavata.DataStagingOutput),
	)
	root, err := s.builder.BuildCompleteChain(process, "gw1")
	c.Assert(err, check.IsNil)

	nodes := chainNodes(root)
	c.Assert(nodes, check.HasLen, 4)
	c.Check(nodes[0].Runner, check.FitsTypeOf, &task.EnvSetup{})
	c.Check(nodes[1].Runner, check.FitsTypeOf, &task.JobSubmission{})
	c.Check(nodes[2].Runner, check.FitsTypeOf, &task.OutputStaging{})
	c.Check(nodes[3].Runner, check.FitsTypeOf, &task.Completing{})
	c.Check(strings.HasPrefix(nodes[3].TaskID, "completing-"), check.Equals, true)

	// Only the synthetic completing task has its status events
	// suppressed; everything carries the retry budget.
	for i, node := range nodes {
		c.Check(node.SkipStatusPublish, check.Equals, i == len(nodes)-1)
		c.Check(node.MaxRetries, check.Equals, 3)
		c.Check(node.ProcessID, check.Equals, "PROCESS_1")
		c.Check(node.ExperimentID, check.Equals, "EXP_1")
		c.Check(node.GatewayID, check.Equals, "gw1")
	}
}

func (s *builderSuite) TestPositionalStagingClassification(c *check.C) {
	// A staging task stored with subtype INPUT but positioned after
	// the job submission stages outputs.
	process := makeProcess(
		submissionTask("t-sub"),
		stagingTask("t-stage", airavata.DataStagingInput),
		stagingTask("t-arch", airavata.DataStagingArchiveOutput),
	)
	root, err := s.builder.BuildCompleteChain(process, "gw1")
	c.Assert(err, check.IsNil)

	nodes := chainNodes(root)
	c.Assert(nodes, check.HasLen, 4)
	c.Check(nodes[1].Runner, check.FitsTypeOf, &task.OutputStaging{})
	c.Check(nodes[2].Runner, check.FitsTypeOf, &task.Archive{})
}

func (s *builderSuite) TestBuildPreChainStopsAtSubmission(c *check.C) {
	process := makeProcess(
		envTask("t-env"),
		stagingTask("t-in", airavata.DataStagingInput),
		submissionTask("t-sub"),
		stagingTask("t-out", airavata.DataStagingOutput),
	)
	root, err := s.builder.BuildPreChain(process, "gw1")
	c.Assert(err, check.IsNil)

	nodes := chainNodes(root)
	c.Assert(nodes, check.HasLen, 3)
	c.Check(nodes[0].Runner, check.FitsTypeOf, &task.EnvSetup{})
	c.Check(nodes[1].Runner, check.FitsTypeOf, &task.InputStaging{})
	c.Check(nodes[2].Runner, check.FitsTypeOf, &task.JobSubmission{})
	for _, node := range nodes {
		c.Check(node.SkipStatusPublish, check.Equals, false)
	}
}

func (s *builderSuite) TestBuildPostChain(c *check.C) {
	process := makeProcess(
		envTask("t-env"),
		submissionTask("t-sub"),
		stagingTask("t-out", airavata.DataStagingInput), // positional: output
		stagingTask("t-arch", airavata.DataStagingArchiveOutput),
	)
	root, err := s.builder.BuildPostChain(process, "gw1")
	c.Assert(err, check.IsNil)

	nodes := chainNodes(root)
	c.Assert(nodes, check.HasLen, 3)
	c.Check(nodes[0].Runner, check.FitsTypeOf, &task.OutputStaging{})
	c.Check(nodes[1].Runner, check.FitsTypeOf, &task.Archive{})
	c.Check(nodes[2].Runner, check.FitsTypeOf, &task.Completing{})
	c.Check(nodes[2].SkipStatusPublish, check.Equals, true)
}

func (s *builderSuite) TestBuildFetchChain(c *check.C) {
	process := makeProcess(
		airavata.Task{
			TaskID:      "t-fetch",
			TaskType:    airavata.TaskTypeOutputFetching,
			DataStaging: &airavata.DataStagingTaskModel{ProcessOutput: &airavata.OutputDataObject{Name: "partial"}},
		},
	)
	root, err := s.builder.BuildFetchChain(process, "gw1")
	c.Assert(err, check.IsNil)

	nodes := chainNodes(root)
	c.Assert(nodes, check.HasLen, 1)
	c.Check(nodes[0].Runner, check.FitsTypeOf, &task.OutputFetching{})
	// No completing task: an intermediate fetch must not mark the
	// process completed.
	c.Check(nodes[0].SkipStatusPublish, check.Equals, false)
}

func (s *builderSuite) TestDagReferencesUnknownTask(c *check.C) {
	process := makeProcess(envTask("t-env"))
	process.TaskDag = "t-env,t-missing"
	_, err := s.builder.BuildCompleteChain(process, "gw1")
	c.Check(err, check.ErrorMatches, `.*t-missing.*not in task list`)
}

func template(connections ...airavata.ParserConnector) *airavata.ParsingTemplate {
	return &airavata.ParsingTemplate{
		TemplateID:        "tmpl1",
		GatewayID:         "gw1",
		ParserConnections: connections,
	}
}

func connect(parent, child string) airavata.ParserConnector {
	return airavata.ParserConnector{ConnectorID: parent + ">" + child, ParentParserID: parent, ChildParserID: child}
}

func (s *builderSuite) TestParserOrderLinear(c *check.C) {
	order, parents, err := parserOrder(template(connect("p1", "p2"), connect("p2", "p3")))
	c.Assert(err, check.IsNil)
	c.Check(order, check.DeepEquals, []string{"p1", "p2", "p3"})
	c.Check(parents["p3"], check.DeepEquals, []string{"p2"})
}

func (s *builderSuite) TestParserOrderDiamond(c *check.C) {
	order, _, err := parserOrder(template(
		connect("p1", "p2"), connect("p1", "p3"),
		connect("p2", "p4"), connect("p3", "p4"),
	))
	c.Assert(err, check.IsNil)
	c.Assert(order, check.HasLen, 4)
	c.Check(order[0], check.Equals, "p1")
	c.Check(order[3], check.Equals, "p4")
}

func (s *builderSuite) TestParserOrderErrors(c *check.C) {
	_, _, err := parserOrder(template())
	c.Check(err, check.ErrorMatches, `.*no parser connections`)

	_, _, err = parserOrder(template(connect("p1", "p3"), connect("p2", "p3")))
	c.Check(err, check.ErrorMatches, `.*multiple root parsers.*`)

	_, _, err = parserOrder(template(connect("p1", "p2"), connect("p2", "p1")))
	c.Check(err, check.ErrorMatches, `.*connector cycle`)
}

func (s *builderSuite) TestBuildParserChain(c *check.C) {
	registry := airavatatest.NewStubRegistry()
	registry.Parsers["p1"] = &airavata.Parser{
		ParserID:  "p1",
		GatewayID: "gw1",
		InputFiles: []airavata.ParserInput{
			{ParserInputID: "p1-in", Name: "raw", RequiredInput: true},
		},
		OutputFiles: []airavata.ParserOutput{
			{ParserOutputID: "p1-out", Name: "energies"},
		},
	}
	registry.Parsers["p2"] = &airavata.Parser{
		ParserID:  "p2",
		GatewayID: "gw1",
		InputFiles: []airavata.ParserInput{
			{ParserInputID: "p2-in", Name: "energies", RequiredInput: true},
		},
		OutputFiles: []airavata.ParserOutput{
			{ParserOutputID: "p2-out", Name: "summary"},
		},
	}
	tmpl := template(connect("p1", "p2"))
	tmpl.InitialInputs = []airavata.ParsingTemplateInput{
		{TargetParserInputID: "p1-in", ContextVariable: "experiment/output"},
	}
	process := &airavata.Process{ProcessID: "PROCESS_1", ExperimentID: "EXP_1"}

	root, err := s.builder.BuildParserChain(context.Background(), registry, process, tmpl, map[string]string{"experiment/output": "/data/raw.log"})
	c.Assert(err, check.IsNil)

	nodes := chainNodes(root)
	c.Assert(nodes, check.HasLen, 2)
	c.Check(strings.HasPrefix(nodes[0].TaskID, "parse-p1-"), check.Equals, true)
	c.Check(strings.HasPrefix(nodes[1].TaskID, "parse-p2-"), check.Equals, true)

	first, ok := nodes[0].Runner.(*task.DataParsing)
	c.Assert(ok, check.Equals, true)
	c.Check(first.Model.InputMapping, check.DeepEquals, map[string]string{"p1-in": "experiment/output"})
	c.Check(first.Model.ContextOutputs, check.DeepEquals, map[string]string{"p1-out": "p1/energies"})

	second, ok := nodes[1].Runner.(*task.DataParsing)
	c.Assert(ok, check.Equals, true)
	// The child's same-named input binds to the parent's output
	// variable.
	c.Check(second.Model.InputMapping, check.DeepEquals, map[string]string{"p2-in": "p1/energies"})
	c.Check(second.Model.ContextOutputs, check.DeepEquals, map[string]string{"p2-out": "p2/summary"})

	// Both tasks share one variable store, seeded with the initial
	// context.
	c.Check(first.Vars, check.Equals, second.Vars)
	value, ok := first.Vars.Get("experiment/output")
	c.Check(ok, check.Equals, true)
	c.Check(value, check.Equals, "/data/raw.log")
}
