// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package airavata

// ParserInput is one declared input of a parser.
type ParserInput struct {
	ParserInputID string `json:"parser_input_id"`
	Name          string `json:"name"`
	RequiredInput bool   `json:"required_input,omitempty"`
}

// ParserOutput is one declared output of a parser.
type ParserOutput struct {
	ParserOutputID string `json:"parser_output_id"`
	Name           string `json:"name"`
}

// Parser describes a registered data parser.
type Parser struct {
	ParserID      string         `json:"parser_id"`
	GatewayID     string         `json:"gateway_id"`
	ImageName     string         `json:"image_name,omitempty"`
	InputFiles    []ParserInput  `json:"input_files,omitempty"`
	OutputFiles   []ParserOutput `json:"output_files,omitempty"`
}

// ParserConnector is a parent→child edge between two parsers in a
// parsing template: outputs of the parent feed inputs of the child.
type ParserConnector struct {
	ConnectorID    string `json:"connector_id"`
	ParentParserID string `json:"parent_parser_id"`
	ChildParserID  string `json:"child_parser_id"`
}

// ParsingTemplateInput binds one input of the template's root parser
// either to a literal/expression value or to a named context variable.
type ParsingTemplateInput struct {
	TargetParserInputID string `json:"target_parser_input_id"`
	Value               string `json:"value,omitempty"`      // literal or expression applied to experiment outputs
	ContextVariable     string `json:"context_variable,omitempty"` // variable produced by a parent output
}

// ParsingTemplate describes a data-parsing sub-workflow for the
// outputs of one application interface. Unlike primary task chains,
// parsing templates form a true DAG via ParserConnections.
type ParsingTemplate struct {
	TemplateID             string                 `json:"template_id"`
	GatewayID              string                 `json:"gateway_id"`
	ApplicationInterfaceID string                 `json:"application_interface_id"`
	InitialInputs          []ParsingTemplateInput `json:"initial_inputs,omitempty"`
	ParserConnections      []ParserConnector      `json:"parser_connections,omitempty"`
}
