// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"sort"
	"strings"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

type pgConfig map[string]string

func (c pgConfig) ConnectionString() string {
	s := ""
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s += k
		s += "='"
		s += strings.Replace(strings.Replace(c[k], `\`, `\\`, -1), `'`, `\'`, -1)
		s += "' "
	}
	return s
}

type Config struct {
	Listen    string
	LogLevel  string
	LogFormat string

	Postgres pgConfig

	Registry struct {
		APIHost   string
		AuthToken string
	}
	AgentService struct {
		BaseURL   string
		AuthToken string
	}

	EventQueue     int
	MaxTaskRetries int
	RequestTimeout airavata.Duration
}

func DefaultConfig() Config {
	cfg := Config{
		Listen:    ":8940",
		LogLevel:  "info",
		LogFormat: "json",
		Postgres: pgConfig{
			"dbname":          "airavata",
			"user":            "airavata",
			"password":        "xyzzy",
			"host":            "localhost",
			"connect_timeout": "30",
			"sslmode":         "require",
		},
		EventQueue:     64,
		MaxTaskRetries: 3,
		RequestTimeout: airavata.Duration(60e9),
	}
	cfg.Registry.APIHost = "localhost:8930"
	cfg.AgentService.BaseURL = "https://localhost:8941"
	return cfg
}
