// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

// Package config renders a parsed engine.Config back out as YAML for the
// --info flag (spec.md §6.1): a way to confirm what the flags actually
// resolved to before committing to a run.
package config

import (
	"gopkg.in/yaml.v2"

	"github.com/bpowers/multihit/engine"
)

// echoDoc mirrors engine.Config's fields under yaml-friendly names; it
// exists separately from Config so the wire shape (and field order) is
// stable regardless of how Config itself is refactored.
type echoDoc struct {
	Method string   `yaml:"method"`
	URLs   []string `yaml:"urls"`
	Weights []int   `yaml:"weights"`

	Headers []string `yaml:"headers,omitempty"`
	Body    string   `yaml:"body,omitempty"`
	Form    []formDoc `yaml:"form,omitempty"`

	Cookie        string `yaml:"cookie,omitempty"`
	CookieFile    string `yaml:"cookie_file,omitempty"`
	CookieSession bool   `yaml:"cookie_session,omitempty"`
	Append        bool   `yaml:"append,omitempty"`
	UploadFile    string `yaml:"upload_file,omitempty"`

	KeepAliveSeconds int `yaml:"keepalive_seconds"`
	TimeoutSeconds   int `yaml:"timeout_seconds"`
	ConnectTimeout   int `yaml:"connect_timeout_seconds"`

	Requests    int `yaml:"requests"`
	TimeLimit   int `yaml:"timelimit_seconds"`
	Concurrency int `yaml:"concurrency"`

	DebugDir string `yaml:"debug_dir,omitempty"`
	Verbose  bool   `yaml:"verbose,omitempty"`

	HTTP2              bool `yaml:"http2,omitempty"`
	DisableCompression bool `yaml:"disable_compression,omitempty"`
	InsecureSkipVerify bool `yaml:"insecure,omitempty"`
}

type formDoc struct {
	Name   string `yaml:"name"`
	Value  string `yaml:"value"`
	IsFile bool   `yaml:"is_file,omitempty"`
}

// Echo renders cfg as YAML, normalizing it first so the echo reflects
// the defaults a real run would actually use.
func Echo(cfg *engine.Config) (string, error) {
	cfg.Normalize()

	doc := echoDoc{
		Method:             cfg.Method,
		URLs:               cfg.URLs,
		Weights:            cfg.Weights,
		Headers:            cfg.Headers,
		Body:               string(cfg.Body),
		Cookie:             cfg.Cookie,
		CookieFile:         cfg.CookieFile,
		CookieSession:      cfg.CookieSession,
		Append:             cfg.Append,
		UploadFile:         cfg.UploadFile,
		KeepAliveSeconds:   cfg.KeepAliveSeconds,
		TimeoutSeconds:     cfg.TimeoutSeconds,
		ConnectTimeout:     cfg.ConnectTimeout,
		Requests:           cfg.Requests,
		TimeLimit:          cfg.TimeLimit,
		Concurrency:        cfg.Concurrency,
		DebugDir:           cfg.DebugDir,
		Verbose:            cfg.Verbose,
		HTTP2:              cfg.HTTP2,
		DisableCompression: cfg.DisableCompression,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	for _, f := range cfg.Form {
		doc.Form = append(doc.Form, formDoc{Name: f.Name, Value: f.Value, IsFile: f.IsFile})
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
