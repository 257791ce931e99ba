// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

package engine

import (
	"io"
	"strconv"
	"strings"
)

// FormField is one multipart form field: name=value, or name=@path when
// IsFile is set.
type FormField struct {
	Name   string
	Value  string
	IsFile bool
}

// Config is the immutable run configuration assembled once from the CLI
// and handed to NewEngine. Nothing in the engine mutates it after
// startup.
type Config struct {
	Method  string
	Headers []string // raw "Name: value" lines, applied in order

	Body  []byte      // raw POST/PUT body, mutually exclusive with Form
	Form  []FormField // multipart fields, mutually exclusive with Body

	Cookie        string // literal Cookie header value; sent as-is, never read as a filename
	CookieFile    string // cookie-jar path: read at startup, written at shutdown
	CookieSession bool   // start a fresh session (do not persist across runs)
	Append        bool   // --append flag; echoed by --info, not read when building requests
	UploadFile    string // path of a file to use as the request body

	KeepAliveSeconds int // 0 disables keep-alive advertising
	TimeoutSeconds   int // per-request timeout; default 30
	ConnectTimeout   int // connect timeout; default 10

	URLs    []string
	Weights []int // parallel to URLs; nil means all-1

	Requests    int // 0 = unlimited
	TimeLimit   int // seconds, 0 = unlimited
	Concurrency int // >= 1

	DebugDir string // non-empty enables per-slot debug log files
	Verbose  bool   // driver verbose trace -> stderr

	HTTP2              bool
	DisableCompression bool
	InsecureSkipVerify bool

	// Verb and Debug are not read by the engine: verbose traces go to the
	// logger passed to New, debug traces to the per-slot DebugDir files.
	Verb  io.Writer
	Debug io.Writer
}

// Normalize fills in defaults and clamps out-of-range values the way
// spec.md prescribes (concurrency floor of 1, timeouts' defaults, and
// weight-list back-fill to all-1 when absent).
func (c *Config) Normalize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10
	}
	if len(c.Weights) == 0 && len(c.URLs) > 0 {
		c.Weights = make([]int, len(c.URLs))
		for i := range c.Weights {
			c.Weights[i] = 1
		}
	}
}

// ParseWeights implements the weight string grammar from spec.md §4.1:
// comma/space separated integers; a non-numeric or non-positive token is
// weight 1; a short list is back-filled with 1s up to n.
func ParseWeights(s string, n int) []int {
	weights := make([]int, n)
	for i := range weights {
		weights[i] = 1
	}
	if s == "" {
		return weights
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	for i, f := range fields {
		if i >= n {
			break
		}
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || v <= 0 {
			v = 1
		}
		weights[i] = v
	}
	return weights
}
