// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
)

func newTestBuilder(cfg *Config) *Builder {
	cfg.Normalize()
	rotator := NewRotator(cfg.URLs, cfg.Weights)
	return NewBuilder(cfg, rotator, hclog.NewNullLogger())
}

func TestBuilderDefaultsToGET(t *testing.T) {
	cfg := &Config{URLs: []string{"http://example.com/"}}
	b := newTestBuilder(cfg)
	slot := newSlot(0)

	tx := b.Build(context.Background(), slot)
	if tx.buildErr != nil {
		t.Fatalf("unexpected buildErr: %v", tx.buildErr)
	}
	if tx.req.Method != "GET" {
		t.Fatalf("method = %q, want GET", tx.req.Method)
	}
}

func TestBuilderBodyImpliesPOST(t *testing.T) {
	cfg := &Config{URLs: []string{"http://example.com/"}, Body: []byte("hello")}
	b := newTestBuilder(cfg)
	slot := newSlot(0)

	tx := b.Build(context.Background(), slot)
	if tx.req.Method != "POST" {
		t.Fatalf("method = %q, want POST", tx.req.Method)
	}
	if tx.req.ContentLength != 5 {
		t.Fatalf("ContentLength = %d, want 5", tx.req.ContentLength)
	}
}

func TestBuilderExplicitMethodWins(t *testing.T) {
	cfg := &Config{URLs: []string{"http://example.com/"}, Body: []byte("x"), Method: "PUT"}
	b := newTestBuilder(cfg)
	slot := newSlot(0)

	tx := b.Build(context.Background(), slot)
	if tx.req.Method != "PUT" {
		t.Fatalf("method = %q, want PUT", tx.req.Method)
	}
}

func TestBuilderAppliesHeadersAndCookie(t *testing.T) {
	cfg := &Config{
		URLs:    []string{"http://example.com/"},
		Headers: []string{"X-Test: one", "X-Other:  two "},
		Cookie:  "session=abc",
	}
	b := newTestBuilder(cfg)
	slot := newSlot(0)

	tx := b.Build(context.Background(), slot)
	if got := tx.req.Header.Get("X-Test"); got != "one" {
		t.Errorf("X-Test = %q, want one", got)
	}
	if got := tx.req.Header.Get("X-Other"); got != "two" {
		t.Errorf("X-Other = %q, want two", got)
	}
	if got := tx.req.Header.Get("Cookie"); got != "session=abc" {
		t.Errorf("Cookie = %q, want session=abc", got)
	}
}

func TestBuilderKeepAliveHeadersOnlyWhenEnabled(t *testing.T) {
	cfg := &Config{URLs: []string{"http://example.com/"}}
	b := newTestBuilder(cfg)
	slot := newSlot(0)
	tx := b.Build(context.Background(), slot)
	if tx.req.Header.Get("Connection") != "" {
		t.Fatalf("Connection header should be absent when keepalive disabled")
	}

	cfg2 := &Config{URLs: []string{"http://example.com/"}, KeepAliveSeconds: 30}
	b2 := newTestBuilder(cfg2)
	tx2 := b2.Build(context.Background(), newSlot(0))
	if tx2.req.Header.Get("Connection") == "" {
		t.Fatalf("Connection header should be set when keepalive enabled")
	}
	if tx2.req.Header.Get("Keep-Alive") != "timeout=30" {
		t.Fatalf("Keep-Alive = %q, want timeout=30", tx2.req.Header.Get("Keep-Alive"))
	}
}

func TestBuilderUploadFileSetsBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(path, []byte("payload-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := &Config{URLs: []string{"http://example.com/"}, UploadFile: path}
	b := newTestBuilder(cfg)
	slot := newSlot(0)

	tx := b.Build(context.Background(), slot)
	if tx.buildErr != nil {
		t.Fatalf("unexpected buildErr: %v", tx.buildErr)
	}
	if tx.req.ContentLength != int64(len("payload-bytes")) {
		t.Fatalf("ContentLength = %d, want %d", tx.req.ContentLength, len("payload-bytes"))
	}
	if tx.closeUpload == nil {
		t.Fatalf("expected closeUpload to be set for an upload-file transaction")
	}
	_ = tx.closeUpload()
}

func TestBuilderUploadFileMissingSurfacesBuildErr(t *testing.T) {
	cfg := &Config{URLs: []string{"http://example.com/"}, UploadFile: "/no/such/file"}
	b := newTestBuilder(cfg)
	slot := newSlot(0)

	tx := b.Build(context.Background(), slot)
	if tx.buildErr == nil {
		t.Fatalf("expected buildErr for a missing upload file")
	}
	if tx.req == nil {
		t.Fatalf("a build-error transaction should still carry a fallback request")
	}
}

func TestBuilderMultipartFormSkipsUnreadableFileField(t *testing.T) {
	cfg := &Config{
		URLs: []string{"http://example.com/"},
		Form: []FormField{
			{Name: "name", Value: "gopher"},
			{Name: "avatar", Value: "/no/such/file", IsFile: true},
		},
	}
	b := newTestBuilder(cfg)
	slot := newSlot(0)

	tx := b.Build(context.Background(), slot)
	if tx.buildErr != nil {
		t.Fatalf("unexpected buildErr: %v", tx.buildErr)
	}
	ct := tx.req.Header.Get("Content-Type")
	if ct == "" {
		t.Fatalf("expected multipart Content-Type to be set")
	}
}

func TestRotatorAdvancesAcrossBuilds(t *testing.T) {
	cfg := &Config{URLs: []string{"http://a.example/", "http://b.example/"}}
	b := newTestBuilder(cfg)
	slot := newSlot(0)

	first := b.Build(context.Background(), slot)
	second := b.Build(context.Background(), slot)
	if first.req.URL.Host == second.req.URL.Host {
		t.Fatalf("expected rotator to advance between builds on the same slot")
	}
}
