// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

package engine

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestFileJarSetAndGetCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	jar, err := NewFileJar(path, false)
	if err != nil {
		t.Fatalf("NewFileJar: %v", err)
	}

	u := mustURL(t, "http://example.com/")
	jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "abc"}})

	got := jar.Cookies(u)
	if len(got) != 1 || got[0].Name != "session" || got[0].Value != "abc" {
		t.Fatalf("Cookies() = %+v, want one session=abc cookie", got)
	}
}

func TestFileJarSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	jar, err := NewFileJar(path, false)
	if err != nil {
		t.Fatalf("NewFileJar: %v", err)
	}

	u := mustURL(t, "http://example.com/")
	jar.SetCookies(u, []*http.Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}})
	if err := jar.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := NewFileJar(path, false)
	if err != nil {
		t.Fatalf("NewFileJar reload: %v", err)
	}
	got := reloaded.Cookies(u)
	if len(got) != 2 {
		t.Fatalf("reloaded jar has %d cookies, want 2", len(got))
	}
}

func TestFileJarSessionModeNeverPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	jar, err := NewFileJar(path, true)
	if err != nil {
		t.Fatalf("NewFileJar: %v", err)
	}

	u := mustURL(t, "http://example.com/")
	jar.SetCookies(u, []*http.Cookie{{Name: "a", Value: "1"}})
	if err := jar.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("session jar should never write %s, stat err = %v", path, err)
	}
}

func TestFileJarSetCookiesDedupesByName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	jar, _ := NewFileJar(path, false)
	u := mustURL(t, "http://example.com/")

	jar.SetCookies(u, []*http.Cookie{{Name: "a", Value: "1"}})
	jar.SetCookies(u, []*http.Cookie{{Name: "a", Value: "2"}})

	got := jar.Cookies(u)
	if len(got) != 1 || got[0].Value != "2" {
		t.Fatalf("expected a single updated cookie, got %+v", got)
	}
}

func TestFileJarMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.txt")
	if _, err := NewFileJar(path, false); err != nil {
		t.Fatalf("NewFileJar on missing file: %v", err)
	}
}
