// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	hclog "github.com/hashicorp/go-hclog"
)

// transaction is the ephemeral state of one HTTP request/response cycle:
// the request itself and any upload handle that must be closed on
// completion. It is never retained past the completion that reports it
// (spec.md §3); BEGIN/END log tracing is the Engine's responsibility
// (see engine.go), since only the Engine knows the per-slot request
// ordinal spec.md §4.4's log format requires.
type transaction struct {
	id  string
	req *http.Request

	buildErr error // set when the request could not even be constructed

	closeUpload func() error
}

func (t *transaction) approxRequestBytes() int64 {
	if t.req == nil {
		return 0
	}
	n := int64(len(t.req.Method) + len(t.req.URL.RequestURI()) + 12)
	for k, vs := range t.req.Header {
		for _, v := range vs {
			n += int64(len(k) + len(v) + 4)
		}
	}
	if t.req.ContentLength > 0 {
		n += t.req.ContentLength
	}
	return n
}

// Builder materializes one Transaction per spec.md §4.2 from the
// immutable Config, a Slot (for its rotator cursor and log sink), and
// the next URL the Rotator yields. Cookie-jar persistence is a property
// of the Driver's http.Client (its FileJar captures Set-Cookie
// automatically), not of request construction, so the Builder only
// ever deals with the literal --cookie string header.
type Builder struct {
	cfg     *Config
	rotator *Rotator
	log     hclog.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(cfg *Config, rotator *Rotator, log hclog.Logger) *Builder {
	return &Builder{cfg: cfg, rotator: rotator, log: log}
}

// Build constructs the next Transaction for slot, advancing its rotator
// cursor. It never returns a nil transaction: a construction failure
// (e.g. an unreadable upload file) is recorded in buildErr instead, so
// the Driver can still "submit" the transaction and surface status 0.
func (b *Builder) Build(ctx context.Context, slot *Slot) *transaction {
	url := b.rotator.Next(&slot.cursor)

	tx := &transaction{id: uuid.NewString()[:8]}

	method := b.method()
	var body *bytes.Reader
	var contentType string

	switch {
	case len(b.cfg.Form) > 0:
		buf, ct, err := b.buildMultipart()
		if err != nil {
			tx.buildErr = fmt.Errorf("build multipart: %w", err)
			return b.finishEmpty(tx, method, url, slot)
		}
		body = bytes.NewReader(buf)
		contentType = ct

	case b.cfg.UploadFile != "":
		f, size, err := openUpload(b.cfg.UploadFile)
		if err != nil {
			tx.buildErr = fmt.Errorf("open upload file: %w", err)
			return b.finishEmpty(tx, method, url, slot)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, f)
		if err != nil {
			_ = f.Close()
			tx.buildErr = err
			return b.finishEmpty(tx, method, url, slot)
		}
		req.ContentLength = size
		tx.closeUpload = f.Close
		b.applyCommon(req, tx, slot)
		tx.req = req
		return tx

	case len(b.cfg.Body) > 0:
		body = bytes.NewReader(b.cfg.Body)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		tx.buildErr = err
		return tx
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	b.applyCommon(req, tx, slot)
	tx.req = req
	return tx
}

func (b *Builder) finishEmpty(tx *transaction, method, url string, slot *Slot) *transaction {
	req, err := http.NewRequest(method, url, nil)
	if err == nil {
		b.applyCommon(req, tx, slot)
		tx.req = req
	}
	return tx
}

func (b *Builder) method() string {
	if b.cfg.Method != "" {
		return b.cfg.Method
	}
	if len(b.cfg.Body) > 0 || len(b.cfg.Form) > 0 {
		return http.MethodPost
	}
	return http.MethodGet
}

// applyCommon applies headers, cookies, and keep-alive headers shared by
// every construction path.
func (b *Builder) applyCommon(req *http.Request, tx *transaction, slot *Slot) {
	for _, line := range b.cfg.Headers {
		name, value, ok := splitHeaderLine(line)
		if ok {
			req.Header.Set(name, value)
		}
	}

	if b.cfg.Cookie != "" && req.Header.Get("Cookie") == "" {
		req.Header.Set("Cookie", b.cfg.Cookie)
	}

	// spec.md §9 resolves the teacher's source quirk: the Connection/
	// Keep-Alive headers are only synthesized when keep-alive was
	// actually requested, and only if the caller hasn't already set
	// them explicitly.
	if b.cfg.KeepAliveSeconds > 0 {
		if req.Header.Get("Connection") == "" {
			req.Header.Set("Connection", "Keep-alive")
		}
		if req.Header.Get("Keep-Alive") == "" {
			req.Header.Set("Keep-Alive", "timeout="+strconv.Itoa(b.cfg.KeepAliveSeconds))
		}
	}
}

// buildMultipart renders b.cfg.Form into a multipart body. A field that
// declares IsFile but whose file cannot be opened is skipped with a
// warning, per spec.md §4.2; the request still goes out with whatever
// fields did succeed.
func (b *Builder) buildMultipart() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, field := range b.cfg.Form {
		if !field.IsFile {
			if err := w.WriteField(field.Name, field.Value); err != nil {
				return nil, "", err
			}
			continue
		}
		f, err := os.Open(field.Value)
		if err != nil {
			if b.log != nil {
				b.log.Warn("multipart file field unreadable, skipping", "field", field.Name, "path", field.Value, "err", err)
			}
			continue
		}
		fw, err := w.CreateFormFile(field.Name, field.Value)
		if err == nil {
			_, err = io.Copy(fw, f)
		}
		_ = f.Close()
		if err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func openUpload(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	if name == "" {
		return "", "", false
	}
	return name, value, true
}
