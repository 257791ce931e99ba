// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

package engine

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// maxIdleConnsPerHost mirrors the teacher's requester.Work transport
// tuning (requester/requester.go's maxIdleConn constant).
const maxIdleConnsPerHost = 500

// completion is the Driver's "transaction done" event, the one variant
// of the tagged completion record spec.md §9 calls for (the engine never
// needs to distinguish any other message kind).
type completion struct {
	slotID   int
	tx       *transaction
	status   int
	err      error
	duration time.Duration

	reqBytesIn   int64 // bytes written to the wire (request) - see stats.go quirk note
	respBytesOut int64 // bytes read off the wire (response) - see stats.go quirk note

	keepAlive bool // response advertised Connection: keep-alive
}

// Driver is the Transaction Driver of spec.md §6.2: it owns the shared
// HTTP transport(s) and executes transactions asynchronously, reporting
// completions on a channel. There is no separate non-blocking "progress"
// call in Go's net/http model (see SPEC_FULL.md §4.3); each transaction
// runs in its own goroutine and the engine's single select is the
// equivalent suspension point.
type Driver struct {
	cfg     *Config
	shared  *http.Client // used when keep-alive pinning is not in play
	jar     *FileJar     // nil unless --cookie-file was given
	results chan completion
}

// NewDriver builds the shared transport from cfg per spec.md §6.2 and
// SPEC_FULL.md §6.2 (MaxIdleConnsPerHost, DisableCompression, TLS,
// optional HTTP/2 negotiation). jar may be nil.
func NewDriver(cfg *Config, jar *FileJar, results chan completion) *Driver {
	shared := &http.Client{Transport: newTransport(cfg), Timeout: requestTimeout(cfg)}
	if jar != nil {
		shared.Jar = jar
	}
	return &Driver{
		cfg:     cfg,
		shared:  shared,
		jar:     jar,
		results: results,
	}
}

// SaveCookies persists the driver's cookie jar, if one is configured.
func (d *Driver) SaveCookies() error {
	if d.jar == nil {
		return nil
	}
	return d.jar.Save()
}

func requestTimeout(cfg *Config) time.Duration {
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}

func newTransport(cfg *Config) *http.Transport {
	dialer := &net.Dialer{Timeout: time.Duration(cfg.ConnectTimeout) * time.Second}
	if cfg.KeepAliveSeconds > 0 {
		dialer.KeepAlive = time.Duration(cfg.KeepAliveSeconds) * time.Second
	}
	tr := &http.Transport{
		DialContext: dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		DisableCompression:  cfg.DisableCompression,
		DisableKeepAlives:   cfg.KeepAliveSeconds <= 0,
	}
	if cfg.HTTP2 {
		_ = http2.ConfigureTransport(tr)
	} else {
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
	}
	return tr
}

// clientFor returns the *http.Client a transaction on slot should be
// dispatched on: the shared client when keep-alive is disabled,
// otherwise the slot's own pinned client, created on first use.
func (d *Driver) clientFor(slot *Slot) *http.Client {
	if d.cfg.KeepAliveSeconds <= 0 {
		return d.shared
	}
	if slot.client == nil {
		tr := newTransport(d.cfg)
		tr.MaxIdleConnsPerHost = 1
		tr.MaxConnsPerHost = 1
		slot.client = &http.Client{Transport: tr, Timeout: requestTimeout(d.cfg)}
		if d.jar != nil {
			slot.client.Jar = d.jar
		}
	}
	return slot.client
}

// Dispatch starts tx asynchronously and sends exactly one completion on
// d.results when it finishes.
func (d *Driver) Dispatch(ctx context.Context, slot *Slot, tx *transaction) {
	client := d.clientFor(slot)
	go d.run(ctx, slot, tx, client)
}

func (d *Driver) run(ctx context.Context, slot *Slot, tx *transaction, client *http.Client) {
	start := time.Now()
	c := completion{slotID: slot.ID, tx: tx}

	if tx.buildErr != nil {
		// A transaction that could not even be constructed is not
		// sent: its fallback request never goes out, and the completion
		// reports status 0 with the build error straight away.
		c.status = 0
		c.err = tx.buildErr
		c.duration = time.Since(start)
		d.results <- c
		return
	}

	c.reqBytesIn = tx.approxRequestBytes()

	resp, err := client.Do(tx.req)
	c.duration = time.Since(start)

	if err != nil {
		c.status = 0
		c.err = err
	} else {
		c.status = resp.StatusCode
		n, _ := io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		c.respBytesOut = n + approxHeaderBytes(resp.Header)
		c.keepAlive = advertisesKeepAlive(resp.Header)
	}

	if tx.closeUpload != nil {
		_ = tx.closeUpload()
	}

	d.results <- c
}

// advertisesKeepAlive implements spec.md §4.3's "case-insensitive prefix
// match on the header" keep-alive sniff.
func advertisesKeepAlive(h http.Header) bool {
	v := h.Get("Connection")
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "keep-alive")
}

func approxHeaderBytes(h http.Header) int64 {
	var n int64
	for k, vs := range h {
		for _, v := range vs {
			n += int64(len(k) + len(v) + 4) // ": " + CRLF
		}
	}
	return n
}
