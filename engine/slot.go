// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

package engine

import (
	"io"
	"net/http"
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

type slotState int

const (
	slotIdle slotState = iota
	slotInFlight
	slotRetired
)

// Slot is a long-lived execution lane. It survives across many
// Transactions and, when keep-alive is active, carries a reusable
// connection between them.
//
// A raw net.Conn cannot be pulled out of net/http cleanly, so the
// "reusable_connection" of spec.md §3 is realized as a dedicated
// *http.Client/*http.Transport pair pinned to this slot with
// MaxConnsPerHost/MaxIdleConnsPerHost capped at 1: as long as the
// transport's idle connection is left open, the next request dispatched
// through this slot's client reuses it for free via the transport's own
// pool. Dropping the connection is then just CloseIdleConnections.
type Slot struct {
	ID int

	state  slotState
	cursor Cursor

	reqsCompleted int
	inFlightStart time.Time

	// client is non-nil only once this slot has dispatched at least one
	// keep-alive-eligible request; hasConn tracks whether its transport
	// currently holds a live idle connection (spec.md's "non-null only
	// if the previous response advertised keep-alive" condition).
	client  *http.Client
	hasConn bool

	logSink    io.WriteCloser // per-slot debug file, or nil
	log        hclog.Logger
	debugPath  string // path used to detect "disappeared between requests"
	debugWidth int    // NNN digit width, needed to recompute debugPath on reopen
}

func newSlot(id int) *Slot {
	return &Slot{ID: id, state: slotIdle}
}

// dropConn discards any reusable connection held by the slot. Safe to
// call when none is held.
func (s *Slot) dropConn() {
	if s.client != nil {
		if tr, ok := s.client.Transport.(*http.Transport); ok {
			tr.CloseIdleConnections()
		}
	}
	s.hasConn = false
}

func (s *Slot) closeLog() {
	if s.logSink != nil {
		_ = s.logSink.Close()
		s.logSink = nil
	}
}
