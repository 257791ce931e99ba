// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

package engine

import (
	"os"
	"os/signal"
	"time"
)

// SignalSurface delivers termination intent and tick events into the
// Engine's main loop (spec.md §4.7). Rather than setting flags from a
// signal handler (the C original's only option), Go's os/signal package
// delivers signals onto an ordinary channel — so the Engine's own
// select loop reads it directly, and no separate handler goroutine or
// atomic flag is needed: the single owning goroutine is the one
// blocking in select, exactly as §5 requires.
type SignalSurface struct {
	Signals chan os.Signal
	Ticker  *time.Ticker
}

// NewSignalSurface installs the signal set and 1-second ticker spec.md
// §4.7 calls for. The OS-specific signal list lives in
// signals_unix.go/signals_windows.go (SIGUSR1/SIGUSR2 and SIGPIPE/SIGHUP
// have no Windows equivalent).
func NewSignalSurface() *SignalSurface {
	s := &SignalSurface{
		Signals: make(chan os.Signal, 16),
		Ticker:  time.NewTicker(time.Second),
	}
	registerSignals(s.Signals)
	return s
}

// Stop releases the ticker and signal registration.
func (s *SignalSurface) Stop() {
	s.Ticker.Stop()
	signal.Stop(s.Signals)
}
