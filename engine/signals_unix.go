// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

//go:build !windows

package engine

import (
	"os"
	"os/signal"
	"syscall"
)

// registerSignals wires SIGINT/SIGTERM/SIGQUIT/SIGUSR1/SIGUSR2 as soft
// stop triggers and ignores SIGPIPE/SIGHUP, per spec.md §4.7.
func registerSignals(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGUSR1, syscall.SIGUSR2)
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
}
