// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

//go:build windows

package engine

import (
	"os"
	"os/signal"
)

// registerSignals installs the subset of spec.md §4.7's signal set that
// exists on Windows; SIGUSR1/SIGUSR2/SIGPIPE/SIGHUP have no equivalent
// there.
func registerSignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
