// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

// Package engine implements the concurrent request engine: a fixed-size
// pool of in-flight HTTP transactions rotating through a weighted URL
// set, recycled on completion until a termination condition is met,
// accumulating statistics and emitting a periodic report. See
// SPEC_FULL.md §4.3 for the Go realization of the original curl-multi
// event loop this package ports.
package engine

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/paulbellamy/ratecounter"
)

// Engine is the central dispatcher of spec.md §2/§4.3: it owns the slot
// pool and the Driver, drives progress, harvests completions, applies
// the recycle-vs-retire decision, invokes the Reporter, and enforces
// termination.
type Engine struct {
	cfg     *Config
	log     hclog.Logger
	rotator *Rotator
	builder *Builder
	driver  *Driver
	sig     *SignalSurface
	report  *Reporter

	slots       []*Slot
	activeSlots int
	keepalives  int

	counters Counters
	ring     LatencyRing

	beginReqs int
	endReqs   int
	runFlag   bool
	tickFlag  bool

	deadline time.Time
	hasLimit bool

	results chan completion

	smoothedRPS *ratecounter.RateCounter
}

// New builds an Engine from cfg. Nothing here starts goroutines or
// opens sockets beyond what constructing the Driver's transports
// requires; Run does the rest.
func New(cfg *Config, log hclog.Logger) (*Engine, error) {
	cfg.Normalize()
	if log == nil {
		log = hclog.NewNullLogger()
	}

	var jar *FileJar
	if cfg.CookieFile != "" {
		var err error
		jar, err = NewFileJar(cfg.CookieFile, cfg.CookieSession)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
	}

	rotator := NewRotator(cfg.URLs, cfg.Weights)
	builder := NewBuilder(cfg, rotator, log.Named("builder"))

	results := make(chan completion, cfg.Concurrency*2+8)
	driver := NewDriver(cfg, jar, results)

	e := &Engine{
		cfg:         cfg,
		log:         log,
		rotator:     rotator,
		builder:     builder,
		driver:      driver,
		sig:         NewSignalSurface(),
		report:      NewReporter(os.Stdout, IsStdoutTTY()),
		results:     results,
		runFlag:     true,
		smoothedRPS: ratecounter.NewRateCounter(5 * time.Second),
	}

	if cfg.TimeLimit > 0 {
		e.hasLimit = true
		e.deadline = time.Now().Add(time.Duration(cfg.TimeLimit) * time.Second)
	}

	return e, nil
}

// SmoothedRPS is the ADDED internal gauge described in SPEC_FULL.md
// §4.6: a longer-window request rate, independent of the stable
// per-tick report line.
func (e *Engine) SmoothedRPS() float64 {
	return float64(e.smoothedRPS.Rate()) / 5
}

// Run executes the engine to completion: init, main loop, cleanup. It
// blocks until every slot has retired.
func (e *Engine) Run(ctx context.Context) error {
	defer e.sig.Stop()
	defer e.cleanup()

	if err := e.init(ctx); err != nil {
		return err
	}

	for e.activeSlots > 0 {
		select {
		case c := <-e.results:
			e.harvest(ctx, c)
			e.drainReady(ctx)

		case <-e.sig.Ticker.C:
			e.tickFlag = true

		case <-e.sig.Signals:
			e.runFlag = false
		}

		if e.tickFlag || e.activeSlots == 0 {
			e.maybeReport()
			e.tickFlag = false
		}
	}

	return nil
}

// init creates the slot pool and dispatches each slot's first
// transaction, per spec.md §4.3's Initialization steps 1-3.
func (e *Engine) init(ctx context.Context) error {
	concurrency := e.cfg.Concurrency
	if e.cfg.Requests > 0 && e.cfg.Requests < concurrency {
		concurrency = e.cfg.Requests
	}

	width := digitWidth(concurrency)
	e.slots = make([]*Slot, concurrency)
	for i := 0; i < concurrency; i++ {
		slot := newSlot(i)
		if e.cfg.DebugDir != "" {
			if err := e.openDebugSink(slot, width); err != nil {
				e.log.Warn("could not open debug sink, continuing without it", "slot", i, "err", err)
			}
		} else if e.cfg.Verbose {
			slot.log = e.log.Named(fmt.Sprintf("slot-%d", i))
		}
		e.slots[i] = slot
		e.dispatch(ctx, slot)
	}

	e.beginReqs = concurrency
	e.endReqs = 0
	e.activeSlots = concurrency
	return nil
}

// dispatch builds and submits the next transaction for slot and writes
// the BEGIN trace line, per spec.md §4.4.
func (e *Engine) dispatch(ctx context.Context, slot *Slot) {
	e.ensureDebugSink(slot)

	tx := e.builder.Build(ctx, slot)
	slot.state = slotInFlight
	slot.inFlightStart = time.Now()

	if slot.log != nil {
		line := fmt.Sprintf("%s * BEGIN %dst REQUEST [%s]", slot.inFlightStart.Format(time.RFC3339Nano), slot.reqsCompleted+1, tx.id)
		slot.log.Debug(line)
		e.counters.DebugBytes += int64(len(line))
	}

	e.driver.Dispatch(ctx, slot, tx)
}

// ensureDebugSink implements spec.md §4.4's "reopen in truncate mode if
// the debug file disappeared between requests" edge case: an existence
// probe on the previously-opened path, reopening via openDebugSink on a
// miss. A no-op for slots with no debug sink configured at all.
func (e *Engine) ensureDebugSink(slot *Slot) {
	if slot.log == nil || slot.debugPath == "" {
		return
	}
	if _, err := os.Stat(slot.debugPath); os.IsNotExist(err) {
		slot.closeLog()
		if err := e.openDebugSink(slot, slot.debugWidth); err != nil {
			e.log.Warn("could not reopen debug sink, continuing without it", "slot", slot.ID, "err", err)
		}
	}
}

// drainReady drains every already-ready completion before the loop goes
// back to sleep, mirroring spec.md §4.3's `do { ... } while(msgs)` drain.
func (e *Engine) drainReady(ctx context.Context) {
	for {
		select {
		case c := <-e.results:
			e.harvest(ctx, c)
		default:
			return
		}
	}
}

// harvest processes one completion: status classification, keep-alive
// bookkeeping, latency recording, and the recycle-vs-retire decision.
// This is the only place Counters/LatencyRing/Slot state are mutated,
// which is what lets them go without locks (spec.md §5).
func (e *Engine) harvest(ctx context.Context, c completion) {
	slot := e.slots[c.slotID]

	elapsed := time.Since(slot.inFlightStart)

	if c.keepAlive {
		if !slot.hasConn {
			slot.hasConn = true
			e.keepalives++
		}
	} else {
		if slot.hasConn {
			slot.hasConn = false
			e.keepalives--
		}
		slot.dropConn()
	}

	e.counters.ClassifyStatus(c.status)
	e.counters.ReqBytesIn += c.reqBytesIn
	e.counters.RespBytesOut += c.respBytesOut

	e.ring.Add(e.endReqs, elapsed)
	e.endReqs++
	e.counters.EndReqs = e.endReqs
	e.smoothedRPS.Incr(1)

	slot.reqsCompleted++

	if slot.log != nil {
		id := ""
		if c.tx != nil {
			id = c.tx.id
		}
		line := fmt.Sprintf("%s * END %dst REQUEST - %.6f [%s]", time.Now().Format(time.RFC3339Nano), slot.reqsCompleted, elapsed.Seconds(), id)
		slot.log.Debug(line)
		e.counters.DebugBytes += int64(len(line))
	}

	if e.shouldContinue() {
		e.beginReqs++
		e.counters.BeginReqs = e.beginReqs
		e.dispatch(ctx, slot)
		return
	}

	e.retire(slot)
}

// shouldContinue implements spec.md §4.7's termination predicate.
func (e *Engine) shouldContinue() bool {
	if !e.runFlag {
		return false
	}
	if e.cfg.Requests > 0 && e.beginReqs >= e.cfg.Requests {
		return false
	}
	if e.hasLimit && time.Now().After(e.deadline) {
		return false
	}
	return true
}

func (e *Engine) retire(slot *Slot) {
	slot.state = slotRetired
	if slot.hasConn {
		slot.hasConn = false
		e.keepalives--
	}
	slot.dropConn()
	slot.closeLog()
	e.activeSlots--
}

// maybeReport emits one report line, per spec.md §4.6. "Termination has
// begun" (for the TTY clear-line prefix) means the soft stop has been
// requested, not merely that this is the last line.
func (e *Engine) maybeReport() {
	min, avg, max := e.ring.MinAvgMax()
	d := e.counters.Snapshot()
	e.report.Emit(reportLine{
		concurrency:  e.activeSlots,
		keepalives:   e.keepalives,
		c0:           e.counters.Count0xx,
		c1:           e.counters.Count1xx,
		c2:           e.counters.Count2xx,
		c3:           e.counters.Count3xx,
		c4:           e.counters.Count4xx,
		c5:           e.counters.Count5xx,
		cx:           e.counters.CountOther,
		reqsPerSec:   d.reqsPerSec,
		reqBytesIn:   d.reqBytesIn,
		respBytesOut: d.respBytesOut,
		debugBytes:   d.debugBytes,
		min:          min.Milliseconds(),
		avg:          avg.Milliseconds(),
		max:          max.Milliseconds(),
		terminating:  !e.runFlag,
	})
}

func (e *Engine) cleanup() {
	for _, slot := range e.slots {
		slot.dropConn()
		slot.closeLog()
	}
	if err := e.driver.SaveCookies(); err != nil {
		e.log.Error("could not save cookie jar", "err", err)
	}
}

// openDebugSink creates (truncating) the per-slot debug file described
// in spec.md §4.4. ensureDebugSink calls it again when the file has
// disappeared between requests.
func (e *Engine) openDebugSink(slot *Slot, width int) error {
	if err := os.MkdirAll(e.cfg.DebugDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(e.cfg.DebugDir, fmt.Sprintf(".debug-%0*d.log", width, slot.ID))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	slot.logSink = f
	slot.debugPath = path
	slot.debugWidth = width
	slot.log = hclog.New(&hclog.LoggerOptions{
		Name:       fmt.Sprintf("slot-%d", slot.ID),
		Output:     io.Writer(f),
		Level:      hclog.Debug,
		JSONFormat: false,
	})
	return nil
}

// digitWidth is ceil(log10(n+1)), per spec.md §4.4's debug filename
// width rule.
func digitWidth(n int) int {
	if n < 1 {
		n = 1
	}
	return int(math.Ceil(math.Log10(float64(n + 1))))
}
