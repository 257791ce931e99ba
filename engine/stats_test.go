// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

package engine

import (
	"testing"
	"time"
)

func TestLatencyRingMinAvgMax(t *testing.T) {
	var ring LatencyRing
	samples := []time.Duration{
		10 * time.Millisecond,
		50 * time.Millisecond,
		30 * time.Millisecond,
	}
	for i, d := range samples {
		ring.Add(i, d)
	}

	min, avg, max := ring.MinAvgMax()
	if min != 10*time.Millisecond {
		t.Errorf("min = %v, want 10ms", min)
	}
	if max != 50*time.Millisecond {
		t.Errorf("max = %v, want 50ms", max)
	}
	wantAvg := (10 + 50 + 30) * time.Millisecond / 3
	if avg != wantAvg {
		t.Errorf("avg = %v, want %v", avg, wantAvg)
	}
}

func TestLatencyRingEmpty(t *testing.T) {
	var ring LatencyRing
	min, avg, max := ring.MinAvgMax()
	if min != 0 || avg != 0 || max != 0 {
		t.Fatalf("empty ring should report zeros, got min=%v avg=%v max=%v", min, avg, max)
	}
}

func TestLatencyRingWrapsAtCapacity(t *testing.T) {
	var ring LatencyRing
	for i := 0; i < latencyRingCap+5; i++ {
		ring.Add(i, time.Duration(i)*time.Millisecond)
	}
	if ring.filled != latencyRingCap {
		t.Fatalf("filled = %d, want %d", ring.filled, latencyRingCap)
	}
	// the oldest 5 samples (0..4ms) should have been overwritten by the
	// wraparound writes (cap..cap+4ms).
	min, _, max := ring.MinAvgMax()
	if min != 5*time.Millisecond {
		t.Errorf("min after wrap = %v, want 5ms", min)
	}
	if max != time.Duration(latencyRingCap+4)*time.Millisecond {
		t.Errorf("max after wrap = %v, want %v", max, time.Duration(latencyRingCap+4)*time.Millisecond)
	}
}

func TestCountersClassifyStatus(t *testing.T) {
	var c Counters
	statuses := []int{0, 101, 200, 301, 404, 503, 600, 999}
	for _, s := range statuses {
		c.ClassifyStatus(s)
	}
	if c.Count0xx != 1 || c.Count1xx != 1 || c.Count2xx != 1 || c.Count3xx != 1 ||
		c.Count4xx != 1 || c.Count5xx != 1 || c.CountOther != 2 {
		t.Fatalf("unexpected bucket counts: %+v", c)
	}
	if got := c.TotalStatus(); got != int64(len(statuses)) {
		t.Fatalf("TotalStatus = %d, want %d", got, len(statuses))
	}
}

func TestCountersSnapshotComputesDeltaAndRotates(t *testing.T) {
	var c Counters
	c.ReqBytesIn = 100
	c.RespBytesOut = 200
	c.DebugBytes = 10
	c.EndReqs = 5

	d := c.Snapshot()
	if d.reqBytesIn != 100 || d.respBytesOut != 200 || d.debugBytes != 10 || d.reqsPerSec != 5 {
		t.Fatalf("first snapshot delta = %+v, want full totals", d)
	}

	c.ReqBytesIn = 150
	c.EndReqs = 8
	d2 := c.Snapshot()
	if d2.reqBytesIn != 50 {
		t.Fatalf("second snapshot reqBytesIn delta = %d, want 50", d2.reqBytesIn)
	}
	if d2.reqsPerSec != 3 {
		t.Fatalf("second snapshot reqsPerSec delta = %d, want 3", d2.reqsPerSec)
	}
	if d2.respBytesOut != 0 || d2.debugBytes != 0 {
		t.Fatalf("unchanged counters should have zero delta, got %+v", d2)
	}
}
