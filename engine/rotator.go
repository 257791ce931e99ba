// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

package engine

// Cursor is a per-slot rotator position. It is owned by the Slot, not
// the Rotator, so that each slot gets an independent, reproducible
// sequence.
type Cursor struct {
	I int // next URL index
	W int // repetitions already emitted at index I
}

// Rotator is a stateless, weighted round-robin selector over an
// immutable URL list. The URL at index i is yielded weights[i]
// consecutive times before the cursor advances.
type Rotator struct {
	urls    []string
	weights []int
}

// NewRotator builds a Rotator over urls with the given per-URL weights.
// weights may be nil, in which case every URL has weight 1.
func NewRotator(urls []string, weights []int) *Rotator {
	if len(weights) == 0 {
		weights = make([]int, len(urls))
		for i := range weights {
			weights[i] = 1
		}
	}
	return &Rotator{urls: urls, weights: weights}
}

// Next returns the next URL for cur and advances cur in place.
func (r *Rotator) Next(cur *Cursor) string {
	n := len(r.urls)
	if n == 0 {
		return ""
	}
	if cur.I >= n {
		cur.I = 0
	}
	url := r.urls[cur.I]

	w := r.weights[cur.I]
	if w < 1 {
		w = 1
	}

	cur.W++
	if cur.W >= w {
		cur.I++
		if cur.I >= n {
			cur.I = 0
		}
		cur.W = 0
	}
	return url
}

// Len reports the number of distinct URLs in the rotation.
func (r *Rotator) Len() int {
	return len(r.urls)
}
