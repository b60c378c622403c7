// ring.go: the cell-buffer ring, the multi-producer/single-consumer handoff
// at the center of the sink.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cyclos

import (
	"sync"
	"sync/atomic"
	"time"
)

// bufferRing is a fixed-capacity, elastically-grown cyclic sequence of cell
// buffers. A single mutex guards its topology (the cells slice itself), both
// cursors, every cell's status/used, and the (year, month, day) snapshot the
// persister reads; lastFailureTS is read outside the mutex by the ingest
// path's backpressure gate (see Sink.logf) so it is kept atomic rather than
// plain, matching the benign race the original design relies on.
type bufferRing struct {
	mu sync.Mutex

	cells   []*cellBuffer
	current int
	persist int

	cellSize int
	memCap   int64

	year, month, day int

	lastFailureTS atomic.Int64

	// signal implements a timed condition variable: closing it broadcasts
	// to any goroutine blocked in wait, which then replaces it. sync.Cond
	// has no deadline wait, so this is the idiomatic Go substitute.
	signal chan struct{}
}

func newBufferRing(initialBuffers, cellSize int, memCap int64) *bufferRing {
	cells := make([]*cellBuffer, initialBuffers)
	for i := range cells {
		cells[i] = newCellBuffer(cellSize)
	}
	return &bufferRing{
		cells:    cells,
		cellSize: cellSize,
		memCap:   memCap,
		signal:   make(chan struct{}),
	}
}

func (r *bufferRing) size() int {
	return len(r.cells)
}

func (r *bufferRing) next(idx int) int {
	return (idx + 1) % len(r.cells)
}

// wait releases the mutex, blocks until notify is called or timeout
// elapses, then re-acquires it. Caller must hold mu.
func (r *bufferRing) wait(timeout time.Duration) {
	ch := r.signal
	r.mu.Unlock()
	select {
	case <-ch:
	case <-time.After(timeout):
	}
	r.mu.Lock()
}

// notify wakes any goroutine blocked in wait. Caller must hold mu: closing
// and replacing signal under the same lock wait reads it with avoids a race
// between a notifier and a waiter that hasn't unlocked yet.
func (r *bufferRing) notify() {
	close(r.signal)
	r.signal = make(chan struct{})
}

// growAfter splices a new, empty cell buffer into the ring immediately after
// index after (before the cell that currently follows it), adjusting both
// cursors if they lay at or past the insertion point. Returns the new cell's
// index, or -1 if growth would push total ring memory past memCap. Caller
// must hold mu.
func (r *bufferRing) growAfter(after int) int {
	n := len(r.cells)
	if int64(n+1)*int64(r.cellSize) > r.memCap {
		return -1
	}

	insertAt := after + 1 // may equal n: insert after the last element

	r.cells = append(r.cells, nil)
	copy(r.cells[insertAt+1:], r.cells[insertAt:n])
	r.cells[insertAt] = newCellBuffer(r.cellSize)

	if r.current >= insertAt {
		r.current++
	}
	if r.persist >= insertAt {
		r.persist++
	}

	return insertAt
}
