// persister.go: the dedicated background goroutine that drains the buffer
// ring to disk.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cyclos

import "fmt"

// runPersister implements spec.md §4.5 steps 1-9: wait for a FULL buffer (or
// a 1s timeout, whichever first), force a partial drain on timeout, select
// the target file, write, and advance. Once Close has been called it skips
// the wait and keeps draining without blocking, so a queued backlog of FULL
// buffers is flushed promptly instead of one per second.
func (s *Sink) runPersister() {
	defer s.wg.Done()
	r := s.ring

	for {
		r.mu.Lock()

		if r.cells[r.persist].status == cellFree && !isClosed(s.closing) {
			r.wait(s.persistSleep)
		}

		if r.cells[r.persist].empty() {
			r.mu.Unlock()
			if isClosed(s.closing) && r.current == r.persist {
				return
			}
			continue
		}

		if r.cells[r.persist].status == cellFree {
			// Still FREE after the wait (or already closing): force a
			// partial drain of whatever current/persist currently holds.
			r.current = r.next(r.current)
			r.cells[r.persist].status = cellFull
		}

		year, month, day := r.year, r.month, r.day
		cell := r.cells[r.persist]
		r.mu.Unlock()

		if !s.rotator.selectTarget(year, month, day) {
			continue
		}

		n, err := cell.persist(s.rotator.writer())
		if err != nil || n < cell.used {
			s.reportError("short_write", fmt.Errorf("persisted %d of %d bytes: %v", n, cell.used, err))
		}
		if err := s.rotator.flush(); err != nil {
			s.reportError("flush", err)
		}

		r.mu.Lock()
		cell.clear()
		r.persist = r.next(r.persist)
		stop := isClosed(s.closing) && r.persist == r.current && r.cells[r.persist].empty()
		r.mu.Unlock()

		if stop {
			return
		}
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
