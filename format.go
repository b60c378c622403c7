// format.go: record formatting scratch space for the ingest path.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cyclos

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"
)

// scratchPool hands out reusable *bytes.Buffer values for record formatting,
// the same pooled-buffer idea as the teacher's SafeBufferPool, adapted to a
// bytes.Buffer since the formatter writes through fmt.Fprintf rather than
// copying pre-built byte slices.
type scratchPool struct {
	pool sync.Pool
}

func newScratchPool(hint int) *scratchPool {
	return &scratchPool{
		pool: sync.Pool{
			New: func() any {
				b := &bytes.Buffer{}
				b.Grow(hint)
				return b
			},
		},
	}
}

func (p *scratchPool) get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

func (p *scratchPool) put(b *bytes.Buffer) {
	b.Reset()
	p.pool.Put(b)
}

// truncateRecord enforces the record length limit in place, always leaving
// the record newline-terminated even when truncation lands mid-message.
func truncateRecord(b []byte, limit int) []byte {
	switch {
	case len(b) > limit:
		b = b[:limit]
		b[limit-1] = '\n'
	case len(b) == limit:
		if b[limit-1] != '\n' {
			b[limit-1] = '\n'
		}
	case len(b) == 0 || b[len(b)-1] != '\n':
		b = append(b, '\n')
	}
	return b
}

// shortFuncName reduces a runtime.Func.Name() value (which carries the full
// import path and any receiver) to the bare function name, matching the
// original's __FUNCTION__.
func shortFuncName(full string) string {
	if idx := strings.LastIndexByte(full, '.'); idx >= 0 {
		return full[idx+1:]
	}
	return full
}

func shortFile(file string) string {
	return filepath.Base(file)
}
