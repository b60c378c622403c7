// sink.go: public API for the log sink — configuration, constructors, the
// ingest path entry points, and lifecycle.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cyclos

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/joeycumines/goroutineid"
)

const (
	defaultCellSize       = 30 * 1024 * 1024        // 30MiB, matches the original's cell_buffer_len_
	defaultInitialBuffers = 3
	defaultMemCap         = 3 * 1024 * 1024 * 1024   // 3GiB, MEM_USE_LIMIT
	defaultFileSizeLimit  = 1 * 1024 * 1024 * 1024   // 1GiB, SINGLE_LOG_SIZE_LIMIT
	defaultRecordLimit    = 1024                     // LOG_LEN_LIMIT
	defaultPersistSleep   = 1 * time.Second          // PERSIST_SLEEP_TIME
	defaultDropCooldown   = 3 * time.Second          // TIME_TO_WAIT
	defaultRetryCount     = 3
	defaultRetryDelay     = 10 * time.Millisecond
)

// TimeSource is the wall-clock collaborator the ingest path and file
// rotator depend on. It returns the current time as Unix seconds plus
// milliseconds within that second, a preformatted UTC "YYYY-MM-DD
// hh:mm:ss" string for the record prefix, and the UTC year/month/day the
// rotator uses to detect day rollover.
type TimeSource interface {
	Now() (sec int64, ms int, utc string, year, month, day int)
}

// ThreadIDSource supplies the per-goroutine identifier that stands in for
// the original's OS thread id; Go programs are goroutine-scheduled and have
// no portable OS thread id, so a goroutine id is the idiomatic substitute.
type ThreadIDSource func() uint64

type cachedTimeSource struct {
	cache *timecache.TimeCache
}

func newCachedTimeSource() *cachedTimeSource {
	return &cachedTimeSource{cache: timecache.NewWithResolution(time.Millisecond)}
}

func (c *cachedTimeSource) Now() (int64, int, string, int, int, int) {
	t := c.cache.CachedTime().UTC()
	return t.Unix(), t.Nanosecond() / 1e6, t.Format("2006-01-02 15:04:05"), t.Year(), int(t.Month()), t.Day()
}

func (c *cachedTimeSource) stop() {
	c.cache.Stop()
}

func defaultThreadIDSource() uint64 {
	return uint64(goroutineid.Get())
}

// Config carries every tunable of a Sink. String fields (the *Str suffixed
// ones) take precedence over their numeric counterparts when non-empty and
// parseable (an unparseable string is ignored), following the teacher's own string-configuration convention.
type Config struct {
	LogDir      string
	ProgramName string
	Level       Level

	CellSize    int64
	CellSizeStr string

	InitialBuffers int

	MemCap    int64
	MemCapStr string

	FileSizeLimit    int64
	FileSizeLimitStr string

	RecordLimit int

	PersistSleep    time.Duration
	PersistSleepStr string

	DropCooldown    time.Duration
	DropCooldownStr string

	// Compress and Checksum post-process each numbered rotation file in the
	// background; MaxBackups/MaxFileAge additionally prune old ones.
	Compress   bool
	Checksum   bool
	MaxBackups int
	MaxFileAge time.Duration

	FileMode   uint32 // os.FileMode, kept numeric to avoid importing os in callers' config literals
	RetryCount int
	RetryDelay time.Duration

	TimeSource     TimeSource
	ThreadIDSource ThreadIDSource
	ErrorCallback  func(operation string, err error)
}

// Sink is the entry point: an asynchronous, process-local log destination
// backed by the buffer ring and a dedicated persister goroutine.
type Sink struct {
	programName string
	recordLimit int

	dropCooldown time.Duration
	persistSleep time.Duration

	level atomic.Int32

	timeSource     TimeSource
	threadIDSource ThreadIDSource
	errorCallback  func(operation string, err error)

	ring    *bufferRing
	rotator *fileRotator
	pool    *scratchPool

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	writeCount    atomic.Uint64
	dropCount     atomic.Uint64
	rotationCount atomic.Uint64
}

// New opens a Sink with the defaults from the tunables table, logging at
// level and below to logDir/programName.<date>.<pid>.log.
func New(logDir, programName string, level Level) (*Sink, error) {
	return NewWithConfig(&Config{LogDir: logDir, ProgramName: programName, Level: level})
}

// NewWithConfig opens a Sink with full control over its tunables.
func NewWithConfig(cfg *Config) (*Sink, error) {
	if cfg == nil {
		return nil, goerrors.New("cyclos: config cannot be nil")
	}
	if cfg.ProgramName == "" {
		return nil, goerrors.New("cyclos: program name cannot be empty")
	}

	cellSize := resolveSize(cfg.CellSize, cfg.CellSizeStr, defaultCellSize)
	memCap := resolveSize(cfg.MemCap, cfg.MemCapStr, defaultMemCap)
	fileSizeLimit := resolveSize(cfg.FileSizeLimit, cfg.FileSizeLimitStr, defaultFileSizeLimit)

	persistSleep := resolveDuration(cfg.PersistSleep, cfg.PersistSleepStr, defaultPersistSleep)
	dropCooldown := resolveDuration(cfg.DropCooldown, cfg.DropCooldownStr, defaultDropCooldown)

	recordLimit := cfg.RecordLimit
	if recordLimit <= 0 {
		recordLimit = defaultRecordLimit
	}

	initialBuffers := cfg.InitialBuffers
	if initialBuffers <= 0 {
		initialBuffers = defaultInitialBuffers
	}

	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = defaultRetryCount
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	fileMode := GetDefaultFileMode()
	if cfg.FileMode != 0 {
		fileMode = osFileMode(cfg.FileMode)
	}

	errorCallback := cfg.ErrorCallback
	if errorCallback == nil {
		errorCallback = func(string, error) {}
	}

	s := &Sink{
		programName:    cfg.ProgramName,
		recordLimit:    recordLimit,
		dropCooldown:   dropCooldown,
		persistSleep:   persistSleep,
		timeSource:     cfg.TimeSource,
		threadIDSource: cfg.ThreadIDSource,
		errorCallback:  errorCallback,
		ring:           newBufferRing(initialBuffers, int(cellSize), memCap),
		pool:           newScratchPool(256),
		closing:        make(chan struct{}),
	}
	s.level.Store(int32(clampLevel(cfg.Level)))

	if s.timeSource == nil {
		s.timeSource = newCachedTimeSource()
	}
	if s.threadIDSource == nil {
		s.threadIDSource = defaultThreadIDSource
	}

	s.rotator = newFileRotator(fileRotatorConfig{
		logDir:        cfg.LogDir,
		programName:   cfg.ProgramName,
		pid:           pidOf(),
		fileMode:      fileMode,
		fileSizeLimit: fileSizeLimit,
		retryCount:    retryCount,
		retryDelay:    retryDelay,
		compress:      cfg.Compress,
		checksum:      cfg.Checksum,
		maxBackups:    cfg.MaxBackups,
		maxFileAge:    cfg.MaxFileAge,
		errorCallback: errorCallback,
		onRotate:      func() { s.rotationCount.Add(1) },
	})

	s.wg.Add(1)
	go s.runPersister()

	return s, nil
}

func resolveSize(numeric int64, str string, fallback int64) int64 {
	if str != "" {
		if v, err := ParseSize(str); err == nil {
			return v
		}
	}
	if numeric > 0 {
		return numeric
	}
	return fallback
}

func resolveDuration(numeric time.Duration, str string, fallback time.Duration) time.Duration {
	if str != "" {
		if v, err := ParseDuration(str); err == nil {
			return v
		}
	}
	if numeric > 0 {
		return numeric
	}
	return fallback
}

// Logf writes a single record at level, regardless of the sink's configured
// level threshold. Fatalf..Tracef are the level-filtered convenience
// wrappers built on top of it.
func (s *Sink) Logf(level Level, format string, args ...any) {
	s.logf(level, 2, format, args...)
}

func (s *Sink) Fatalf(format string, args ...any) { s.logIfEnabled(Fatal, format, args...) }
func (s *Sink) Errorf(format string, args ...any) { s.logIfEnabled(Error, format, args...) }
func (s *Sink) Warnf(format string, args ...any)  { s.logIfEnabled(Warn, format, args...) }
func (s *Sink) Infof(format string, args ...any)  { s.logIfEnabled(Info, format, args...) }
func (s *Sink) Debugf(format string, args ...any) { s.logIfEnabled(Debug, format, args...) }
func (s *Sink) Tracef(format string, args ...any) { s.logIfEnabled(Trace, format, args...) }

// Normalf is the original's LOG_NORMAL convenience: a record tagged "[INFO]"
// rather than a distinct severity level.
func (s *Sink) Normalf(format string, args ...any) { s.logIfEnabled(Info, format, args...) }

func (s *Sink) logIfEnabled(level Level, format string, args ...any) {
	if int32(level) > s.level.Load() {
		return
	}
	s.logf(level, 3, format, args...)
}

// SetLevel adjusts the configured severity threshold at runtime.
func (s *Sink) SetLevel(level Level) {
	s.level.Store(int32(clampLevel(level)))
}

// logf implements spec.md's ingest-path algorithm: obtain time, check the
// backpressure gate, format, then hand the record to commit under the
// ring's mutex.
func (s *Sink) logf(level Level, skip int, format string, args ...any) {
	sec, ms, utc, year, month, day := s.timeSource.Now()

	if last := s.ring.lastFailureTS.Load(); last != 0 && sec-last < int64(s.dropCooldown/time.Second) {
		s.dropCount.Add(1)
		return
	}

	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		file, line = "???", 0
	}
	funcName := "???"
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcName = shortFuncName(fn.Name())
	}

	buf := s.pool.get()
	fmt.Fprintf(buf, "[%s][%s.%03d][%d] %s:%d(%s): ", level.String(), utc, ms, s.threadIDSource(), shortFile(file), line, funcName)
	fmt.Fprintf(buf, format, args...)
	record := truncateRecord(buf.Bytes(), s.recordLimit)

	s.commit(record, sec, year, month, day)
	s.pool.put(buf)
}

// commit performs spec.md §4.3 steps 4-8: acquire the ring's mutex, append
// to current or grow/drop, snapshot the date, release, and signal.
func (s *Sink) commit(record []byte, sec int64, year, month, day int) {
	r := s.ring

	if len(record) > r.cellSize {
		s.dropCount.Add(1)
		return
	}

	r.mu.Lock()

	needSignal := false
	dropped := false
	L := len(record)
	cur := r.cells[r.current]

	switch {
	case cur.status == cellFree && cur.avail() >= L:
		cur.append(record)
		r.lastFailureTS.Store(0)

	case cur.status == cellFree:
		cur.status = cellFull
		needSignal = true
		nextIdx := r.next(r.current)
		nextCell := r.cells[nextIdx]

		if nextCell.status == cellFull {
			if newIdx := r.growAfter(r.current); newIdx >= 0 {
				r.current = newIdx
			} else {
				r.lastFailureTS.Store(sec)
				r.current = nextIdx
				dropped = true
			}
		} else {
			r.current = nextIdx
		}

		if !dropped {
			r.cells[r.current].append(record)
		}

	default: // cur.status == cellFull: the transient safety-net window
		r.lastFailureTS.Store(sec)
		dropped = true
	}

	r.year, r.month, r.day = year, month, day

	if needSignal {
		r.notify()
	}
	r.mu.Unlock()

	if dropped {
		s.dropCount.Add(1)
	} else {
		s.writeCount.Add(1)
	}
}

func (s *Sink) reportError(operation string, err error) {
	s.errorCallback(operation, err)
}

// Stats is a snapshot of operational counters for monitoring.
type Stats struct {
	WriteCount    uint64
	DropCount     uint64
	RotationCount uint64
	RingSize      int
}

func (s *Sink) Stats() Stats {
	s.ring.mu.Lock()
	ringSize := s.ring.size()
	s.ring.mu.Unlock()

	return Stats{
		WriteCount:    s.writeCount.Load(),
		DropCount:     s.dropCount.Load(),
		RotationCount: s.rotationCount.Load(),
		RingSize:      ringSize,
	}
}

// Close signals the persister to perform a final drain and stop, then
// releases the underlying file and time source. It is safe to call more
// than once; only the first call has effect.
func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)

		s.ring.mu.Lock()
		s.ring.notify()
		s.ring.mu.Unlock()

		s.wg.Wait()

		if ts, ok := s.timeSource.(*cachedTimeSource); ok {
			ts.stop()
		}
		err = s.rotator.close()
	})
	return err
}
