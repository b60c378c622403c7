// Package cyclos is an asynchronous, process-local log sink built around a
// multi-producer/single-consumer cell-buffer ring: producer goroutines
// format and append records; one dedicated persister goroutine drains them
// to rotated files on disk.
//
// # Quick Start
//
// Basic usage with production defaults:
//
//	sink, err := cyclos.New("/var/log/myapp", "myapp", cyclos.Info)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sink.Close()
//
//	sink.Infof("listening on %s", addr)
//	sink.Errorf("request failed: %v", err)
//
// # Constructor Functions
//
//	// Defaults from the tunables table below.
//	sink, err := cyclos.New("/var/log/myapp", "myapp", cyclos.Info)
//
//	// Full control, with optional compression, checksums, and pruning.
//	sink, err := cyclos.NewWithConfig(&cyclos.Config{
//		LogDir:           "/var/log/myapp",
//		ProgramName:      "myapp",
//		Level:            cyclos.Debug,
//		FileSizeLimitStr: "512MB",
//		MemCapStr:        "1GB",
//		Compress:         true,
//		Checksum:         true,
//		MaxBackups:       30,
//		MaxFileAge:       7 * 24 * time.Hour,
//	})
//
// # Tunables
//
// CellSize, MemCap, FileSizeLimit, PersistSleep and DropCooldown each have a
// numeric and a string-based form (CellSize and CellSizeStr, for example);
// InitialBuffers and RecordLimit are numeric only. The string form takes
// precedence when it is non-empty and parses; an unparseable string is
// ignored. It accepts the same size grammar as ParseSize ("512MB", "1GB",
// "2TB") or, for durations, the same grammar as ParseDuration ("24h", "7d",
// "2w", "1y").
//
//	CellSize        default 30MB   capacity of a single ring cell
//	InitialBuffers  default 3      cells the ring starts with
//	MemCap          default 3GB    ceiling on total ring memory before growth is refused
//	FileSizeLimit   default 1GB    live file size that triggers a numbered rollover
//	RecordLimit     default 1024   bytes a single formatted record is truncated to
//	PersistSleep    default 1s     persister wake cadence when the ring is idle
//	DropCooldown    default 3s     backpressure window after an overload drop
//
// # Record Format
//
// Every record is a single newline-terminated line:
//
//	[LEVEL][2006-01-02 15:04:05.000][tid] file.go:42(FuncName): message
//
// # Rotation and Retention
//
// The live file is named programName.YYYYMMDD.pid.log. Once it reaches
// FileSizeLimit it rolls to programName.*.log.1 and every existing numbered
// backup shifts up by one. When the UTC date changes, the live file is
// closed as is and a new live file is opened under the new date. With Compress or
// Checksum set, each rolled-over file is gzip-compressed and/or given a
// SHA-256 sidecar on a small background worker pool, never blocking the
// persister. MaxBackups and MaxFileAge additionally prune old numbered
// files by count or age.
//
// # Best Practices
//
//   - Always defer Close so the persister can drain what's left in the ring.
//   - Size CellSize and InitialBuffers for your sustained throughput; growth
//     under backpressure is possible but costs a mutex-held slice insert.
//   - Set ErrorCallback in Config to observe short writes, rotation
//     failures, and background task errors — the sink never panics or
//     blocks a producer on I/O trouble, it drops and reports instead.
package cyclos
