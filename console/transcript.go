// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Transcript appends log lines to a file and rotates it when it grows
// past a size threshold. Rotated segments are compressed with zstd and
// named <path>.<unix-nanos>.zst; the live file keeps its configured
// name so tail -f keeps working across rotations.
type Transcript struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	file     *os.File
	size     int64
	closed   bool
}

// OpenTranscript opens (or creates) the transcript at path. A
// maxBytes of zero disables rotation.
func OpenTranscript(path string, maxBytes int64) (*Transcript, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat transcript: %w", err)
	}
	return &Transcript{
		path:     path,
		maxBytes: maxBytes,
		file:     file,
		size:     info.Size(),
	}, nil
}

// Write appends p to the transcript, rotating first if the segment
// would exceed the size threshold. Implements io.Writer so the
// transcript can back a slog handler.
func (t *Transcript) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, os.ErrClosed
	}
	if t.maxBytes > 0 && t.size > 0 && t.size+int64(len(p)) > t.maxBytes {
		if err := t.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := t.file.Write(p)
	t.size += int64(n)
	return n, err
}

// Close flushes and closes the live segment.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.file.Close()
}

// rotateLocked closes the live segment, compresses it into a
// timestamped .zst sibling, removes the original, and reopens a fresh
// live file. Compression is synchronous: transcript volume is low and
// a short stall beats unbounded uncompressed segments piling up.
func (t *Transcript) rotateLocked() error {
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("closing transcript segment: %w", err)
	}
	archive := fmt.Sprintf("%s.%d.zst", t.path, time.Now().UnixNano())
	if err := compressFile(t.path, archive); err != nil {
		return fmt.Errorf("rotating transcript: %w", err)
	}
	if err := os.Remove(t.path); err != nil {
		return fmt.Errorf("removing rotated segment: %w", err)
	}
	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("reopening transcript: %w", err)
	}
	t.file = file
	t.size = 0
	return nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	encoder, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(encoder, in); err != nil {
		encoder.Close()
		out.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// NewTranscriptHandler returns a slog.Handler that renders records as
// plain timestamped lines into the transcript. Level defaults to
// slog.LevelDebug: the transcript is the forensic record, so it keeps
// everything the console may have filtered.
func NewTranscriptHandler(t *Transcript, level slog.Leveler) slog.Handler {
	if level == nil {
		level = slog.LevelDebug
	}
	return &transcriptHandler{transcript: t, level: level}
}

type transcriptHandler struct {
	transcript *Transcript
	level      slog.Leveler
	attrs      []slog.Attr
	groups     []string
}

func (h *transcriptHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *transcriptHandler) Handle(_ context.Context, record slog.Record) error {
	var line strings.Builder
	line.WriteString(record.Time.UTC().Format(time.RFC3339))
	line.WriteByte(' ')
	line.WriteString(strings.TrimRight(levelName(record.Level), " "))
	line.WriteByte(' ')
	line.WriteString(record.Message)

	appendAttr := func(attr slog.Attr) {
		if attr.Equal(slog.Attr{}) {
			return
		}
		key := attr.Key
		if len(h.groups) > 0 {
			key = strings.Join(h.groups, ".") + "." + key
		}
		fmt.Fprintf(&line, " %s=%v", key, attr.Value)
	}
	for _, attr := range h.attrs {
		appendAttr(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(attr)
		return true
	})
	line.WriteByte('\n')

	_, err := io.WriteString(h.transcript, line.String())
	return err
}

func (h *transcriptHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *transcriptHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}
