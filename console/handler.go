// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Package console renders the fleet's structured log stream for a
// human operator: colored severity tags on a terminal, plain text when
// piped, and an optional durable transcript with compressed rotation.
//
// The rest of the repository logs through plain log/slog; it imports
// this package only for the extended levels. Handlers are wired at
// the binary entrypoint.
package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Severity levels beyond the slog defaults. Success marks milestones
// (session authenticated, registration stored); Status marks the
// supervisor's periodic fleet report. Both sort between Info and Warn.
const (
	LevelSuccess = slog.Level(1)
	LevelStatus  = slog.Level(2)
)

var (
	styleTime    = lipgloss.NewStyle().Faint(true)
	styleDebug   = lipgloss.NewStyle().Faint(true)
	styleInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	styleStatus  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")) // cyan
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	styleAttrs   = lipgloss.NewStyle().Faint(true)
)

// Colorable reports whether w is a terminal that supports color.
// Respects NO_COLOR and dumb terminals via termenv's profile
// detection.
func Colorable(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !term.IsTerminal(int(file.Fd())) {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

// HandlerOptions configures a console Handler.
type HandlerOptions struct {
	// Level is the minimum level to emit. Nil means slog.LevelInfo.
	Level slog.Leveler

	// Color enables lipgloss styling. Callers usually pass
	// Colorable(w).
	Color bool
}

// Handler is a slog.Handler that renders compact single-line records:
//
//	15:04:05 SUCCESS stampede-3 authenticated attempt=2
type Handler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	color bool

	attrs  []slog.Attr
	groups []string
}

// NewHandler creates a console Handler writing to w.
func NewHandler(w io.Writer, opts *HandlerOptions) *Handler {
	handler := &Handler{
		mu:    &sync.Mutex{},
		w:     w,
		level: slog.LevelInfo,
	}
	if opts != nil {
		if opts.Level != nil {
			handler.level = opts.Level
		}
		handler.color = opts.Color
	}
	return handler
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, record slog.Record) error {
	var line strings.Builder

	timestamp := record.Time.Format("15:04:05")
	line.WriteString(h.styled(styleTime, timestamp))
	line.WriteByte(' ')
	line.WriteString(h.styled(levelStyle(record.Level), levelName(record.Level)))
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
		line.WriteByte(' ')
		line.WriteString(h.styled(styleAttrs, fmt.Sprintf("%s=%v", key, attr.Value)))
	}
	for _, attr := range h.attrs {
		appendAttr(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(attr)
		return true
	})
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

func (h *Handler) styled(style lipgloss.Style, s string) string {
	if !h.color {
		return s
	}
	return style.Render(s)
}

// levelName maps levels, including the custom ones, to fixed-width
// tags so columns line up.
func levelName(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "DEBUG  "
	case level == LevelSuccess:
		return "SUCCESS"
	case level == LevelStatus:
		return "STATUS "
	case level < slog.LevelWarn:
		return "INFO   "
	case level < slog.LevelError:
		return "WARN   "
	default:
		return "ERROR  "
	}
}

func levelStyle(level slog.Level) lipgloss.Style {
	switch {
	case level < slog.LevelInfo:
		return styleDebug
	case level == LevelSuccess:
		return styleSuccess
	case level == LevelStatus:
		return styleStatus
	case level < slog.LevelWarn:
		return styleInfo
	case level < slog.LevelError:
		return styleWarn
	default:
		return styleError
	}
}

// Fanout returns a slog.Handler that forwards each record to every
// handler enabled for its level. Used to tee the console and the
// transcript.
func Fanout(handlers ...slog.Handler) slog.Handler {
	return fanout(handlers)
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var firstError error
	for _, handler := range f {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstError == nil {
			firstError = err
		}
	}
	return firstError
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	wrapped := make(fanout, len(f))
	for i, handler := range f {
		wrapped[i] = handler.WithAttrs(attrs)
	}
	return wrapped
}

func (f fanout) WithGroup(name string) slog.Handler {
	wrapped := make(fanout, len(f))
	for i, handler := range f {
		wrapped[i] = handler.WithGroup(name)
	}
	return wrapped
}
