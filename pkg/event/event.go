// Package event holds the wire model shared by the capture, replay and
// transport layers.
package event

import (
	"strings"
	"time"
	"unicode/utf8"
)

// overridden in tests
var Clock = time.Now

// Timestamp formats t the way the ingestion service expects (ISO-8601, UTC, millis).
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Title is the capitalized level name used as a CapturedError type.
func (l Level) Title() string {
	if l == "" {
		l = LevelInfo
	}
	r, size := utf8.DecodeRuneInString(string(l))
	return strings.ToUpper(string(r)) + string(l)[size:]
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// WithDetails returns a copy of e with the non-zero fields of d applied.
func (e CapturedError) WithDetails(d *ErrorDetails) CapturedError {
	if d == nil {
		return e
	}
	if d.Type != "" {
		e.Type = d.Type
	}
	if d.File != "" {
		e.File = d.File
	}
	if d.Line != 0 {
		e.Line = d.Line
	}
	if d.Column != 0 {
		e.Column = d.Column
	}
	if d.Method != "" {
		e.Method = d.Method
	}
	return e
}
