// Package stacktrace extracts the location of the innermost frame from a
// textual stack trace.
package stacktrace

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// Location is the source position of a frame. All fields are zero when the
// trace could not be parsed.
type Location struct {
	File   string
	Line   int
	Column int
	Method string
}

var (
	// at functionName (file.js:10:5)
	v8Frame = regexp.MustCompile(`at\s+(.+?)\s+\((.+?):(\d+):(\d+)\)`)

	// functionName@file.js:10:5
	geckoFrame = regexp.MustCompile(`(.+?)@(.+?):(\d+):(\d+)`)

	// main.handler(0xc000012345)
	goFuncLine = regexp.MustCompile(`^([\w./\-*()]+?\.[\w.\-*()]+)\(.*\)$`)

	// 	/app/main.go:42 +0x1d
	goFileLine = regexp.MustCompile(`^(\S+?\.go):(\d+)(?:\s+\+0x[0-9a-fA-F]+)?$`)
)

// Parse returns the location of the first frame of stack. It tries the
// "at method (file:line:column)" and "method@file:line:column" forms against
// the first frame line, then the Go runtime form.
func Parse(stack string) Location {
	if stack == "" {
		return Location{}
	}

	lines := strings.Split(stack, "\n")
	first := lines[0]
	if len(lines) > 1 {
		first = lines[1]
	}

	if m := v8Frame.FindStringSubmatch(first); m != nil {
		return newLocation(m[1], m[2], m[3], m[4])
	}
	if m := geckoFrame.FindStringSubmatch(first); m != nil {
		return newLocation(strings.TrimSpace(m[1]), m[2], m[3], m[4])
	}
	return parseGo(lines)
}

func newLocation(method, file, line, column string) Location {
	l, _ := strconv.Atoi(line)
	c, _ := strconv.Atoi(column)
	return Location{File: file, Line: l, Column: c, Method: method}
}

// parseGo finds the first function/file line pair of a goroutine dump,
// skipping frames of the runtime and of the panic machinery. In a dump taken
// while recovering, the frames above the last panic call belong to the
// recovering code and are skipped too.
func parseGo(lines []string) Location {
	start := 0
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "panic(") {
			start = i + 1
		}
	}
	for i := start; i+1 < len(lines); i++ {
		fn := strings.TrimSpace(lines[i])
		m := goFuncLine.FindStringSubmatch(fn)
		if m == nil {
			continue
		}
		fm := goFileLine.FindStringSubmatch(strings.TrimSpace(lines[i+1]))
		if fm == nil {
			continue
		}
		if skipGoFrame(m[1]) {
			i++
			continue
		}
		line, _ := strconv.Atoi(fm[2])
		return Location{File: fm[1], Line: line, Method: m[1]}
	}
	return Location{}
}

func skipGoFrame(fn string) bool {
	return strings.HasPrefix(fn, "runtime.") ||
		strings.HasPrefix(fn, "internal/runtime/") ||
		strings.HasPrefix(fn, "runtime/debug.") ||
		strings.HasPrefix(fn, "panic(")
}

const modulePath = "github.com/bugshot/bugshot-go"

// Callers renders the calling goroutine's stack in the Go runtime form,
// skipping the given number of frames above the caller of Callers. Leading
// frames of this module's non-test code are dropped as well, so the first
// frame is the code that called into the module.
func Callers(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}

	var frames []runtime.Frame
	it := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := it.Next()
		if frame.Function != "" {
			frames = append(frames, frame)
		}
		if !more {
			break
		}
	}

	first := 0
	for first < len(frames) && internal(frames[first]) {
		first++
	}
	if first == len(frames) {
		first = 0
	}

	var b strings.Builder
	b.WriteString("goroutine [running]:\n")
	for _, frame := range frames[first:] {
		fmt.Fprintf(&b, "%s(...)\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
	}
	return b.String()
}

func internal(f runtime.Frame) bool {
	if strings.HasSuffix(f.File, "_test.go") {
		return false
	}
	return strings.HasPrefix(f.Function, modulePath+".") || strings.HasPrefix(f.Function, modulePath+"/")
}
