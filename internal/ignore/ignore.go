// Package ignore evaluates user supplied rules that suppress captured errors
// before they reach the transport.
package ignore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bugshot/bugshot-go/internal/shared"
	"github.com/bugshot/bugshot-go/pkg/event"
)

// Rule matches Regex against the captured error at Location. An empty
// location matches against the message.
type Rule struct {
	Location string
	Regex    *regexp.Regexp
}

// Compile parses patterns of the form "pattern" or "location:pattern", where
// location is one of type, message, file or stackTrace.
func Compile(patterns []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(patterns))
	for _, p := range patterns {
		location := shared.MessageStr
		if loc, rest, ok := strings.Cut(p, ":"); ok && isLocation(loc) {
			location, p = loc, rest
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bugshot: invalid ignore pattern %q: %w", p, err)
		}
		rules = append(rules, Rule{Location: location, Regex: re})
	}
	return rules, nil
}

func isLocation(s string) bool {
	switch s {
	case shared.TypeStr, shared.MessageStr, shared.FileStr, shared.StackStr:
		return true
	}
	return false
}

// ShouldIgnoreError reports whether any rule matches e.
func ShouldIgnoreError(e event.CapturedError, rules []Rule) (bool, []error) {
	var errs []error
	for _, r := range rules {
		testVal, err := stringifyErrorAtLocation(e, r.Location)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if r.Regex.MatchString(testVal) {
			return true, errs
		}
	}
	return false, errs
}

func stringifyErrorAtLocation(e event.CapturedError, location string) (string, error) {
	switch location {
	case shared.TypeStr:
		return e.Type, nil
	case "", shared.MessageStr:
		return e.Message, nil
	case shared.FileStr:
		return e.File, nil
	case shared.StackStr:
		return e.StackTrace, nil
	}
	return "", fmt.Errorf("bugshot: unexpected location parameter for RegExp matching: %s", location)
}
