// Package fingerprint derives browser and device descriptions from what the
// host environment exposes.
package fingerprint

import (
	"regexp"
	"strings"

	"github.com/bugshot/bugshot-go/pkg/event"
)

const unknown = "Unknown"

var (
	edgeVersion    = regexp.MustCompile(`Edg(?:e|A|iOS)?/(\d+)`)
	chromeVersion  = regexp.MustCompile(`Chrome/(\d+)`)
	firefoxVersion = regexp.MustCompile(`Firefox/(\d+)`)
	safariVersion  = regexp.MustCompile(`Version/(\d+)`)
)

// Browser parses a user agent string.
func Browser(ua string) event.BrowserInfo {
	info := event.BrowserInfo{Name: unknown, Version: unknown, OS: unknown}

	switch {
	case edgeVersion.MatchString(ua):
		info.Name = "Edge"
		info.Version = firstGroup(edgeVersion, ua)
	case strings.Contains(ua, "Chrome"):
		info.Name = "Chrome"
		info.Version = firstGroup(chromeVersion, ua)
	case strings.Contains(ua, "Firefox"):
		info.Name = "Firefox"
		info.Version = firstGroup(firefoxVersion, ua)
	case strings.Contains(ua, "Safari"):
		info.Name = "Safari"
		info.Version = firstGroup(safariVersion, ua)
	}

	switch {
	case strings.Contains(ua, "Windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "Android"):
		info.OS = "Android"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iOS"):
		info.OS = "iOS"
	case strings.Contains(ua, "Mac"):
		info.OS = "macOS"
	case strings.Contains(ua, "Linux"):
		info.OS = "Linux"
	}
	return info
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return unknown
}

// Device classifies a viewport: up to 768px wide is mobile, up to 1024px is
// tablet, anything wider is desktop.
func Device(v event.Viewport) event.DeviceInfo {
	t := event.DeviceDesktop
	switch {
	case v.Width <= 768:
		t = event.DeviceMobile
	case v.Width <= 1024:
		t = event.DeviceTablet
	}
	return event.DeviceInfo{Type: t, Viewport: v}
}
