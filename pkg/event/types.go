package event

// CapturedError is the normalized description of one failure.
type CapturedError struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	StackTrace string `json:"stackTrace,omitempty"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Method     string `json:"method,omitempty"`
}

// ErrorDetails overrides the location fields derived from stack parsing.
// Zero-valued fields are ignored.
type ErrorDetails struct {
	Type   string
	File   string
	Line   int
	Column int
	Method string
}

type BrowserInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	OS      string `json:"os"`
}

type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
)

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type DeviceInfo struct {
	Type     DeviceType `json:"type"`
	Viewport Viewport   `json:"viewport"`
}

// ErrorContext is a snapshot of the environment at capture time.
type ErrorContext struct {
	UserID      string       `json:"userId,omitempty"`
	URL         string       `json:"url"`
	HTTPMethod  string       `json:"httpMethod,omitempty"`
	UserAgent   string       `json:"userAgent,omitempty"`
	SessionID   string       `json:"sessionId,omitempty"`
	Timestamp   string       `json:"timestamp"`
	Environment string       `json:"environment,omitempty"`
	Release     string       `json:"release,omitempty"`
	Tags        Tags         `json:"tags,omitempty"`
	BrowserInfo *BrowserInfo `json:"browserInfo,omitempty"`
	DeviceInfo  *DeviceInfo  `json:"deviceInfo,omitempty"`
}

// User identifies the person using the host application.
type User struct {
	ID       string `json:"id,omitempty" yaml:"id"`
	Email    string `json:"email,omitempty" yaml:"email"`
	Username string `json:"username,omitempty" yaml:"username"`
}

type ReplayEventType string

const (
	ReplayPageview   ReplayEventType = "pageview"
	ReplayClick      ReplayEventType = "click"
	ReplayInput      ReplayEventType = "input"
	ReplayNavigation ReplayEventType = "navigation"
)

// SessionReplayEvent is one recorded user interaction. Timestamp is in
// milliseconds relative to the start of recording.
type SessionReplayEvent struct {
	Type      ReplayEventType `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      map[string]any  `json:"data"`
}

type SessionReplay struct {
	SessionID  string               `json:"sessionId"`
	DurationMs int64                `json:"durationMs"`
	Events     []SessionReplayEvent `json:"events"`
}

// IngestPayload is the body posted to the ingestion endpoint.
type IngestPayload struct {
	APIKey        string         `json:"apiKey"`
	Error         CapturedError  `json:"error"`
	Context       ErrorContext   `json:"context"`
	SessionReplay *SessionReplay `json:"sessionReplay,omitempty"`
}
