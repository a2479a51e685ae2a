package bugshot

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bugshot/bugshot-go/internal/ignore"
	"github.com/bugshot/bugshot-go/internal/shared"
	"github.com/bugshot/bugshot-go/pkg/event"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

// Options configure a BugShot client
type Options struct {
	// APIKey identifies the project errors are reported to.
	// (defaults to the BUGSHOT_API_KEY environment variable)
	APIKey string `yaml:"apiKey"`
	// Endpoint is where to find the ingestion service
	// (defaults to the BUGSHOT_ENDPOINT environment variable,
	// or "http://localhost:8081" if not set)
	Endpoint string `yaml:"endpoint"`
	// Environment is attached to every report
	// (defaults to the BUGSHOT_ENVIRONMENT environment variable, or "production")
	Environment string `yaml:"environment"`
	// Release is attached to every report
	// (defaults to the BUGSHOT_RELEASE environment variable)
	Release string `yaml:"release"`

	// DisableSessionReplay stops user interaction from being recorded and
	// attached to reports.
	DisableSessionReplay bool `yaml:"disableSessionReplay"`
	// DisableAutoCapture leaves uncaught errors and unhandled rejections
	// alone. Errors can still be reported with CaptureError.
	DisableAutoCapture bool `yaml:"disableAutoCapture"`

	// SampleRate is the fraction of captured errors that are reported,
	// between 0 and 1. (defaults to 1)
	SampleRate *float64 `yaml:"sampleRate"`

	// Debug logs every decision the client makes and also captures
	// everything written to the page's error console.
	Debug bool `yaml:"debug"`
	// Log Level to use for logging ("debug", "info", "warn" or "error").
	// (defaults to "debug" when Debug is set, "warn" otherwise)
	LogLevel string `yaml:"logLevel"`

	// BeforeSend can rewrite a captured error before it is reported.
	// Return nil to drop it.
	BeforeSend func(event.CapturedError) *event.CapturedError `yaml:"-"`

	// User identifies the current user. When unset reports carry a
	// persistent anonymous id.
	User *event.User `yaml:"user"`

	// IgnoreErrors drops errors matching any of these regular expressions.
	// Patterns match the message unless prefixed with "type:", "file:" or
	// "stackTrace:".
	IgnoreErrors []string `yaml:"ignoreErrors"`

	// RedactInputNames lists input names or ids whose values are replaced by
	// the sha1 of their contents in session replays. Matching is case
	// insensitive. Password fields are never recorded.
	RedactInputNames []string `yaml:"redactInputNames"`

	// MaxReplayEvents bounds the session replay buffer. (defaults to 1000)
	MaxReplayEvents int `yaml:"maxReplayEvents"`

	// RetryDelay is how long a failed delivery waits before it is retried.
	// (defaults to 5 * time.Second)
	RetryDelay time.Duration `yaml:"retryDelay"`

	// MaxEventsPerSecond limits how many reports are sent.
	// (by default reports are not rate limited)
	MaxEventsPerSecond float64 `yaml:"maxEventsPerSecond"`

	// The HTTPClient to use to make requests to the ingestion service
	// (defaults to http.DefaultClient)
	HTTPClient *http.Client `yaml:"-"`

	// TokenSource adds an OAuth2 bearer token to every request to the
	// ingestion service.
	TokenSource oauth2.TokenSource `yaml:"-"`

	// MetricsRegisterer receives the client's Prometheus collectors.
	// (by default they are not registered)
	MetricsRegisterer prometheus.Registerer `yaml:"-"`

	// Logger receives the client's own logs
	// (defaults to a text logger on os.Stderr)
	Logger *slog.Logger `yaml:"-"`

	// OnError allows you to handle errors delivering reports
	// (by default errors are logged at warn level)
	OnError func(error) `yaml:"-"`

	// EnvFile is a dotenv file read for the BUGSHOT_* defaults. Variables
	// already set in the environment take precedence.
	EnvFile string `yaml:"envFile"`

	ignoreRules []ignore.Rule
}

// Float64 returns a pointer to v, for use with SampleRate.
func Float64(v float64) *float64 {
	return &v
}

// LoadOptions reads Options from a YAML file.
func LoadOptions(path string) (*Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bugshot: reading options: %w", err)
	}
	o := &Options{}
	if err := yaml.Unmarshal(b, o); err != nil {
		return nil, fmt.Errorf("bugshot: parsing options %s: %w", path, err)
	}
	return o, nil
}

func (o *Options) parse() (*Options, error) {
	if o == nil {
		o = &Options{}
	} else {
		copy := *o
		o = &copy
	}

	getenv := os.Getenv
	if o.EnvFile != "" {
		env, err := godotenv.Read(o.EnvFile)
		if err != nil {
			return nil, &ConfigurationError{Field: "EnvFile", Message: "could not read " + o.EnvFile, Err: err}
		}
		getenv = func(key string) string {
			if v := os.Getenv(key); v != "" {
				return v
			}
			return env[key]
		}
	}

	if o.APIKey == "" {
		o.APIKey = getenv("BUGSHOT_API_KEY")
	}
	if o.APIKey == "" {
		return nil, &ConfigurationError{Field: "APIKey", Message: "missing APIKey (BUGSHOT_API_KEY not in environment)"}
	}

	if o.Endpoint == "" {
		o.Endpoint = getenv("BUGSHOT_ENDPOINT")
	}
	if o.Endpoint == "" {
		o.Endpoint = "http://localhost:8081"
	}
	if u, err := url.Parse(o.Endpoint); err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return nil, &ConfigurationError{Field: "Endpoint", Message: "invalid Endpoint " + o.Endpoint, Err: err}
	}

	if o.Environment == "" {
		o.Environment = getenv("BUGSHOT_ENVIRONMENT")
	}
	if o.Environment == "" {
		o.Environment = "production"
	}
	if o.Release == "" {
		o.Release = getenv("BUGSHOT_RELEASE")
	}

	if o.SampleRate == nil {
		o.SampleRate = Float64(1)
	}
	if *o.SampleRate < 0 || *o.SampleRate > 1 {
		return nil, &ConfigurationError{Field: "SampleRate", Message: fmt.Sprintf("SampleRate %v must be within [0, 1]", *o.SampleRate)}
	}

	if o.MaxReplayEvents == 0 {
		o.MaxReplayEvents = shared.DefaultMaxReplayEvents
	}
	if o.MaxReplayEvents < 0 {
		return nil, &ConfigurationError{Field: "MaxReplayEvents", Message: "MaxReplayEvents must be positive"}
	}

	if o.RetryDelay == 0 {
		o.RetryDelay = shared.DefaultRetryDelay
	}
	if o.RetryDelay < time.Millisecond {
		return nil, &ConfigurationError{Field: "RetryDelay", Message: "RetryDelay too small, did you forget to multiply by time.Second?"}
	}

	if o.MaxEventsPerSecond < 0 {
		return nil, &ConfigurationError{Field: "MaxEventsPerSecond", Message: "MaxEventsPerSecond must not be negative"}
	}

	rules, err := ignore.Compile(o.IgnoreErrors)
	if err != nil {
		return nil, &ConfigurationError{Field: "IgnoreErrors", Message: "invalid IgnoreErrors", Err: err}
	}
	o.ignoreRules = rules

	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}

	if o.Logger == nil {
		o.Logger = newLogger(o.LogLevel, o.Debug)
	}

	if o.OnError == nil {
		logger := o.Logger
		o.OnError = func(e error) {
			logger.Warn("delivery failed", "error", e)
		}
	}

	return o, nil
}

func newLogger(level string, debug bool) *slog.Logger {
	lvl := slog.LevelWarn
	if debug {
		lvl = slog.LevelDebug
	}
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With("component", "bugshot")
}
