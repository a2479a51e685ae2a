package bugshot

import (
	"log/slog"
	"sync"

	"github.com/bugshot/bugshot-go/internal/capture"
	"github.com/bugshot/bugshot-go/internal/metrics"
	"github.com/bugshot/bugshot-go/internal/replay"
	"github.com/bugshot/bugshot-go/internal/sampler"
	"github.com/bugshot/bugshot-go/internal/transport"
	"github.com/bugshot/bugshot-go/pkg/event"
	"github.com/bugshot/bugshot-go/pkg/host"
	"golang.org/x/time/rate"
)

var (
	ErrTransportFailure   = transport.ErrTransportFailure
	ErrPermanentRejection = transport.ErrPermanentRejection
)

// Client reports the errors of one page to the BugShot ingestion service,
// together with a replay of what the user did before they happened.
//
// A Client does nothing until [Client.Init] is called. Call [Client.Close]
// to restore the page's original handlers.
type Client struct {
	page        *host.Page
	options     *Options
	log         *slog.Logger
	metrics     *metrics.Metrics
	transport   *transport.Transport
	capture     *capture.Capture
	sampler     *sampler.Sampler
	limiter     *rate.Limiter
	anonymousID string

	mutex          sync.Mutex
	initialized    bool
	recorder       *replay.Recorder
	user           *event.User
	tags           event.Tags
	removePageHide func()
}

// ConfigurationError is returned by New when the options are unusable.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return "bugshot: " + e.Message + ": " + e.Err.Error()
	}
	return "bugshot: " + e.Message
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

type packageVersion struct {
	Name    string
	Version string
}

func (v packageVersion) String() string {
	return v.Name + "/" + v.Version
}
