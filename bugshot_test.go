package bugshot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bugshot/bugshot-go/internal/metrics"
	"github.com/bugshot/bugshot-go/pkg/event"
	"github.com/bugshot/bugshot-go/pkg/host"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var apiKey = "test_api_key"

type request struct {
	payload event.IngestPayload
	header  http.Header
}

type ingestServer struct {
	mu       sync.Mutex
	requests []request
	status   int
}

func (s *ingestServer) received() []request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]request(nil), s.requests...)
}

// boot up a server on an unused local port and return
// http://localhost:<port>
func mockServer(t *testing.T, h http.Handler) string {
	listener, err := net.Listen("tcp", "localhost:")
	require.NoError(t, err)
	t.Cleanup(func() {
		listener.Close()
	})

	go http.Serve(listener, h)
	return "http://" + listener.Addr().String()
}

// mock ingestion service for testing
func mockIngestServer(t *testing.T) (*ingestServer, string) {
	s := &ingestServer{status: http.StatusCreated}
	r := mux.NewRouter()
	r.HandleFunc("/api/ingest", func(rw http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != apiKey {
			rw.WriteHeader(http.StatusUnauthorized)
			rw.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		var p event.IngestPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, request{payload: p, header: r.Header.Clone()})
		status := s.status
		s.mu.Unlock()
		rw.WriteHeader(status)
	}).Methods(http.MethodPost)
	return s, mockServer(t, r)
}

func newPage() *host.Page {
	return host.NewPage(host.Config{
		URL:       "https://shop.example.com/checkout",
		Title:     "Checkout",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Stderr:    io.Discard,
	})
}

func newClient(t *testing.T, page *host.Page, o *Options) *Client {
	t.Helper()
	if o.APIKey == "" {
		o.APIKey = apiKey
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 10 * time.Millisecond
	}
	c, err := New(page, o)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func wait(t *testing.T, c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

type failingTransport struct{ t *testing.T }

func (f failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.t.Fatal("unexpected network access")
	return nil, errors.New("unreachable")
}

func TestNew_missingAPIKey(t *testing.T) {
	clearEnv(t)
	c, err := New(nil, &Options{HTTPClient: &http.Client{Transport: failingTransport{t}}})
	require.Nil(t, c)

	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "APIKey", cerr.Field)
}

func Test_BugShot(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	page := newPage()
	c := newClient(t, page, &Options{Endpoint: endpoint, Environment: "staging", Release: "1.0.0"})
	c.Init()

	page.Click(host.Element{TagName: "BUTTON", ID: "submit", Text: "Pay"}, 120, 80)
	page.DispatchError(&host.ErrorEvent{
		Message: "x is not a function",
		Source:  "app.js",
		Line:    42,
		Err:     &host.Exception{Name: "TypeError", Message: "x is not a function"},
	})
	wait(t, c)

	requests := server.received()
	require.Len(t, requests, 1)
	p := requests[0].payload

	require.Equal(t, apiKey, p.APIKey)
	require.Equal(t, "TypeError", p.Error.Type)
	require.Equal(t, "x is not a function", p.Error.Message)
	require.Equal(t, "app.js", p.Error.File)
	require.Equal(t, 42, p.Error.Line)

	require.Equal(t, "https://shop.example.com/checkout", p.Context.URL)
	require.Equal(t, c.SessionID(), p.Context.SessionID)
	require.NotEmpty(t, p.Context.SessionID)
	require.Equal(t, c.AnonymousID(), p.Context.UserID)
	require.True(t, strings.HasPrefix(p.Context.UserID, "anon_"))
	require.Equal(t, "staging", p.Context.Environment)
	require.Equal(t, "1.0.0", p.Context.Release)
	require.Equal(t, "Chrome", p.Context.BrowserInfo.Name)
	require.Equal(t, event.DeviceDesktop, p.Context.DeviceInfo.Type)

	require.NotNil(t, p.SessionReplay)
	require.Equal(t, c.SessionID(), p.SessionReplay.SessionID)
	require.Len(t, p.SessionReplay.Events, 2)
	require.Equal(t, event.ReplayPageview, p.SessionReplay.Events[0].Type)
	click := p.SessionReplay.Events[1]
	require.Equal(t, event.ReplayClick, click.Type)
	require.Equal(t, "submit", click.Data["id"])
	require.Equal(t, float64(120), click.Data["x"])
	require.Equal(t, float64(80), click.Data["y"])
	require.GreaterOrEqual(t, click.Timestamp, int64(0))

	header := requests[0].header
	require.Equal(t, "application/json", header.Get("Content-Type"))
	require.True(t, strings.HasPrefix(header.Get("User-Agent"), "bugshot-go/"))
}

func TestSampleRate(t *testing.T) {
	for _, tc := range []struct {
		rate float64
		want int
	}{
		{0, 0},
		{1, 10},
	} {
		server, endpoint := mockIngestServer(t)
		page := newPage()
		c := newClient(t, page, &Options{Endpoint: endpoint, SampleRate: Float64(tc.rate)})
		c.Init()

		for i := 0; i < 10; i++ {
			page.Throw(errors.New("boom"))
		}
		wait(t, c)
		require.Len(t, server.received(), tc.want)
		if tc.rate == 0 {
			require.Equal(t, int64(10), c.metrics.Stats().Discarded[metrics.ReasonSampleRate])
		}
	}
}

func TestInit_idempotent(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	page := newPage()

	previous := 0
	page.ErrorSlot().Set(func(*host.ErrorEvent) bool {
		previous++
		return true
	})

	c := newClient(t, page, &Options{Endpoint: endpoint})
	c.Init()
	c.Init()

	require.True(t, page.Throw(errors.New("once")))
	wait(t, c)
	require.Equal(t, 1, previous)
	require.Len(t, server.received(), 1)

	c.Close()
	require.True(t, page.Throw(errors.New("after close")))
	wait(t, c)
	require.Equal(t, 2, previous)
	require.Len(t, server.received(), 1)

	c.Init()
	page.Throw(errors.New("again"))
	wait(t, c)
	require.Equal(t, 3, previous)
	require.Len(t, server.received(), 2)
}

func TestClose_restoresPage(t *testing.T) {
	_, endpoint := mockIngestServer(t)
	page := newPage()
	c := newClient(t, page, &Options{Endpoint: endpoint, Debug: true})
	c.Init()

	c.Close()
	_, ok := page.ErrorSlot().Get()
	require.False(t, ok)
	_, ok = page.RejectionSlot().Get()
	require.False(t, ok)
	require.Equal(t, 0, page.Document().ListenerCount(host.EventClick))
	require.Equal(t, 0, page.Window().ListenerCount(host.EventPageHide))
	require.False(t, c.Flush())
	c.Close()
}

func TestFlush(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	page := newPage()
	c := newClient(t, page, &Options{Endpoint: endpoint})
	c.Init()

	page.Input(host.Element{TagName: "INPUT", Name: "email", Value: "a@example.com"})
	require.True(t, c.Flush())
	wait(t, c)

	requests := server.received()
	require.Len(t, requests, 1)
	p := requests[0].payload
	require.Equal(t, SessionEndType, p.Error.Type)
	require.NotNil(t, p.SessionReplay)
	require.Len(t, p.SessionReplay.Events, 2)
	require.GreaterOrEqual(t, p.SessionReplay.DurationMs, int64(0))
	require.Equal(t, int64(1), c.metrics.Stats().Beacons)

	page.Unload()
	wait(t, c)
	require.Len(t, server.received(), 2)
}

func TestFlush_replayDisabled(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	page := newPage()
	c := newClient(t, page, &Options{Endpoint: endpoint, DisableSessionReplay: true})
	c.Init()

	require.False(t, c.Flush())
	page.Throw(errors.New("no replay"))
	wait(t, c)

	requests := server.received()
	require.Len(t, requests, 1)
	require.Nil(t, requests[0].payload.SessionReplay)
	c.ClearReplay()
}

func TestUserAndContext(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	c := newClient(t, nil, &Options{Endpoint: endpoint, User: &event.User{ID: "configured"}})
	c.Init()

	c.CaptureMessage("first", event.LevelInfo)
	c.SetUser(&event.User{ID: "u-1", Email: "u1@example.com"})
	require.NoError(t, c.SetContext("plan", "pro"))
	require.NoError(t, c.SetContext("seats", 3))
	require.Error(t, c.SetContext("nested", map[string]string{"a": "b"}))
	require.Error(t, c.SetContext("", "empty"))
	c.CaptureMessage("second", event.LevelWarning)
	c.SetUser(nil)
	c.CaptureMessage("third", event.LevelError)
	c.ClearContext()
	c.CaptureMessage("fourth", event.LevelInfo)
	wait(t, c)

	byMessage := map[string]event.IngestPayload{}
	for _, r := range server.received() {
		byMessage[r.payload.Error.Message] = r.payload
	}
	require.Len(t, byMessage, 4)

	require.Equal(t, "configured", byMessage["first"].Context.UserID)
	require.Equal(t, "Info", byMessage["first"].Error.Type)
	require.Nil(t, byMessage["first"].Context.Tags)

	require.Equal(t, "u-1", byMessage["second"].Context.UserID)
	require.Equal(t, "Warning", byMessage["second"].Error.Type)
	require.Equal(t, event.Tags{"plan": "pro", "seats": float64(3)}, byMessage["second"].Context.Tags)

	require.Equal(t, c.AnonymousID(), byMessage["third"].Context.UserID)
	require.Equal(t, event.Tags{"plan": "pro", "seats": float64(3)}, byMessage["third"].Context.Tags)

	require.Nil(t, byMessage["fourth"].Context.Tags)
	require.NoError(t, c.SetContext("plan", "free"))
}

func TestAnonymousID_persisted(t *testing.T) {
	storage := host.NewMemoryStorage()
	page := host.NewPage(host.Config{Storage: storage, Stderr: io.Discard})

	first := newClient(t, page, &Options{})
	second := newClient(t, page, &Options{})
	require.Equal(t, first.AnonymousID(), second.AnonymousID())

	first.SetUser(&event.User{ID: "someone"})
	stored, ok, err := storage.GetItem("bugshot_anonymous_user_id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.AnonymousID(), stored)
}

func TestRecover(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	c := newClient(t, nil, &Options{Endpoint: endpoint})
	c.Init()

	var line int
	require.NotPanics(t, func() {
		defer c.Recover()
		var m map[string]int
		_, _, line, _ = runtime.Caller(0)
		m["boom"]++
	})
	wait(t, c)

	requests := server.received()
	require.Len(t, requests, 1)
	require.Equal(t, "Error", requests[0].payload.Error.Type)
	require.Contains(t, requests[0].payload.Error.Message, "nil map")
	require.Contains(t, requests[0].payload.Error.StackTrace, "goroutine")
	require.True(t, strings.HasSuffix(requests[0].payload.Error.File, "bugshot_test.go"), requests[0].payload.Error.File)
	require.Equal(t, line+1, requests[0].payload.Error.Line)
	require.Contains(t, requests[0].payload.Error.Method, "TestRecover")
}

func TestCaptureError_location(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	page := newPage()
	c := newClient(t, page, &Options{Endpoint: endpoint})
	c.Init()

	_, _, line, _ := runtime.Caller(0)
	c.CaptureError(errors.New("manual"), nil)
	c.CaptureMessage("message", event.LevelInfo)
	page.Throw(errors.New("thrown"))
	wait(t, c)

	want := map[string]int{"manual": line + 1, "message": line + 2, "thrown": line + 3}
	requests := server.received()
	require.Len(t, requests, len(want))
	for _, r := range requests {
		e := r.payload.Error
		require.True(t, strings.HasSuffix(e.File, "bugshot_test.go"), e.File)
		require.Equal(t, want[e.Message], e.Line, e.Message)
		require.Contains(t, e.Method, "TestCaptureError_location")
	}
}

func TestBeforeSendAndIgnore(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	c := newClient(t, nil, &Options{
		Endpoint:     endpoint,
		IgnoreErrors: []string{"^ResizeObserver"},
		BeforeSend: func(e event.CapturedError) *event.CapturedError {
			if strings.Contains(e.Message, "secret") {
				return nil
			}
			e.Message = strings.ToUpper(e.Message)
			return &e
		},
	})
	c.Init()

	c.CaptureError(errors.New("ResizeObserver loop limit exceeded"), nil)
	c.CaptureError(errors.New("leaked secret"), nil)
	c.CaptureError(errors.New("kept"), &event.ErrorDetails{Method: "checkout"})
	wait(t, c)

	requests := server.received()
	require.Len(t, requests, 1)
	require.Equal(t, "KEPT", requests[0].payload.Error.Message)
	require.Equal(t, "checkout", requests[0].payload.Error.Method)
	require.Equal(t, int64(1), c.metrics.Stats().Discarded[metrics.ReasonBeforeSend])
}

func TestMaxEventsPerSecond(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	c := newClient(t, nil, &Options{Endpoint: endpoint, MaxEventsPerSecond: 1})
	c.Init()

	for i := 0; i < 3; i++ {
		c.CaptureMessage("burst", event.LevelError)
	}
	wait(t, c)
	require.Len(t, server.received(), 1)
	require.Equal(t, int64(2), c.metrics.Stats().Discarded[metrics.ReasonRateLimit])
}

func TestDeliveryErrors(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	server.mu.Lock()
	server.status = http.StatusServiceUnavailable
	server.mu.Unlock()

	var (
		mu   sync.Mutex
		errs []error
	)
	c := newClient(t, nil, &Options{
		Endpoint: endpoint,
		OnError: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		},
	})
	c.Init()
	c.CaptureMessage("down", event.LevelError)
	wait(t, c)

	require.Len(t, server.received(), 3)
	require.Len(t, errs, 3)
	require.ErrorIs(t, errs[0], ErrTransportFailure)

	server.mu.Lock()
	server.status = http.StatusBadRequest
	server.mu.Unlock()
	c.CaptureMessage("rejected", event.LevelError)
	wait(t, c)
	require.Len(t, server.received(), 4)
	require.ErrorIs(t, errs[3], ErrPermanentRejection)
}

func TestTokenSource(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	c := newClient(t, nil, &Options{
		Endpoint:    endpoint,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t0k3n"}),
	})
	c.Init()
	c.CaptureMessage("authenticated", event.LevelInfo)
	wait(t, c)

	requests := server.received()
	require.Len(t, requests, 1)
	require.Equal(t, "Bearer t0k3n", requests[0].header.Get("Authorization"))
	require.Equal(t, apiKey, requests[0].header.Get("X-Api-Key"))
}

func TestMetricsRegisterer(t *testing.T) {
	_, endpoint := mockIngestServer(t)
	reg := prometheus.NewRegistry()
	c := newClient(t, nil, &Options{Endpoint: endpoint, MetricsRegisterer: reg})
	c.Init()
	c.CaptureMessage("counted", event.LevelInfo)
	wait(t, c)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["bugshot_deliveries_total"])
}

func TestClearReplay(t *testing.T) {
	server, endpoint := mockIngestServer(t)
	page := newPage()
	c := newClient(t, page, &Options{Endpoint: endpoint})
	c.Init()

	page.Click(host.Element{ID: "a"}, 1, 1)
	c.ClearReplay()
	page.Click(host.Element{ID: "b"}, 2, 2)
	c.CaptureMessage("after clear", event.LevelInfo)
	wait(t, c)

	events := server.received()[0].payload.SessionReplay.Events
	require.Len(t, events, 1)
	require.Equal(t, "b", events[0].Data["id"])
}
