// Package transport delivers ingest payloads to the ingestion endpoint, with
// a bounded retry queue for transient failures and a fire-and-forget beacon
// path for page teardown.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bugshot/bugshot-go/internal/metrics"
	"github.com/bugshot/bugshot-go/internal/shared"
	"github.com/bugshot/bugshot-go/pkg/event"
	"golang.org/x/sync/semaphore"
)

const IngestPath = "/api/ingest"

var (
	// ErrTransportFailure marks a network failure or a 5xx response. These
	// are retried.
	ErrTransportFailure = errors.New("bugshot: transport failure")
	// ErrPermanentRejection marks any other non-2xx response. These are
	// never retried.
	ErrPermanentRejection = errors.New("bugshot: payload rejected")
)

type Config struct {
	// Endpoint is the base URL of the ingestion service.
	Endpoint string
	Client   *http.Client

	RetryDelay  time.Duration
	QueueSize   int
	MaxAttempts int
	MaxInFlight int64
	BeaconLimit int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	OnError func(error)
}

type entry struct {
	body     []byte
	attempts int
}

type Transport struct {
	cfg     Config
	url     string
	log     *slog.Logger
	sem     *semaphore.Weighted
	pending pending

	mu    sync.Mutex
	queue []*entry
}

func New(cfg Config) (*Transport, error) {
	u, err := url.JoinPath(cfg.Endpoint, IngestPath)
	if err != nil {
		return nil, fmt.Errorf("bugshot: invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = shared.DefaultRetryDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = shared.RetryQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = shared.MaxDeliveryAttempts
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if cfg.BeaconLimit <= 0 {
		cfg.BeaconLimit = shared.BeaconLimit
	}
	if cfg.Metrics == nil {
		cfg.Metrics, _ = metrics.New(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return &Transport{
		cfg: cfg,
		url: u,
		log: cfg.Logger,
		sem: semaphore.NewWeighted(cfg.MaxInFlight),
	}, nil
}

// URL is the full ingestion URL.
func (t *Transport) URL() string {
	return t.url
}

// Send delivers payload and reports whether the endpoint accepted it.
// Transient failures are queued for retry.
func (t *Transport) Send(ctx context.Context, payload *event.IngestPayload) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		t.cfg.Metrics.RecordDiscard(metrics.ReasonSendError)
		t.cfg.OnError(fmt.Errorf("bugshot: encoding payload: %w", err))
		return false
	}
	return t.attempt(ctx, &entry{body: body})
}

// SendAsync runs Send on its own goroutine. Wait blocks until it is done.
func (t *Transport) SendAsync(payload *event.IngestPayload) {
	t.pending.add()
	go func() {
		defer t.pending.done()
		t.Send(context.Background(), payload)
	}()
}

// SendBeacon issues a single delivery that outlives the caller and is never
// retried. It reports whether the request was issued, not whether it was
// received.
func (t *Transport) SendBeacon(payload *event.IngestPayload) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		t.log.Debug("beacon payload could not be encoded", "error", err)
		return false
	}
	if len(body) > t.cfg.BeaconLimit {
		t.log.Debug("beacon payload too large", "size", len(body), "limit", t.cfg.BeaconLimit)
		t.cfg.Metrics.RecordDiscard(metrics.ReasonSendError)
		return false
	}

	t.cfg.Metrics.RecordBeacon()
	t.pending.add()
	go func() {
		defer t.pending.done()
		outcome, err := t.post(context.Background(), body)
		t.cfg.Metrics.RecordDelivery(outcome)
		if err != nil {
			t.log.Debug("beacon delivery failed", "error", err)
		}
	}()
	return true
}

// QueueLen returns the number of payloads waiting for a retry.
func (t *Transport) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Wait blocks until every asynchronous send, beacon and scheduled retry has
// finished, or ctx is done.
func (t *Transport) Wait(ctx context.Context) error {
	return t.pending.wait(ctx)
}

func (t *Transport) attempt(ctx context.Context, e *entry) bool {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		t.cfg.Metrics.RecordDiscard(metrics.ReasonSendError)
		return false
	}
	e.attempts++
	outcome, err := t.post(ctx, e.body)
	t.sem.Release(1)

	t.cfg.Metrics.RecordDelivery(outcome)
	switch outcome {
	case metrics.OutcomeSuccess:
		t.log.Debug("error sent", "attempt", e.attempts)
		return true
	case metrics.OutcomeRetryable:
		t.cfg.OnError(err)
		if e.attempts >= t.cfg.MaxAttempts {
			t.log.Debug("giving up on payload", "attempts", e.attempts, "error", err)
			t.cfg.Metrics.RecordDiscard(metrics.ReasonRetriesExhausted)
			return false
		}
		t.enqueue(e)
		return false
	default:
		t.cfg.OnError(err)
		t.cfg.Metrics.RecordDiscard(metrics.ReasonSendError)
		return false
	}
}

// enqueue adds e to the retry queue, dropping the oldest entry when the
// queue is full, and schedules one retry.
func (t *Transport) enqueue(e *entry) {
	t.mu.Lock()
	if len(t.queue) >= t.cfg.QueueSize {
		t.queue[0] = nil
		t.queue = t.queue[1:]
		t.cfg.Metrics.RecordDiscard(metrics.ReasonQueueOverflow)
	}
	t.queue = append(t.queue, e)
	n := len(t.queue)
	t.mu.Unlock()

	t.cfg.Metrics.SetQueueLen(n)
	t.log.Debug("queued for retry", "queueLen", n, "delay", t.cfg.RetryDelay)

	t.pending.add()
	time.AfterFunc(t.cfg.RetryDelay, func() {
		defer t.pending.done()
		t.retry()
	})
}

func (t *Transport) retry() {
	t.mu.Lock()
	if len(t.queue) == 0 {
		t.mu.Unlock()
		return
	}
	e := t.queue[0]
	t.queue[0] = nil
	t.queue = t.queue[1:]
	n := len(t.queue)
	t.mu.Unlock()

	t.cfg.Metrics.SetQueueLen(n)
	t.cfg.Metrics.RecordRetry()
	t.attempt(context.Background(), e)
}

func (t *Transport) post(ctx context.Context, body []byte) (metrics.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return metrics.OutcomeRejected, fmt.Errorf("%w: %w", ErrPermanentRejection, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		return metrics.OutcomeRetryable, fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return metrics.OutcomeSuccess, nil
	case resp.StatusCode >= 500:
		return metrics.OutcomeRetryable, fmt.Errorf("%w: got HTTP %v posting to %v", ErrTransportFailure, resp.Status, IngestPath)
	default:
		return metrics.OutcomeRejected, fmt.Errorf("%w: got HTTP %v posting to %v", ErrPermanentRejection, resp.Status, IngestPath)
	}
}
