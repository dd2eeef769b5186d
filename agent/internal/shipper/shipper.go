package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/obsidianstack/threadwork/agent/internal/config"
	"github.com/obsidianstack/threadwork/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server answered %d", e.Code)
	}
	return fmt.Sprintf("server answered %d: %s", e.Code, e.Body)
}

// Permanent reports whether retrying the same report cannot succeed.
func (e *StatusError) Permanent() bool {
	if e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests {
		return false
	}
	return e.Code >= 400 && e.Code < 500
}

// Shipper buffers reports and posts them to threadwork-server.
type Shipper struct {
	cfg       config.ShipConfig
	buf       chan *types.Report
	client    *http.Client
	retryBase time.Duration
}

// New creates a Shipper for cfg.
func New(cfg config.ShipConfig) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		cfg:       cfg,
		buf:       make(chan *types.Report, size),
		client:    &http.Client{},
		retryBase: backoffInitial,
	}
}

// Ship enqueues r. If the buffer is full the oldest entry is evicted to make
// room.
func (s *Shipper) Ship(r *types.Report) {
	for {
		select {
		case s.buf <- r:
			return
		default:
		}
		select {
		case old := <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest report",
				"report", old.ID, "url", old.PageURL(), "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Pending returns the number of buffered reports.
func (s *Shipper) Pending() int { return len(s.buf) }

// Send posts one report and waits for the answer.
func (s *Shipper) Send(ctx context.Context, r *types.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("shipper: encode report: %w", err)
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	url := strings.TrimRight(s.cfg.ServerEndpoint, "/") + types.ReportsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("shipper: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Auth.Mode == "apikey" {
		if key := s.cfg.Auth.Key(); key != "" {
			req.Header.Set(s.cfg.Auth.Header, key)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("shipper: send: %w", err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return nil
}

// Run flushes the buffer every interval until ctx is cancelled, backing off
// while the server is unreachable.
func (s *Shipper) Run(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = config.DefaultShipInterval
	}
	bo := newBackoff(s.retryBase)
	wait := interval

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := s.flush(ctx); err != nil {
			wait = bo.next()
			slog.Warn("shipper: flush failed, will retry",
				"endpoint", s.cfg.ServerEndpoint,
				"pending", s.Pending(),
				"err", err,
				"retry_in", wait)
			continue
		}
		bo.reset()
		wait = interval
	}
}

// flush sends buffered reports until the buffer is empty or a retryable
// error occurs. The failed report goes back into the buffer.
func (s *Shipper) flush(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-s.buf:
			err := s.Send(ctx, r)
			if err == nil {
				slog.Debug("shipper: report delivered", "report", r.ID, "url", r.PageURL())
				continue
			}
			var se *StatusError
			if errors.As(err, &se) && se.Permanent() {
				slog.Error("shipper: permanent send error, discarding report",
					"report", r.ID, "err", err)
				continue
			}
			select {
			case s.buf <- r:
			default:
			}
			return err
		default:
			return nil
		}
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{initial: initial, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// ±25% jitter.
	d += time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
