package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 250 * time.Millisecond
	DefaultTimeout      = 20 * time.Second
)

// Retrier runs JSON calls against an external provider. Only calls that carry
// an idempotency key are retried; a retried keyed call cannot execute twice.
type Retrier struct {
	Client       *http.Client
	MaxAttempts  int
	InitialDelay time.Duration
	Timeout      time.Duration
}

func NewRetrier(timeout time.Duration, maxAttempts int) *Retrier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Retrier{
		Client:       &http.Client{},
		MaxAttempts:  maxAttempts,
		InitialDelay: DefaultInitialDelay,
		Timeout:      timeout,
	}
}

type call struct {
	method         string
	url            string
	headers        map[string]string
	body           any
	idempotencyKey string
	// mutating calls that fail in transit become ErrAmbiguousOutcome;
	// read-only calls just return the transport error.
	mutating bool
}

type providerError struct {
	Status  int
	Message string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Message)
}

// do executes c and decodes a 2xx body into out (when out is non-nil).
func (r *Retrier) do(ctx context.Context, c call, out any) error {
	var payload []byte
	if c.body != nil {
		b, err := json.Marshal(c.body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}

	attempts := 1
	if c.idempotencyKey != "" || !c.mutating {
		attempts = r.MaxAttempts
	}

	var lastErr error
	sent := false
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * r.InitialDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return r.exhausted(c, sent, ctx.Err())
			}
		}

		status, body, err := r.once(ctx, c, payload)
		if err != nil {
			// The request may have reached the provider.
			sent = true
			lastErr = err
			continue
		}

		switch {
		case status >= 200 && status < 300:
			if out == nil || len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		case status == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, string(body))
		case status == http.StatusTooManyRequests || status >= 500:
			sent = true
			lastErr = &providerError{Status: status, Message: string(body)}
			continue
		default:
			return fmt.Errorf("%w: %w", ErrRejected, &providerError{Status: status, Message: string(body)})
		}
	}

	return r.exhausted(c, sent, lastErr)
}

func (r *Retrier) exhausted(c call, sent bool, lastErr error) error {
	if c.mutating && sent {
		return fmt.Errorf("%w after %d attempts: %v", ErrAmbiguousOutcome, r.MaxAttempts, lastErr)
	}
	if lastErr == nil {
		lastErr = errors.New("no attempt made")
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", r.MaxAttempts, lastErr)
}

func (r *Retrier) once(ctx context.Context, c call, payload []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, b, nil
}
