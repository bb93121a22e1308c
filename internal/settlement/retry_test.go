package settlement

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetrier() *Retrier {
	r := NewRetrier(200*time.Millisecond, 3)
	r.InitialDelay = time.Millisecond
	return r
}

func TestRetrier_RetriesKeyedCallOn5xx(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct{ OK bool }
	err := fastRetrier().do(context.Background(), call{
		method: "POST", url: srv.URL, body: map[string]int{"a": 1},
		idempotencyKey: "k1", mutating: true,
	}, &out)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !out.OK || hits.Load() != 3 {
		t.Errorf("ok=%v hits=%d", out.OK, hits.Load())
	}
}

func TestRetrier_UnkeyedMutationIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := fastRetrier().do(context.Background(), call{method: "POST", url: srv.URL, mutating: true}, nil)
	if !errors.Is(err, ErrAmbiguousOutcome) {
		t.Fatalf("expected ErrAmbiguousOutcome, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", hits.Load())
	}
}

func TestRetrier_TimeoutIsAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	r := fastRetrier()
	r.Timeout = 20 * time.Millisecond
	err := r.do(context.Background(), call{method: "POST", url: srv.URL, idempotencyKey: "k", mutating: true}, nil)
	if !errors.Is(err, ErrAmbiguousOutcome) {
		t.Fatalf("expected ErrAmbiguousOutcome, got %v", err)
	}
}

func TestRetrier_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrRejected},
		{http.StatusUnauthorized, ErrRejected},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		err := fastRetrier().do(context.Background(), call{method: "GET", url: srv.URL}, nil)
		srv.Close()
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
	}
}

func TestRetrier_ReadExhaustionIsNotAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := fastRetrier().do(context.Background(), call{method: "GET", url: srv.URL}, nil)
	if err == nil || errors.Is(err, ErrAmbiguousOutcome) {
		t.Fatalf("expected plain exhaustion error, got %v", err)
	}
}
