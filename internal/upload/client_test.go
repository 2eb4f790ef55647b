package upload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vincentbai/classtrace/internal/models"
)

func testBatch(n int) models.InteractionBatch {
	b := models.InteractionBatch{Metadata: models.BatchMetadata{SessionID: "session_1", UserID: "user1"}}
	for i := 0; i < n; i++ {
		b.Interactions = append(b.Interactions, models.InteractionRecord{Type: models.KindClick, URL: "/dashboard/teacher"})
	}
	return b
}

func TestClientSendSuccess(t *testing.T) {
	var got models.InteractionBatch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/interactions" || r.Method != http.MethodPost {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"Stored 2 interactions","sessionId":"session_1"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/", Timeout: time.Second})
	resp, err := c.Send(context.Background(), testBatch(2))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !resp.Success || resp.Message != "Stored 2 interactions" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if len(got.Interactions) != 2 || got.Metadata.SessionID != "session_1" {
		t.Errorf("Sink received wrong batch: %+v", got)
	}
}

func TestClientClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrMalformedBatch},
		{http.StatusRequestEntityTooLarge, ErrMalformedBatch},
		{http.StatusUnprocessableEntity, ErrMalformedBatch},
		{http.StatusInternalServerError, ErrUploadFailed},
		{http.StatusServiceUnavailable, ErrUploadFailed},
		{http.StatusTooManyRequests, ErrUploadFailed},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"success":false,"error":"Invalid interactions data"}`))
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{BaseURL: srv.URL})
			_, err := c.Send(context.Background(), testBatch(1))
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(ClientConfig{BaseURL: url, Timeout: time.Second})
	if _, err := c.Send(context.Background(), testBatch(1)); !errors.Is(err, ErrUploadFailed) {
		t.Errorf("Expected ErrUploadFailed, got %v", err)
	}
}

func TestClientBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, BreakerFailures: 2, BreakerOpenFor: time.Minute})
	for i := 0; i < 4; i++ {
		if _, err := c.Send(context.Background(), testBatch(1)); !errors.Is(err, ErrUploadFailed) {
			t.Fatalf("Attempt %d: expected ErrUploadFailed, got %v", i, err)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("Expected breaker to stop requests after 2 failures, sink saw %d", n)
	}
}

func TestClientMalformedDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, BreakerFailures: 1, BreakerOpenFor: time.Minute})
	for i := 0; i < 3; i++ {
		if _, err := c.Send(context.Background(), testBatch(1)); !errors.Is(err, ErrMalformedBatch) {
			t.Fatalf("Attempt %d: expected ErrMalformedBatch, got %v", i, err)
		}
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("Expected every request to reach the sink, got %d", n)
	}
}

func TestClientHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	if err := NewClient(ClientConfig{BaseURL: srv.URL}).Healthy(context.Background()); err != nil {
		t.Errorf("Expected healthy sink, got %v", err)
	}
}
