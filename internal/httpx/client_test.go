package httpx

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(retries int) (*Client, *[]time.Duration) {
	var waits []time.Duration
	c := New(2*time.Second, retries)
	c.sleep = func(d time.Duration) { waits = append(waits, d) }
	return c, &waits
}

func TestDoRetriesRateLimitWithBody(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "chat_id=1&text=hi" {
			t.Errorf("unexpected body %q", body)
		}
		if atomic.AddInt32(&count, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client, waits := newTestClient(2)
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("chat_id=1&text=hi"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || atomic.LoadInt32(&count) != 2 {
		t.Fatalf("unexpected status %d after %d calls", resp.StatusCode, count)
	}
	if len(*waits) != 1 || (*waits)[0] != time.Second {
		t.Fatalf("expected retry-after wait, got %v", *waits)
	}
}

func TestDoReturnsClientErrorsUnchanged(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(3)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || atomic.LoadInt32(&count) != 1 {
		t.Fatalf("expected a single 400, got %d after %d calls", resp.StatusCode, count)
	}
}

func TestDoGivesUpAfterRetries(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, waits := newTestClient(1)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable || atomic.LoadInt32(&count) != 2 || len(*waits) != 1 {
		t.Fatalf("unexpected retry behaviour status=%d calls=%d waits=%v", resp.StatusCode, count, *waits)
	}
}

func TestRetryAfterIsCapped(t *testing.T) {
	if got := retryAfter("120"); got != maxRetryAfter {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := retryAfter("soon"); got != 0 {
		t.Fatalf("expected zero for invalid header, got %v", got)
	}
}
