// Package httpx is the HTTP client behind the Telegram Bot API connection.
// It retries requests that never reached the server and responses that ask
// the caller to come back later.
package httpx

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

const maxRetryAfter = 5 * time.Second

type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
	sleep      func(time.Duration)
}

// New builds a client. timeout bounds a whole request, so it must exceed the
// long-poll wait when the client serves getUpdates.
func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  "walletbot/1.0",
		sleep:      time.Sleep,
	}
}

// Do satisfies the Bot API's HTTPClient interface. A 429 or 502/503/504 is
// retried after the server's retry_after hint or a jittered backoff; other
// statuses are returned as-is for the caller to decode.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		attemptReq := req
		if attempt > 0 {
			if err := req.Context().Err(); err != nil {
				return nil, err
			}
			clone, err := rewind(req)
			if err != nil {
				return nil, err
			}
			attemptReq = clone
		}

		resp, err := c.httpClient.Do(attemptReq)
		if err != nil {
			lastErr = err
			if attempt < c.retries && retryableNetError(err) {
				c.sleep(backoff(attempt + 1))
				continue
			}
			return nil, err
		}
		if !retryableStatus(resp.StatusCode) || attempt == c.retries {
			return resp, nil
		}
		wait := retryAfter(resp.Header.Get("Retry-After"))
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		lastErr = fmt.Errorf("telegram api status %d", resp.StatusCode)
		if wait <= 0 {
			wait = backoff(attempt + 1)
		}
		c.sleep(wait)
	}
	return nil, lastErr
}

func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("replay request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryableNetError reports failures that happened before a response, where
// resending cannot duplicate a message. Timeouts are excluded.
func retryableNetError(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}
