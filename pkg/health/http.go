package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxProbeBody bounds how much of a response is drained so the
// connection can be reused
const maxProbeBody = 4 << 10

// HTTPChecker probes an instance's web endpoint. Redirects are reported,
// not followed: a login redirect still proves the service is up.
type HTTPChecker struct {
	URL       string
	Header    http.Header
	MinStatus int
	MaxStatus int
	client    *http.Client
}

// NewHTTPChecker creates a probe that accepts 2xx and 3xx responses
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:       url,
		Header:    make(http.Header),
		MinStatus: http.StatusOK,
		MaxStatus: 399,
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Check issues one GET against the instance
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return finish(start, false, fmt.Sprintf("invalid probe request: %v", err))
	}
	for key, values := range h.Header {
		req.Header[key] = values
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return finish(start, false, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProbeBody))

	msg := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if resp.StatusCode < h.MinStatus || resp.StatusCode > h.MaxStatus {
		return finish(start, false, fmt.Sprintf("%s (expected %d-%d)", msg, h.MinStatus, h.MaxStatus))
	}
	return finish(start, true, msg)
}

func (h *HTTPChecker) Type() CheckType { return CheckTypeHTTP }

// WithHeader adds a request header
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Header.Set(key, value)
	return h
}

// WithStatusRange sets the inclusive range of statuses that count as reachable
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.MinStatus, h.MaxStatus = min, max
	return h
}

// WithTimeout bounds the whole request
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.client.Timeout = timeout
	return h
}

func finish(start time.Time, healthy bool, msg string) Result {
	return Result{
		Healthy:   healthy,
		Message:   msg,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
