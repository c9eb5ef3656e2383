package health

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/labdeck/pkg/types"
)

// CheckType represents the type of reachability probe
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result represents the outcome of a probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all probes must implement
type Checker interface {
	// Check performs the probe and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of probe
	Type() CheckType
}

// Config contains common configuration for all probes
type Config struct {
	// Interval is the time between probe rounds
	Interval time.Duration

	// Timeout is the maximum time to wait for one probe to complete
	Timeout time.Duration

	// Retries is the number of consecutive failures before an instance is
	// considered unreachable
	Retries int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
		Retries:  3,
	}
}

// Status tracks the reachability of one instance across probes
type Status struct {
	// ConsecutiveFailures tracks the number of consecutive failed probes
	ConsecutiveFailures int

	// ConsecutiveSuccesses tracks the number of consecutive successful probes
	ConsecutiveSuccesses int

	// LastCheck is the timestamp of the last probe
	LastCheck time.Time

	// LastResult is the result of the last probe
	LastResult Result

	// Healthy indicates if the instance is currently considered reachable
	Healthy bool
}

// NewStatus creates a new Status. Instances start out reachable.
func NewStatus() *Status {
	return &Status{Healthy: true}
}

// Update folds a probe result into the status and reports whether Healthy
// flipped as a result
func (s *Status) Update(result Result, config Config) bool {
	was := s.Healthy
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0

		// Recover on first success
		s.Healthy = true
	} else {
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0

		retries := config.Retries
		if retries < 1 {
			retries = 1
		}
		if s.ConsecutiveFailures >= retries {
			s.Healthy = false
		}
	}

	return was != s.Healthy
}

// CheckerFor builds the probe for an instance. tcp:// URLs get a TCP dial;
// everything else is probed over HTTP, where any non-5xx answer counts as
// reachable since most service roots redirect or demand a login.
func CheckerFor(inst *types.Instance, timeout time.Duration) Checker {
	if strings.HasPrefix(inst.URL, "tcp://") {
		if u, err := url.Parse(inst.URL); err == nil && u.Host != "" {
			return NewTCPChecker(u.Host).WithTimeout(timeout)
		}
	}
	return NewHTTPChecker(inst.URL).
		WithStatusRange(200, 499).
		WithTimeout(timeout)
}
