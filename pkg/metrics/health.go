package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health status of the process
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "unhealthy", "ready", "not_ready"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Counters   map[string]int    `json:"counters,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// CounterFunc reports named counters included in health responses
type CounterFunc func() map[string]int

// HealthChecker aggregates component health for the health endpoints
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	critical   []string
	counters   CounterFunc
	startTime  time.Time
	version    string
}

// NewHealthChecker creates a checker. Readiness requires every critical
// component to be registered and healthy.
func NewHealthChecker(version string, critical ...string) *HealthChecker {
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		critical:   critical,
		startTime:  time.Now(),
		version:    version,
	}
}

// SetCounters installs the counter source reported by /health
func (hc *HealthChecker) SetCounters(fn CounterFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.counters = fn
}

// Set records the health of a component
func (hc *HealthChecker) Set(name string, healthy bool, message string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// Health returns the overall health status
func (hc *HealthChecker) Health() HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string)

	for name, comp := range hc.components {
		if !comp.Healthy {
			status = "unhealthy"
			components[name] = "unhealthy: " + comp.Message
		} else {
			components[name] = "healthy"
		}
	}

	var counters map[string]int
	if hc.counters != nil {
		counters = hc.counters()
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Counters:   counters,
		Version:    hc.version,
		Uptime:     time.Since(hc.startTime).String(),
	}
}

// Readiness returns readiness status (checks if critical components are ready)
func (hc *HealthChecker) Readiness() HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string)

	for _, name := range hc.critical {
		comp, exists := hc.components[name]
		switch {
		case !exists:
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !comp.Healthy:
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + comp.Message
		default:
			components[name] = "ready"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    hc.version,
		Uptime:     time.Since(hc.startTime).String(),
	}
}

// HealthHandler serves /health
func (hc *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hc.Health()

		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		writeStatus(w, statusCode, health)
	}
}

// ReadyHandler serves /ready
func (hc *HealthChecker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := hc.Readiness()

		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		writeStatus(w, statusCode, readiness)
	}
}

// LivenessHandler returns 200 as long as the process is serving
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(hc.startTime).String(),
		})
	}
}

func writeStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
