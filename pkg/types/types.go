package types

import (
	"fmt"
	"time"
)

// PluginType identifies the third-party service a plugin integrates
type PluginType string

const (
	PluginTypeJexactyl    PluginType = "jexactyl"
	PluginTypeQBittorrent PluginType = "qbittorrent"
	PluginTypeGlances     PluginType = "glances"
)

// Valid reports whether t is one of the supported plugin types
func (t PluginType) Valid() bool {
	switch t {
	case PluginTypeJexactyl, PluginTypeQBittorrent, PluginTypeGlances:
		return true
	}
	return false
}

// ParsePluginType converts a string into a PluginType
func ParsePluginType(s string) (PluginType, error) {
	t := PluginType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown plugin type %q", s)
	}
	return t, nil
}

// Plugin is a user's installation of one service integration
type Plugin struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"userId"`
	Type        PluginType `json:"type"`
	Name        string     `json:"name"`
	IsEnabled   bool       `json:"isEnabled"`
	IsInstalled bool       `json:"isInstalled"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Instance is one reachable deployment of a service (a qBittorrent
// WebUI, a Glances agent, a Jexactyl panel) owned by a user
type Instance struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"userId"`
	Type      PluginType `json:"type"`
	Name      string     `json:"name"`
	URL       string     `json:"url"`
	Username  string     `json:"username,omitempty"`
	Password  []byte     `json:"password,omitempty"` // Encrypted at rest
	CreatedAt time.Time  `json:"createdAt"`
}

// AlertMetric names a percentage metric an alert threshold can watch
type AlertMetric string

const (
	AlertMetricCPU    AlertMetric = "cpu"
	AlertMetricMemory AlertMetric = "memory"
	AlertMetricDisk   AlertMetric = "disk"
)

// Valid reports whether m is a supported alert metric
func (m AlertMetric) Valid() bool {
	switch m {
	case AlertMetricCPU, AlertMetricMemory, AlertMetricDisk:
		return true
	}
	return false
}

// AlertThreshold raises an error event when a metric of an instance
// crosses Percent
type AlertThreshold struct {
	ID         int64       `json:"id"`
	UserID     int64       `json:"userId"`
	InstanceID int64       `json:"instanceId"`
	Metric     AlertMetric `json:"metric"`
	Percent    float64     `json:"percent"`
	CreatedAt  time.Time   `json:"createdAt"`
}
