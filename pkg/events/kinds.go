package events

import (
	"time"

	"github.com/cuemby/labdeck/pkg/types"
)

// Kind enumerates the server-to-client events
type Kind int

const (
	KindConnectionStatus Kind = iota
	KindPluginStatus
	KindTorrentProgress
	KindServerMetrics
	KindError
)

// Wire event names
const (
	EventConnectionStatus = "connection:status"
	EventPluginStatus     = "plugin:status"
	EventTorrentProgress  = "torrent:progress"
	EventServerMetrics    = "server:metrics"
	EventError            = "error"
)

// WireName returns the event name a Kind is pushed under
func (k Kind) WireName() string {
	switch k {
	case KindConnectionStatus:
		return EventConnectionStatus
	case KindPluginStatus:
		return EventPluginStatus
	case KindTorrentProgress:
		return EventTorrentProgress
	case KindServerMetrics:
		return EventServerMetrics
	case KindError:
		return EventError
	}
	return "unknown"
}

func (k Kind) String() string {
	return k.WireName()
}

// Event is a payload the Hub can route. The set of implementations is
// closed; producers pass one of the payload structs below by value.
type Event interface {
	Kind() Kind
	isEvent()
}

// Timestamp converts t into the epoch-millisecond form used on the wire
func Timestamp(t time.Time) int64 {
	return t.UnixMilli()
}

// ConnectionStatus acknowledges a live connection. It is sent by the hub
// on admission and in reply to ping.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	UserID    int64  `json:"userId"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

func (ConnectionStatus) Kind() Kind { return KindConnectionStatus }
func (ConnectionStatus) isEvent() {}

// PluginStatus is a snapshot of a plugin's install/enable state.
// Routed to connections subscribed to PluginID in the plugins namespace.
type PluginStatus struct {
	PluginID    int64            `json:"pluginId"`
	PluginType  types.PluginType `json:"pluginType"`
	IsEnabled   bool             `json:"isEnabled"`
	IsInstalled bool             `json:"isInstalled"`
	Timestamp   int64            `json:"timestamp"`
	Message     string           `json:"message,omitempty"`
}

func (PluginStatus) Kind() Kind { return KindPluginStatus }
func (PluginStatus) isEvent() {}

// TorrentStatus is the normalized state of a torrent
type TorrentStatus string

const (
	TorrentDownloading TorrentStatus = "downloading"
	TorrentSeeding     TorrentStatus = "seeding"
	TorrentPaused      TorrentStatus = "paused"
	TorrentStopped     TorrentStatus = "stopped"
	TorrentError       TorrentStatus = "error"
)

// TorrentProgress is a progress sample for one torrent of a torrent-client
// instance. Routed by InstanceID in the torrents namespace.
type TorrentProgress struct {
	InstanceID    int64         `json:"instanceId"`
	TorrentHash   string        `json:"torrentHash"`
	TorrentName   string        `json:"torrentName"`
	Progress      float64       `json:"progress"`      // 0-100
	DownloadSpeed int64         `json:"downloadSpeed"` // bytes/sec
	UploadSpeed   int64         `json:"uploadSpeed"`   // bytes/sec
	ETA           int64         `json:"eta"`           // seconds, negative when unknown
	Status        TorrentStatus `json:"status"`
	Timestamp     int64         `json:"timestamp"`
	Error         string        `json:"error,omitempty"`
}

func (TorrentProgress) Kind() Kind { return KindTorrentProgress }
func (TorrentProgress) isEvent() {}

type CPUStats struct {
	Percent float64 `json:"percent"`
	Cores   int     `json:"cores"`
}

type UsageStats struct {
	Used    uint64  `json:"used"`
	Total   uint64  `json:"total"`
	Percent float64 `json:"percent"`
}

type NetworkStats struct {
	BytesIn    uint64 `json:"bytesIn"`
	BytesOut   uint64 `json:"bytesOut"`
	PacketsIn  uint64 `json:"packetsIn"`
	PacketsOut uint64 `json:"packetsOut"`
}

// ServerMetrics is a resource snapshot of a monitored host. Routed by
// InstanceID in the metrics namespace.
type ServerMetrics struct {
	InstanceID int64        `json:"instanceId"`
	CPU        CPUStats     `json:"cpu"`
	Memory     UsageStats   `json:"memory"`
	Disk       UsageStats   `json:"disk"`
	Network    NetworkStats `json:"network"`
	Timestamp  int64        `json:"timestamp"`
}

func (ServerMetrics) Kind() Kind { return KindServerMetrics }
func (ServerMetrics) isEvent() {}

// ErrorNotice reports a problem detected elsewhere. It is delivered to
// every connection of the user regardless of subscriptions.
type ErrorNotice struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Timestamp int64                  `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

func (ErrorNotice) Kind() Kind { return KindError }
func (ErrorNotice) isEvent() {}
