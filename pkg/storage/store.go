package storage

import (
	"errors"

	"github.com/cuemby/labdeck/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for labdeck's persisted records
type Store interface {
	// Plugins
	CreatePlugin(plugin *types.Plugin) error
	GetPlugin(id int64) (*types.Plugin, error)
	ListPlugins() ([]*types.Plugin, error)
	ListPluginsByUser(userID int64) ([]*types.Plugin, error)
	UpdatePlugin(plugin *types.Plugin) error
	DeletePlugin(id int64) error

	// Instances
	CreateInstance(instance *types.Instance) error
	GetInstance(id int64) (*types.Instance, error)
	ListInstances() ([]*types.Instance, error)
	ListInstancesByUser(userID int64) ([]*types.Instance, error)
	ListInstancesByType(t types.PluginType) ([]*types.Instance, error)
	DeleteInstance(id int64) error

	// Alert thresholds
	CreateAlertThreshold(threshold *types.AlertThreshold) error
	ListAlertThresholds() ([]*types.AlertThreshold, error)
	ListAlertThresholdsByInstance(instanceID int64) ([]*types.AlertThreshold, error)
	DeleteAlertThreshold(id int64) error

	// Utility
	Close() error
}
