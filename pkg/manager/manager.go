package manager

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/cuemby/labdeck/pkg/events"
	"github.com/cuemby/labdeck/pkg/log"
	"github.com/cuemby/labdeck/pkg/security"
	"github.com/cuemby/labdeck/pkg/storage"
	"github.com/cuemby/labdeck/pkg/types"
	"github.com/rs/zerolog"
)

// ErrInvalidArgument is wrapped by every validation failure
var ErrInvalidArgument = errors.New("invalid argument")

// Messages carried by plugin:status for lifecycle changes
const (
	MessageInstalled   = "installed"
	MessageEnabled     = "enabled"
	MessageDisabled    = "disabled"
	MessageUninstalled = "uninstalled"
)

// Manager owns a user's plugins, instances and alert thresholds. Every
// plugin lifecycle change is persisted first and then announced to the
// owner as a plugin:status event.
type Manager struct {
	store   storage.Store
	secrets *security.SecretsManager
	emitter events.Emitter
	logger  zerolog.Logger
}

// NewManager creates a new Manager. A nil emitter discards events, which
// is what offline CLI commands use.
func NewManager(store storage.Store, secrets *security.SecretsManager, emitter events.Emitter) *Manager {
	if emitter == nil {
		emitter = discard{}
	}
	return &Manager{
		store:   store,
		secrets: secrets,
		emitter: emitter,
		logger:  log.WithComponent("manager"),
	}
}

type discard struct{}

func (discard) Emit(int64, events.Event) {}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ListPlugins returns the plugins of a user
func (m *Manager) ListPlugins(userID int64) ([]*types.Plugin, error) {
	return m.store.ListPluginsByUser(userID)
}

// GetPlugin returns one of a user's plugins. Plugins of other users are
// reported as not found.
func (m *Manager) GetPlugin(userID, id int64) (*types.Plugin, error) {
	p, err := m.store.GetPlugin(id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("plugin %d: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

// InstallPlugin installs a plugin for a user. New plugins start disabled.
func (m *Manager) InstallPlugin(userID int64, pluginType types.PluginType, name string) (*types.Plugin, error) {
	if !pluginType.Valid() {
		return nil, invalid("unknown plugin type %q", pluginType)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = string(pluginType)
	}

	p := &types.Plugin{
		UserID:      userID,
		Type:        pluginType,
		Name:        name,
		IsInstalled: true,
	}
	if err := m.store.CreatePlugin(p); err != nil {
		return nil, fmt.Errorf("failed to install plugin: %w", err)
	}

	m.logger.Info().Int64("user_id", userID).Int64("plugin_id", p.ID).Str("type", string(pluginType)).Msg("plugin installed")
	m.announce(p, MessageInstalled)
	return p, nil
}

// EnablePlugin turns a plugin on
func (m *Manager) EnablePlugin(userID, id int64) (*types.Plugin, error) {
	return m.setEnabled(userID, id, true)
}

// DisablePlugin turns a plugin off
func (m *Manager) DisablePlugin(userID, id int64) (*types.Plugin, error) {
	return m.setEnabled(userID, id, false)
}

func (m *Manager) setEnabled(userID, id int64, enabled bool) (*types.Plugin, error) {
	p, err := m.GetPlugin(userID, id)
	if err != nil {
		return nil, err
	}

	p.IsEnabled = enabled
	if err := m.store.UpdatePlugin(p); err != nil {
		return nil, fmt.Errorf("failed to update plugin %d: %w", id, err)
	}

	message := MessageDisabled
	if enabled {
		message = MessageEnabled
	}
	m.logger.Info().Int64("user_id", userID).Int64("plugin_id", id).Msg("plugin " + message)
	m.announce(p, message)
	return p, nil
}

// UninstallPlugin removes a plugin
func (m *Manager) UninstallPlugin(userID, id int64) error {
	p, err := m.GetPlugin(userID, id)
	if err != nil {
		return err
	}
	if err := m.store.DeletePlugin(id); err != nil {
		return fmt.Errorf("failed to uninstall plugin %d: %w", id, err)
	}

	p.IsEnabled = false
	p.IsInstalled = false
	m.logger.Info().Int64("user_id", userID).Int64("plugin_id", id).Msg("plugin uninstalled")
	m.announce(p, MessageUninstalled)
	return nil
}

func (m *Manager) announce(p *types.Plugin, message string) {
	m.emitter.Emit(p.UserID, events.PluginStatus{
		PluginID:    p.ID,
		PluginType:  p.Type,
		IsEnabled:   p.IsEnabled,
		IsInstalled: p.IsInstalled,
		Message:     message,
	})
}

// InstanceSpec describes an instance to register
type InstanceSpec struct {
	Type     types.PluginType `json:"type"`
	Name     string           `json:"name"`
	URL      string           `json:"url"`
	Username string           `json:"username,omitempty"`
	Password string           `json:"password,omitempty"`
}

// Validate checks an instance spec
func (s InstanceSpec) Validate() error {
	if !s.Type.Valid() {
		return invalid("unknown instance type %q", s.Type)
	}
	if strings.TrimSpace(s.Name) == "" {
		return invalid("instance name is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" {
		return invalid("instance url %q is not absolute", s.URL)
	}
	switch u.Scheme {
	case "http", "https", "tcp":
	default:
		return invalid("unsupported url scheme %q", u.Scheme)
	}
	return nil
}

// ListInstances returns the instances of a user
func (m *Manager) ListInstances(userID int64) ([]*types.Instance, error) {
	return m.store.ListInstancesByUser(userID)
}

// GetInstance returns one of a user's instances
func (m *Manager) GetInstance(userID, id int64) (*types.Instance, error) {
	inst, err := m.store.GetInstance(id)
	if err != nil {
		return nil, err
	}
	if inst.UserID != userID {
		return nil, fmt.Errorf("instance %d: %w", id, storage.ErrNotFound)
	}
	return inst, nil
}

// AddInstance registers an instance, sealing its password before it is
// written
func (m *Manager) AddInstance(userID int64, spec InstanceSpec) (*types.Instance, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	inst := &types.Instance{
		UserID:   userID,
		Type:     spec.Type,
		Name:     strings.TrimSpace(spec.Name),
		URL:      strings.TrimRight(spec.URL, "/"),
		Username: spec.Username,
	}
	if spec.Password != "" {
		if m.secrets == nil {
			return nil, invalid("credentials require a configured secret key")
		}
		if err := m.secrets.SealInstancePassword(inst, spec.Password); err != nil {
			return nil, err
		}
	}

	if err := m.store.CreateInstance(inst); err != nil {
		return nil, fmt.Errorf("failed to add instance: %w", err)
	}
	m.logger.Info().Int64("user_id", userID).Int64("instance_id", inst.ID).Str("type", string(inst.Type)).Msg("instance added")
	return inst, nil
}

// RemoveInstance deletes an instance and its alert thresholds
func (m *Manager) RemoveInstance(userID, id int64) error {
	if _, err := m.GetInstance(userID, id); err != nil {
		return err
	}
	if err := m.store.DeleteInstance(id); err != nil {
		return fmt.Errorf("failed to remove instance %d: %w", id, err)
	}
	m.logger.Info().Int64("user_id", userID).Int64("instance_id", id).Msg("instance removed")
	return nil
}

// ListAlertThresholds returns the alert thresholds of a user
func (m *Manager) ListAlertThresholds(userID int64) ([]*types.AlertThreshold, error) {
	all, err := m.store.ListAlertThresholds()
	if err != nil {
		return nil, err
	}
	var out []*types.AlertThreshold
	for _, t := range all {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// SetAlertThreshold sets the threshold for one metric of an instance,
// replacing any previous threshold for the same metric
func (m *Manager) SetAlertThreshold(userID, instanceID int64, metric types.AlertMetric, percent float64) (*types.AlertThreshold, error) {
	if !metric.Valid() {
		return nil, invalid("unknown alert metric %q", metric)
	}
	if percent <= 0 || percent > 100 {
		return nil, invalid("threshold must be in (0, 100], got %g", percent)
	}
	if _, err := m.GetInstance(userID, instanceID); err != nil {
		return nil, err
	}

	existing, err := m.store.ListAlertThresholdsByInstance(instanceID)
	if err != nil {
		return nil, err
	}
	for _, t := range existing {
		if t.Metric == metric {
			if err := m.store.DeleteAlertThreshold(t.ID); err != nil {
				return nil, err
			}
		}
	}

	t := &types.AlertThreshold{
		UserID:     userID,
		InstanceID: instanceID,
		Metric:     metric,
		Percent:    percent,
	}
	if err := m.store.CreateAlertThreshold(t); err != nil {
		return nil, fmt.Errorf("failed to set alert threshold: %w", err)
	}
	return t, nil
}

// RemoveAlertThreshold deletes one of a user's alert thresholds
func (m *Manager) RemoveAlertThreshold(userID, id int64) error {
	owned, err := m.ListAlertThresholds(userID)
	if err != nil {
		return err
	}
	for _, t := range owned {
		if t.ID == id {
			return m.store.DeleteAlertThreshold(id)
		}
	}
	return fmt.Errorf("alert threshold %d: %w", id, storage.ErrNotFound)
}
