package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/labdeck/pkg/manager"
	"github.com/cuemby/labdeck/pkg/storage"
	"github.com/cuemby/labdeck/pkg/types"
	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps manager and store errors onto HTTP statuses
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, manager.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

func (s *Server) handleRealtimeStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Stats())
}

func (s *Server) handlePluginsList(w http.ResponseWriter, r *http.Request) {
	plugins, err := s.manager.ListPlugins(userFrom(r))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if plugins == nil {
		plugins = []*types.Plugin{}
	}
	writeJSON(w, http.StatusOK, plugins)
}

func (s *Server) handlePluginInstall(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Type types.PluginType `json:"type"`
		Name string           `json:"name"`
	}
	if !decode(w, r, &payload) {
		return
	}

	p, err := s.manager.InstallPlugin(userFrom(r), payload.Type, payload.Name)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handlePluginEnable(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	p, err := s.manager.EnablePlugin(userFrom(r), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePluginDisable(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	p, err := s.manager.DisablePlugin(userFrom(r), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePluginUninstall(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.manager.UninstallPlugin(userFrom(r), id); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// instanceResponse is an instance without its sealed password
type instanceResponse struct {
	ID             int64            `json:"id"`
	Type           types.PluginType `json:"type"`
	Name           string           `json:"name"`
	URL            string           `json:"url"`
	Username       string           `json:"username,omitempty"`
	HasCredentials bool             `json:"hasCredentials"`
	CreatedAt      time.Time        `json:"createdAt"`
}

func instanceToResponse(inst *types.Instance) instanceResponse {
	return instanceResponse{
		ID:             inst.ID,
		Type:           inst.Type,
		Name:           inst.Name,
		URL:            inst.URL,
		Username:       inst.Username,
		HasCredentials: len(inst.Password) > 0,
		CreatedAt:      inst.CreatedAt,
	}
}

func (s *Server) handleInstancesList(w http.ResponseWriter, r *http.Request) {
	instances, err := s.manager.ListInstances(userFrom(r))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := make([]instanceResponse, 0, len(instances))
	for _, inst := range instances {
		resp = append(resp, instanceToResponse(inst))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInstanceAdd(w http.ResponseWriter, r *http.Request) {
	var spec manager.InstanceSpec
	if !decode(w, r, &spec) {
		return
	}
	inst, err := s.manager.AddInstance(userFrom(r), spec)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, instanceToResponse(inst))
}

func (s *Server) handleInstanceRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.manager.RemoveInstance(userFrom(r), id); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAlertsList(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.manager.ListAlertThresholds(userFrom(r))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if alerts == nil {
		alerts = []*types.AlertThreshold{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleAlertSet(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		InstanceID int64             `json:"instanceId"`
		Metric     types.AlertMetric `json:"metric"`
		Percent    float64           `json:"percent"`
	}
	if !decode(w, r, &payload) {
		return
	}
	t, err := s.manager.SetAlertThreshold(userFrom(r), payload.InstanceID, payload.Metric, payload.Percent)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleAlertRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.manager.RemoveAlertThreshold(userFrom(r), id); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
