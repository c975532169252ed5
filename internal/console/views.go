package console

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fleetdesk/fleetdesk-client/internal/access"
	"github.com/fleetdesk/fleetdesk-client/internal/device"
	"github.com/fleetdesk/fleetdesk-client/internal/fleetapi"
	"github.com/fleetdesk/fleetdesk-client/internal/realtime"
)

// defaultLogLimit is the page size for device usage logs.
const defaultLogLimit = 50

// loginRequest is the body of POST /login, as JSON or a form.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// occupyRequest is the body of POST /devices/{deviceId}/occupy.
type occupyRequest struct {
	Notes string `json:"notes"`
}

// handleLoginView describes the login form.
func (s *Server) handleLoginView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"view":   access.ViewLogin,
		"fields": []string{"username", "password"},
	})
}

// handleLogin signs in, stores the session, loads the devices and opens
// the realtime channel.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLogin(r)
	if err != nil {
		writeBadRequest(w, "invalid login request")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	ctx := r.Context()
	tok, err := s.api.Login(ctx, req.Username, req.Password)
	if err != nil {
		s.logger.Info("login failed", "username", req.Username, "error", err)
		writeUpstreamError(w, err)
		return
	}

	user, err := s.api.Me(ctx, tok.AccessToken)
	if err != nil {
		s.logger.Warn("fetching profile after login failed", "username", req.Username, "error", err)
		writeUpstreamError(w, err)
		return
	}

	if err := s.session.SetSession(ctx, tok.AccessToken, user); err != nil {
		// The in-memory session is set; only durability is lost.
		s.logger.Warn("session not persisted", "error", err)
	}
	s.logger.Info("signed in", "username", user.Username, "role", user.Role)

	s.startSession(ctx)

	writeJSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"redirect": access.DefaultLandingPath,
	})
}

// startSession loads the cache and opens the channel for a new session.
// Failures are logged: the console is usable and the channel retries.
func (s *Server) startSession(ctx context.Context) {
	if s.syncer != nil {
		if err := s.syncer.Refresh(ctx); err != nil {
			s.logger.Warn("initial device refresh failed", "error", err)
		}
	}
	if s.channel != nil {
		if err := s.channel.Connect(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("realtime connect failed", "error", err)
		}
	}
}

func decodeLogin(r *http.Request) (loginRequest, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return loginRequest{}, err
		}
		return loginRequest{
			Username: r.PostForm.Get("username"),
			Password: r.PostForm.Get("password"),
		}, nil
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return loginRequest{}, err
	}
	return req, nil
}

// handleLogout tears down the channel, the local event subscribers and
// the session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.channel != nil {
		s.channel.Disconnect()
	}
	s.hub.DropClients()
	if err := s.session.ClearSession(r.Context()); err != nil {
		s.logger.Warn("clearing stored session failed", "error", err)
	}
	s.logger.Info("signed out")

	writeJSON(w, http.StatusOK, map[string]any{
		"redirect": access.LoginPath,
	})
}

// handleDashboard returns the statistics and the channel state.
func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"stats":     s.cache.Stats(),
		"by_status": s.cache.CountByStatus(),
		"devices":   s.cache.Len(),
	}
	if s.channel != nil {
		resp["realtime"] = map[string]any{
			"state":             s.channel.State().String(),
			"reconnect_pending": s.channel.ReconnectPending(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDevices lists cached devices. Query params status, device_type and
// search narrow the list; search matches id, name or model.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	deviceType := q.Get("device_type")
	search := strings.ToLower(strings.TrimSpace(q.Get("search")))

	all := s.cache.Devices()
	devices := make([]device.Record, 0, len(all))
	for _, rec := range all {
		if status != "" && rec.Status() != status {
			continue
		}
		if deviceType != "" && rec.Type() != deviceType {
			continue
		}
		if search != "" && !matchesSearch(rec, search) {
			continue
		}
		devices = append(devices, rec)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func matchesSearch(rec device.Record, needle string) bool {
	model, _ := rec["model"].(string) //nolint:errcheck // missing model is ""
	for _, field := range []string{rec.ID(), rec.Name(), model} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// handleDeviceDetail returns one cached device.
func (s *Server) handleDeviceDetail(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cache.Get(chi.URLParam(r, "deviceId"))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": rec})
}

// handleTerminal returns the device's terminal socket URL. The server
// expects the session token in a "token" query parameter; the console
// does not hand it out.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceId")
	if _, err := s.cache.Get(id); err != nil {
		writeUpstreamError(w, err)
		return
	}

	terminalURL, err := realtime.BuildURL(s.terminalBase, "/ws/devices/"+id+"/terminal")
	if err != nil {
		s.logger.Warn("building terminal URL failed", "device_id", id, "error", err)
		writeInternalError(w, "terminal endpoint not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":   id,
		"url":         terminalURL,
		"token_param": "token",
	})
}

// handleProfile returns the signed-in user and the token expiry when known.
func (s *Server) handleProfile(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{}
	if user, ok := s.session.User(); ok {
		resp["user"] = user
	}
	if exp := s.session.TokenExpiry(); exp.Known {
		resp["token_expires_at"] = exp.At.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeviceLogs proxies a device's usage history.
func (s *Server) handleDeviceLogs(w http.ResponseWriter, r *http.Request) {
	skip, err := intParam(r, "skip", 0)
	if err != nil {
		writeBadRequest(w, "skip must be a non-negative integer")
		return
	}
	limit, err := intParam(r, "limit", defaultLogLimit)
	if err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}

	logs, err := s.api.DeviceLogs(r.Context(), chi.URLParam(r, "deviceId"), skip, limit)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

// handleOccupy occupies a device for the signed-in user.
func (s *Server) handleOccupy(w http.ResponseWriter, r *http.Request) {
	var req occupyRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	msg, err := s.api.Occupy(r.Context(), chi.URLParam(r, "deviceId"), req.Notes)
	s.finishMutation(w, r, msg, err)
}

// handleRelease releases a device.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	msg, err := s.api.Release(r.Context(), chi.URLParam(r, "deviceId"))
	s.finishMutation(w, r, msg, err)
}

// handleUpdateDevice edits device metadata.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var upd fleetapi.DeviceUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	msg, err := s.api.UpdateDevice(r.Context(), chi.URLParam(r, "deviceId"), upd)
	s.finishMutation(w, r, msg, err)
}

// handleScan asks the server to rediscover devices.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	result, err := s.api.ScanDevices(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	s.refresh(r.Context())
	writeJSON(w, http.StatusOK, result)
}

// finishMutation answers a mutation and re-syncs the cache on success.
func (s *Server) finishMutation(w http.ResponseWriter, r *http.Request, msg fleetapi.Message, err error) {
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	s.refresh(r.Context())
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) refresh(ctx context.Context) {
	if s.syncer == nil {
		return
	}
	if err := s.syncer.Refresh(ctx); err != nil {
		s.logger.Warn("device refresh after mutation failed", "error", err)
	}
}
