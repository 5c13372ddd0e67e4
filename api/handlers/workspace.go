package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/linesmerrill/adr-report-api/api"
	"github.com/linesmerrill/adr-report-api/config"
	"github.com/linesmerrill/adr-report-api/coordinator"
	"github.com/linesmerrill/adr-report-api/models"
)

// Workspace resolves the caller's coordinator and serves identity and view routes
type Workspace struct {
	Registry *coordinator.Registry
	Gate     *api.Gate
}

type viewBody struct {
	View coordinator.View `json:"view"`
}

type meResponse struct {
	CurrentUser string           `json:"currentUser"`
	View        coordinator.View `json:"view"`
}

// coordinator returns the caller's workspace, writing a 401 when the request
// carries no session
func (ws *Workspace) coordinator(w http.ResponseWriter, r *http.Request) (*coordinator.Coordinator, bool) {
	s, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("unauthorized", http.StatusUnauthorized, w, errors.New("no session in context"))
		return nil, false
	}
	gate := ws.Gate
	return ws.Registry.Acquire(s.SessionID, models.Identity{
		SessionID:   s.SessionID,
		CurrentUser: s.Username,
		Logout: func() error {
			return gate.EndSession(context.Background(), s, nil)
		},
	}), true
}

// MeHandler returns the signed-in user
func (ws *Workspace) MeHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := ws.coordinator(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{CurrentUser: c.CurrentUser(), View: c.Current()})
}

// LogoutHandler ends the session and drops the workspace
func (ws *Workspace) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := ws.coordinator(w, r)
	if !ok {
		return
	}
	if err := c.Logout(); err != nil {
		config.ErrorStatus("failed to log out", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ViewHandler returns the mounted view
func (ws *Workspace) ViewHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := ws.coordinator(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewBody{View: c.Current()})
}

// TransitionHandler switches the mounted view
func (ws *Workspace) TransitionHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := ws.coordinator(w, r)
	if !ok {
		return
	}
	var body viewBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if err := c.Transition(body.View); err != nil {
		workspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewBody{View: c.Current()})
}

// workspaceError maps coordinator errors onto responses
func workspaceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrViewNotActive):
		config.ErrorStatus("view not active", http.StatusConflict, w, err)
	case errors.Is(err, coordinator.ErrClosed):
		config.ErrorStatus("workspace closed", http.StatusConflict, w, err)
	case errors.Is(err, coordinator.ErrUnknownView):
		config.ErrorStatus("unknown view", http.StatusBadRequest, w, err)
	default:
		config.ErrorStatus("workspace error", http.StatusInternalServerError, w, err)
	}
}
