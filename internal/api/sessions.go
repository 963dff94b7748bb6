package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/maddy52/whatsappweb/internal/audit"
	"github.com/maddy52/whatsappweb/internal/session"
)

// createSessionRequest is the body for POST /sessions.
type createSessionRequest struct {
	TrainerID string `json:"trainerId"`
}

// sendRequest is the body for POST /sessions/{id}/send.
type sendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// handleCreateSession registers a session for the tenant and kicks off
// initialization. Startup failures are not HTTP errors: the response is
// 200 with the failure carried in the session status, since the session
// record itself was created and the next operation will retry.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.TrainerID == "" {
		writeBadRequest(w, "trainerId is required")
		return
	}

	status, err := s.manager.Create(r.Context(), req.TrainerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"trainerId":   status.TenantID,
		"ready":       status.Ready,
		"qrAvailable": status.QRAvailable,
		"lastError":   status.LastError,
	})
}

// handleListSessions returns every known session.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.manager.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleSessionStatus returns one session's snapshot.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleSend dispatches a text message through the tenant's session.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.manager.Send(r.Context(), chi.URLParam(r, "id"), req.To, req.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"id": result.MessageID,
		"to": result.To,
	})
}

// handleSendMedia dispatches a media message. The request is multipart
// form data: a "file" part plus "to" and optional "caption" fields. The
// file is staged on disk for the sidecar and reclaimed later by the
// retention sweeper.
func (s *Server) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "media storage not configured")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "file part is required")
		return
	}
	defer file.Close()

	tenantID := chi.URLParam(r, "id")
	if err := session.ValidateTenantID(tenantID); err != nil {
		writeDomainError(w, err)
		return
	}

	path, err := s.store.Save(tenantID, header.Filename, file)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.manager.SendMedia(r.Context(), tenantID, r.FormValue("to"), path, r.FormValue("caption"))
	if err != nil {
		// The staged file stays on disk for retry and inspection; the
		// retention sweeper reclaims it eventually.
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"id": result.MessageID,
		"to": result.To,
	})
}

// handleLogout signs the tenant out remotely and removes the session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")
	if err := s.manager.Logout(r.Context(), tenantID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleDeleteSession destroys the session. With ?purge=true the on-disk
// authentication state, staged media, and message history go with it.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")
	purge := r.URL.Query().Get("purge") == "true"

	if err := s.manager.Delete(r.Context(), tenantID, purge); err != nil {
		writeDomainError(w, err)
		return
	}

	if purge {
		if s.store != nil {
			if err := s.store.PurgeTenant(tenantID); err != nil {
				s.logger.Warn("purging tenant media", "tenant", tenantID, "error", err)
			}
		}
		if s.audit != nil {
			if err := s.audit.PurgeTenant(r.Context(), tenantID); err != nil {
				s.logger.Warn("purging tenant message history", "tenant", tenantID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"purged": purge,
	})
}

// handleListMessages returns the tenant's send history, newest first.
// Supports kind, limit, and offset query parameters.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "message history not configured")
		return
	}

	tenantID := chi.URLParam(r, "id")
	if _, err := s.manager.Status(tenantID); err != nil && errors.Is(err, session.ErrUnknownTenant) {
		// History outlives the live session; only reject ids that never
		// passed validation.
		if verr := session.ValidateTenantID(tenantID); verr != nil {
			writeDomainError(w, verr)
			return
		}
	}

	filter := audit.Filter{Kind: r.URL.Query().Get("kind")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.ListByTenant(r.Context(), tenantID, filter)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
