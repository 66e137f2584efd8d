package api

import (
	"net/http"

	"github.com/example/visitbook/internal/crypto"
	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/response"
	"github.com/example/visitbook/internal/util"
)

// CalendarStatus reports the provider connection state.
func (h *Handler) CalendarStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := h.gateway.Context(ctx)

	payload := map[string]interface{}{
		"configured": h.oauth.IsConfigured(),
		"connected":  conn.Connected,
		"reachable":  conn.Reachable,
	}
	if conn.Reason != "" {
		payload["reason"] = conn.Reason
	}

	if conn.Connected {
		if record, err := h.oauth.Connection(ctx); err == nil {
			payload["account_email"] = record.AccountEmail
			payload["calendar_id"] = record.CalendarID
		}
	}

	response.JSON(w, http.StatusOK, payload)
}

// CalendarConnect begins the OAuth authorization flow and returns the
// consent URL for the operator to open.
func (h *Handler) CalendarConnect(w http.ResponseWriter, r *http.Request) {
	if !h.oauth.IsConfigured() {
		response.WriteError(w, http.StatusBadRequest, response.ErrCodeCalendarUnavailable,
			"Google OAuth credentials are not configured")
		return
	}

	state, err := crypto.GenerateOAuthState()
	if err != nil {
		response.WriteInternalError(w, "failed to generate OAuth state")
		return
	}

	if err := h.oauth.StoreOAuthState(r.Context(), state); err != nil {
		response.WriteInternalError(w, "failed to store OAuth state")
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"auth_url": h.oauth.AuthURL(state),
	})
}

// OAuthCallback completes the OAuth authorization flow.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		util.Warn("OAuth authorization denied", "error", errCode)
		response.WriteError(w, http.StatusBadRequest, response.ErrCodeCalendarUnavailable,
			"authorization was denied")
		return
	}

	state := query.Get("state")
	code := query.Get("code")
	if state == "" || code == "" {
		response.WriteError(w, http.StatusBadRequest, response.ErrCodeValidationError,
			"missing state or code parameter")
		return
	}

	ctx := r.Context()
	if err := h.oauth.ValidateOAuthState(ctx, state); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.ErrCodeValidationError,
			"invalid or expired OAuth state")
		return
	}

	if err := h.oauth.ExchangeCode(ctx, code); err != nil {
		util.Error("OAuth code exchange failed", "error", err.Error())
		response.WriteCalendarUnavailable(w, "failed to complete Google authorization")
		return
	}

	details := map[string]interface{}{}
	if record, err := h.oauth.Connection(ctx); err == nil {
		details["account_email"] = record.AccountEmail
	}
	h.auditLogger.Log(ctx, database.AuditCalendarLinked, "", "admin", details)

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"connected": true,
	})
}

// CalendarDisconnect removes the stored provider connection.
func (h *Handler) CalendarDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.oauth.DeleteConnection(r.Context()); err != nil {
		response.WriteInternalError(w, "failed to disconnect calendar")
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"connected": false,
	})
}
