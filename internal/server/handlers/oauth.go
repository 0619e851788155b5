// Handles the OAuth login redirect and provider callback.

package handlers

import (
	"fmt"
	"net/http"

	"github.com/wordcrafter/drive-server/internal/server/dto"
	"github.com/wordcrafter/drive-server/internal/server/reqctx"
	"github.com/wordcrafter/drive-server/internal/utils"
)

// OAuthHandler handles the browser-facing OAuth flow. These are raw handlers
// because they speak redirects, not JSON.
type OAuthHandler struct {
	Svc  *Services
	Cfg  *Config
	Auth *AuthHandler
}

// LoginRedirect redirects the user to the identity provider's consent page.
func (h *OAuthHandler) LoginRedirect(w http.ResponseWriter, r *http.Request) {
	if h.Svc.Provider == nil {
		writeErrorResponse(w, dto.OAuthError("OAuth is not configured"))
		return
	}
	state, err := utils.GenerateToken(16)
	if err != nil {
		writeErrorResponse(w, dto.InternalWithError("Failed to generate state", err))
		return
	}
	http.Redirect(w, r, h.Svc.Provider.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the provider callback: it redeems the authorization code,
// upserts the user, opens a session, and redirects back to the frontend with
// the token in the query string.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.Svc.Provider == nil {
		writeErrorResponse(w, dto.OAuthError("OAuth is not configured"))
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeErrorResponse(w, dto.OAuthError("Authorization code missing"))
		return
	}

	ident, err := h.Svc.Provider.Exchange(r.Context(), code)
	if err != nil {
		writeErrorResponse(w, dto.OAuthError("Code exchange failed"))
		return
	}

	user, err := h.Svc.User.Upsert(ident)
	if err != nil {
		writeErrorResponse(w, dto.InternalWithError("Failed to create user", err))
		return
	}

	ctx := reqctx.WithClientIP(r.Context(), reqctx.GetClientIP(r))
	ctx = reqctx.WithUserAgent(ctx, r.UserAgent())
	token, err := h.Auth.GenerateTokenWithSession(ctx, user)
	if err != nil {
		writeErrorResponse(w, dto.InternalWithError("Failed to generate token", err))
		return
	}

	http.Redirect(w, r, fmt.Sprintf("%s?token=%s", h.Cfg.BaseURL, token), http.StatusTemporaryRedirect)
}
