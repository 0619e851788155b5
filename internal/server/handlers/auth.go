// Handles session-backed authentication requests.

package handlers

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/ksid"
	"github.com/wordcrafter/drive-server/internal/server/dto"
	"github.com/wordcrafter/drive-server/internal/server/reqctx"
	"github.com/wordcrafter/drive-server/internal/storage"
	"github.com/wordcrafter/drive-server/internal/storage/identity"
	"github.com/wordcrafter/drive-server/internal/utils"
)

// tokenExpiration is how long issued tokens and their sessions stay valid.
const tokenExpiration = 24 * time.Hour

// AuthHandler handles authentication requests.
type AuthHandler struct {
	Svc *Services
	Cfg *Config
}

// GenerateTokenWithSession creates a session and signs a JWT that embeds the
// session ID. The session ID is generated before signing so the token can
// carry it in the "sid" claim.
func (h *AuthHandler) GenerateTokenWithSession(ctx context.Context, user *identity.User) (string, error) {
	sessionID := ksid.NewID()
	expiresAt := time.Now().Add(tokenExpiration)

	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"sid":   sessionID.String(),
		"email": user.Email,
		"exp":   expiresAt.Unix(),
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(h.Cfg.JWTSecret))
	if err != nil {
		return "", err
	}

	deviceInfo := reqctx.UserAgent(ctx)
	if len(deviceInfo) > 200 {
		deviceInfo = deviceInfo[:200]
	}
	clientIP := reqctx.ClientIP(ctx)
	countryCode := ""
	if h.Svc.Geo != nil {
		countryCode = h.Svc.Geo.CountryCode(clientIP)
	}

	if _, err := h.Svc.Session.CreateWithID(sessionID, user.ID, utils.HashToken(tokenString), deviceInfo, clientIP, countryCode, storage.ToTime(expiresAt)); err != nil {
		return "", err
	}
	return tokenString, nil
}

// GetMe returns the current user with their storage accounting.
func (h *AuthHandler) GetMe(ctx context.Context, req *dto.GetMeRequest) (*dto.UserResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	return userToResponse(user), nil
}

// Logout revokes the session carried by the current token.
func (h *AuthHandler) Logout(ctx context.Context, req *dto.LogoutRequest) (*dto.LogoutResponse, error) {
	sessionID := reqctx.SessionID(ctx)
	if sessionID.IsZero() {
		return nil, dto.Unauthorized()
	}
	if err := h.Svc.Session.Revoke(sessionID); err != nil {
		return nil, dto.InternalWithError("Failed to revoke session", err)
	}
	return &dto.LogoutResponse{Ok: true}, nil
}
