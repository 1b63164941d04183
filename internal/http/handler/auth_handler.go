package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/inkwell-auth/internal/config"
	"github.com/smallbiznis/inkwell-auth/internal/cookie"
	"github.com/smallbiznis/inkwell-auth/internal/domain"
	domainoauth "github.com/smallbiznis/inkwell-auth/internal/domain/oauth"
	"github.com/smallbiznis/inkwell-auth/internal/service"
	oauthsvc "github.com/smallbiznis/inkwell-auth/internal/service/oauth"
)

const (
	refreshCookie = "refresh_token"
	pendingCookie = "oauth2_pending"
)

// AuthHandler serves password login, token reissue, and the OAuth2 redirect
// round-trip.
type AuthHandler struct {
	Auth    *service.AuthService
	OAuth   oauthsvc.Service
	Cookies *cookie.Codec
	Cfg     config.Config
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, oauth oauthsvc.Service, cookies *cookie.Codec, cfg config.Config) *AuthHandler {
	return &AuthHandler{Auth: auth, OAuth: oauth, Cookies: cookies, Cfg: cfg}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// PasswordLogin exchanges email+password for a token pair.
func (h *AuthHandler) PasswordLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "email and password are required."})
		return
	}

	pair, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// Unknown email and wrong password answer identically.
		if errors.Is(err, domain.ErrMemberNotFound) || errors.Is(err, domain.ErrEmailPasswordMismatch) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "error_description": "Email or password is incorrect."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
		return
	}

	h.Cookies.Set(c.Writer, refreshCookie, pair.RefreshToken, h.Cfg.RefreshTokenTTL)
	c.JSON(http.StatusCreated, pair)
}

// Reissue mints a fresh access token from the refresh-token cookie. Any
// failure clears the cookie so the client falls back to a full login.
func (h *AuthHandler) Reissue(c *gin.Context) {
	refresh, err := h.Cookies.Get(c.Request, refreshCookie)
	if err != nil {
		h.Cookies.Delete(c.Writer, refreshCookie)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Refresh token missing or invalid."})
		return
	}

	access, err := h.Auth.Refresh(c.Request.Context(), refresh)
	if err != nil {
		h.Cookies.Delete(c.Writer, refreshCookie)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Refresh token missing or invalid."})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"type": "Bearer", "access_token": access})
}

// OAuthStart redirects the browser to the provider's authorization page and
// parks the pending request in an authenticated cookie.
func (h *AuthHandler) OAuthStart(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	mode := strings.TrimSpace(c.Query("mode"))

	pending, err := h.OAuth.StartAuthorization(provider, mode)
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	payload, err := json.Marshal(pending)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
		return
	}

	// A stale pending cookie from an abandoned attempt must not survive.
	h.Cookies.Delete(c.Writer, pendingCookie)
	h.Cookies.Set(c.Writer, pendingCookie, string(payload), h.Cfg.PendingFlowTTL)
	c.Redirect(http.StatusFound, pending.FullRedirectURI)
}

type oauthLoginResponse struct {
	Type         string `json:"type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Mode         string `json:"mode,omitempty"`
}

// OAuthCallback completes the provider round-trip and issues local tokens.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	raw, err := h.Cookies.Get(c.Request, pendingCookie)
	// One shot only: the pending cookie is consumed no matter the outcome.
	h.Cookies.Delete(c.Writer, pendingCookie)
	if err != nil {
		h.respondOAuthError(c, domainoauth.ErrPendingRequestMissing)
		return
	}

	var pending domainoauth.PendingRequest
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		h.respondOAuthError(c, domainoauth.ErrPendingRequestMissing)
		return
	}
	if pending.Provider != provider {
		h.respondOAuthError(c, domainoauth.ErrStateMismatch)
		return
	}

	result, err := h.OAuth.HandleCallback(c.Request.Context(), &pending, c.Query("state"), c.Query("code"))
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	h.Cookies.Set(c.Writer, refreshCookie, result.Tokens.RefreshToken, h.Cfg.RefreshTokenTTL)
	c.JSON(http.StatusCreated, oauthLoginResponse{
		Type:         result.Tokens.Type,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		Mode:         result.Mode,
	})
}

func (h *AuthHandler) respondOAuthError(c *gin.Context, err error) {
	logger := zap.L()
	switch {
	case errors.Is(err, domainoauth.ErrProviderNotFound):
		logger.Warn("oauth provider not found", zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "provider_not_found", "error_description": "OAuth provider is not configured."})
	case errors.Is(err, domainoauth.ErrPendingRequestMissing), errors.Is(err, domainoauth.ErrStateMismatch):
		logger.Warn("oauth state rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_state", "error_description": "Authorization request could not be verified."})
	case errors.Is(err, domainoauth.ErrProviderComm), errors.Is(err, domainoauth.ErrProfileFetch), errors.Is(err, domainoauth.ErrProfileDecode):
		logger.Error("oauth provider exchange failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider_error", "error_description": "Identity provider did not answer correctly."})
	default:
		logger.Error("oauth service failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}
