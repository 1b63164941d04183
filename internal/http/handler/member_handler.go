package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/inkwell-auth/internal/domain"
	"github.com/smallbiznis/inkwell-auth/internal/http/middleware"
	"github.com/smallbiznis/inkwell-auth/internal/service"
)

// MemberHandler exposes member profile routes.
type MemberHandler struct {
	Auth *service.AuthService
}

func NewMemberHandler(auth *service.AuthService) *MemberHandler {
	return &MemberHandler{Auth: auth}
}

type memberResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Nickname    string `json:"nickname"`
	Role        string `json:"role"`
	IsActivated bool   `json:"is_activated"`
}

func toMemberResponse(m domain.Member) memberResponse {
	return memberResponse{
		ID:          m.ID.String(),
		Email:       m.Email,
		Nickname:    m.Nickname,
		Role:        m.Role.String(),
		IsActivated: m.IsActivated,
	}
}

// Me echoes the authenticated principal.
func (h *MemberHandler) Me(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authentication required."})
		return
	}
	c.JSON(http.StatusOK, memberResponse{
		ID:          principal.MemberID.String(),
		Email:       principal.Email,
		Nickname:    principal.Nickname,
		Role:        principal.Role.String(),
		IsActivated: principal.IsActivated,
	})
}

// ListMembers returns every member. Admin only.
func (h *MemberHandler) ListMembers(c *gin.Context) {
	members, err := h.Auth.ListMembers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"members": out})
}
