package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/inkwell-auth/internal/config"
	"github.com/smallbiznis/inkwell-auth/internal/domain"
	"github.com/smallbiznis/inkwell-auth/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/inkwell-auth/internal/http/middleware"
	"github.com/smallbiznis/inkwell-auth/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, memberHandler *handler.MemberHandler, security *httpmiddleware.Security, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(security.Authenticate)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := r.Group("/auth")
	{
		authGroup.POST("", authHandler.PasswordLogin)
		authGroup.POST("/jwt/reissue", authHandler.Reissue)
	}

	oauth := r.Group("/oauth2")
	{
		oauth.GET("/:provider", authHandler.OAuthStart)
		oauth.GET("/:provider/callback", authHandler.OAuthCallback)
	}

	members := r.Group("/members")
	{
		members.GET("/me", httpmiddleware.RequireRole(domain.RoleMember), memberHandler.Me)
	}

	admin := r.Group("/admin", httpmiddleware.RequireRole(domain.RoleAdmin))
	{
		admin.GET("/members", memberHandler.ListMembers)
	}

	return r
}
