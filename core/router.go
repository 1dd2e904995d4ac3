package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// RouterDeps are the collaborators wired into the shell.
type RouterDeps struct {
	Cookies sessions.Store // browser-session cookie store, also holds the CSRF token
	Slots   SlotOpener
	Remote  RemoteAuth
	Auth    AuthOptions
	Redis   RedisClientRaw // optional; adds logout queue status to /healthz
	Logger  *zap.Logger
}

// NewRouter constructs the Gin engine with pages, guards and the session API wired.
func NewRouter(cfg Config, deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Auth.Logger == nil {
		deps.Auth.Logger = logger
	}
	if deps.Auth.Lifetime <= 0 {
		deps.Auth.Lifetime = cfg.SessionLifetime
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.SetHTMLTemplate(loadTemplates())

	startedAt := time.Now()
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		c.JSON(http.StatusOK, CollectStatus(ctx, deps.Redis, startedAt))
	})

	session := SessionMiddleware(deps.Slots, deps.Remote, deps.Auth)
	csrf := CSRFMiddleware(cfg, deps.Cookies, "POST "+cfg.LoginPath, "POST /api/session")
	p := pages{cfg: cfg}

	shell := r.Group("/", csrf, session)
	shell.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, cfg.HomePath)
	})
	shell.POST("/logout", p.logout)

	public := shell.Group("", GuardPages(PublicOnlyGuard{LandingPath: cfg.LandingPath}))
	{
		public.GET(cfg.HomePath, p.home)
		public.GET(cfg.LoginPath, p.login)
		public.POST(cfg.LoginPath, p.loginSubmit)
		public.GET("/register", p.register)
	}

	protected := shell.Group(cfg.LandingPath, GuardPages(ProtectedGuard{LoginPath: cfg.LoginPath}))
	{
		protected.GET("", p.dashboard)
		protected.GET("/:section", p.dashboardSection)
	}

	api := r.Group("/api", OriginRefererMiddleware(cfg), csrf, session)
	{
		api.GET("/session", func(c *gin.Context) {
			record, ok := authFromContext(c).Current()
			if !ok {
				c.JSON(http.StatusOK, gin.H{"authenticated": false})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"authenticated": true,
				"username":      record.Username,
				"expires_at":    record.ExpiresAt,
			})
		})

		api.POST("/session", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.AuthTimeout)
			defer cancel()

			if err := loginInContext(ctx, c, req.Username, req.Password); err != nil {
				status, code, message := loginFailure(err)
				respondError(c, status, code, message)
				return
			}
			record, ok := authFromContext(c).Current()
			if !ok {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session not persisted")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"user":       gin.H{"username": record.Username},
				"expires_at": record.ExpiresAt,
			})
		})

		api.DELETE("/session", func(c *gin.Context) {
			authFromContext(c).Logout()
			c.Status(http.StatusNoContent)
		})

		api.POST("/session/revalidate", GuardAPI(ProtectedGuard{LoginPath: cfg.LoginPath}), func(c *gin.Context) {
			ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.AuthTimeout)
			defer cancel()

			valid, err := authFromContext(c).Revalidate(ctx)
			if err != nil {
				if errors.Is(err, ErrNoSession) {
					respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
					return
				}
				respondError(c, http.StatusBadGateway, "AUTH_UNAVAILABLE", "authentication backend unavailable")
				return
			}
			c.JSON(http.StatusOK, gin.H{"valid": valid})
		})
	}

	return r
}
