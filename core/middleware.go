package core

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ctxKeyAuth    = "auth"
	ctxKeyLogger  = "logger"
	ctxKeySlotErr = "slot_error"
)

// RequestLogger tags each request with an X-Request-ID and logs it once handled.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := requestID(c.GetHeader("X-Request-ID"))
		c.Header("X-Request-ID", reqID)
		reqLogger := logger.With(zap.String("request_id", reqID))
		c.Set(ctxKeyLogger, reqLogger)

		c.Next()

		reqLogger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func loggerFromContext(c *gin.Context, fallback *zap.Logger) *zap.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return fallback
}

// SessionMiddleware opens the browsing context's slot and attaches an AuthService over it.
// A slot that cannot be opened leaves the request unauthenticated rather than failing it; the
// failure is kept on the context so login handlers can refuse to report a session they cannot keep.
func SessionMiddleware(opener SlotOpener, remote RemoteAuth, opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOpts := opts
		reqOpts.Logger = loggerFromContext(c, opts.Logger)

		store, err := opener.Open(c.Writer, c.Request)
		if err != nil {
			if reqOpts.Logger != nil {
				reqOpts.Logger.Warn("open session slot failed", zap.Error(err))
			}
			store = NewMemorySessionStore()
			c.Set(ctxKeySlotErr, err)
		}
		c.Set(ctxKeyAuth, NewAuthService(store, remote, reqOpts))
		c.Next()
	}
}

func slotError(c *gin.Context) error {
	if v, ok := c.Get(ctxKeySlotErr); ok {
		if err, ok := v.(error); ok {
			return err
		}
	}
	return nil
}

// authFromContext returns the request's AuthService, or nil outside SessionMiddleware.
func authFromContext(c *gin.Context) *AuthService {
	v, ok := c.Get(ctxKeyAuth)
	if !ok {
		return nil
	}
	a, _ := v.(*AuthService)
	return a
}

// contextAuthenticator keeps a missing AuthService a nil interface so guards fail closed.
func contextAuthenticator(c *gin.Context) Authenticator {
	if a := authFromContext(c); a != nil {
		return a
	}
	return nil
}

// GuardPages applies g to page routes, answering a denial with 302 Found.
func GuardPages(g Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := g.Check(contextAuthenticator(c))
		if !decision.Allowed() {
			c.Redirect(http.StatusFound, decision.Redirect)
			c.Abort()
			return
		}
		c.Next()
	}
}

// GuardAPI applies g to JSON routes, answering a denial with 401.
func GuardAPI(g Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Check(contextAuthenticator(c)).Allowed() {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// OriginRefererMiddleware validates Origin/Referer against the allow-list and sets CORS headers.
// The shell's own origin is always accepted.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin, host string) bool {
		if origin == "" {
			// Same-origin navigation (no Origin header) is allowed.
			return true
		}
		origin = strings.ToLower(origin)
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, host) {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil {
				origin = u.Scheme + "://" + u.Host
			}
		}

		if c.Request.Method == http.MethodOptions && origin != "" {
			if !isAllowed(origin, c.Request.Host) {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
				c.Abort()
				return
			}
			setCORSHeaders(c, origin)
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if !isAllowed(origin, c.Request.Host) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-CSRF-Token")
	c.Header("Access-Control-Expose-Headers", "X-CSRF-Token")
	c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
}
