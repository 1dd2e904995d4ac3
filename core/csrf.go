package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	csrfSessionKey = "csrf_token"
	csrfHeader     = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
	ctxKeyCSRF     = "csrf"
)

// CSRFMiddleware issues a token per browser session and requires it on unsafe methods, either in
// the X-CSRF-Token header or the csrf_token form field. Routes in exempt ("POST /login") skip validation.
func CSRFMiddleware(cfg Config, store sessions.Store, exempt ...string) gin.HandlerFunc {
	skip := map[string]struct{}{}
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		logger := loggerFromContext(c, zap.NewNop())
		session := loadBrowserSession(cfg, store, c.Request, logger)

		token, _ := session.Values[csrfSessionKey].(string)
		if token == "" {
			var err error
			token, err = generateCSRFToken()
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue csrf token")
				c.Abort()
				return
			}
			session.Values[csrfSessionKey] = token
			if err := session.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
				c.Abort()
				return
			}
		}

		if _, ok := skip[c.Request.Method+" "+c.Request.URL.Path]; !ok && !isSafeMethod(c.Request.Method) {
			sent := c.GetHeader(csrfHeader)
			if sent == "" {
				sent = c.PostForm(csrfFormField)
			}
			if sent == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(token)) != 1 {
				logger.Info("csrf check failed", zap.String("path", c.Request.URL.Path))
				respondError(c, http.StatusForbidden, "FORBIDDEN", "invalid csrf token")
				c.Abort()
				return
			}
		}

		c.Set(ctxKeyCSRF, token)
		c.Header(csrfHeader, token)
		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
