package core

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// CookieSlots keeps each browsing context's slot inside its signed session cookie.
type CookieSlots struct {
	cfg    Config
	store  sessions.Store
	logger *zap.Logger
}

func NewCookieSlots(cfg Config, store sessions.Store, logger *zap.Logger) *CookieSlots {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CookieSlots{cfg: cfg, store: store, logger: logger}
}

func (s *CookieSlots) Open(w http.ResponseWriter, r *http.Request) (SessionStore, error) {
	return &CookieSessionStore{
		cfg:    s.cfg,
		store:  s.store,
		w:      w,
		r:      r,
		logger: s.logger,
	}, nil
}

// CookieSessionStore is the slot of the browser that sent r.
type CookieSessionStore struct {
	cfg    Config
	store  sessions.Store
	w      http.ResponseWriter
	r      *http.Request
	logger *zap.Logger
}

func (s *CookieSessionStore) Write(record SessionRecord) error {
	data, err := encodeSessionRecord(record)
	if err != nil {
		return err
	}
	sess := loadBrowserSession(s.cfg, s.store, s.r, s.logger)
	sess.Values[SessionSlotKey] = string(data)
	if err := sess.Save(s.r, s.w); err != nil {
		return fmt.Errorf("save session cookie: %w", err)
	}
	return nil
}

func (s *CookieSessionStore) Read() (SessionRecord, bool) {
	sess := loadBrowserSession(s.cfg, s.store, s.r, s.logger)
	raw, ok := sess.Values[SessionSlotKey].(string)
	if !ok {
		return SessionRecord{}, false
	}
	rec, err := decodeSessionRecord([]byte(raw))
	if err != nil {
		s.logger.Debug("ignoring undecodable session slot", zap.Error(err))
		return SessionRecord{}, false
	}
	return rec, true
}

func (s *CookieSessionStore) Clear() error {
	sess := loadBrowserSession(s.cfg, s.store, s.r, s.logger)
	if _, ok := sess.Values[SessionSlotKey]; !ok {
		return nil
	}
	delete(sess.Values, SessionSlotKey)
	if err := sess.Save(s.r, s.w); err != nil {
		return fmt.Errorf("save session cookie: %w", err)
	}
	return nil
}

// loadBrowserSession returns the request's browser session. A cookie that fails signature or
// decoding checks yields a fresh empty session.
func loadBrowserSession(cfg Config, store sessions.Store, r *http.Request, logger *zap.Logger) *sessions.Session {
	sess, err := store.Get(r, cfg.SessionCookieName)
	if err != nil {
		logger.Debug("discarding unreadable session cookie", zap.Error(err))
	}
	if sess == nil {
		sess = sessions.NewSession(store, cfg.SessionCookieName)
	}
	if sess.Values == nil {
		sess.Values = map[interface{}]interface{}{}
	}
	applySessionOptions(cfg, sess)
	return sess
}

// applySessionOptions leaves MaxAge at 0 so the cookie ends with the browser session.
func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = 0
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
