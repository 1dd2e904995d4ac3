package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const stubIssuer = "gestao-authstub"

// StubAuthServer is a development backend for the /auth endpoints: bcrypt users held in memory,
// HS256 tokens, and a revocation list keyed by jti.
type StubAuthServer struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
	logger *zap.Logger

	mu      sync.RWMutex
	users   map[string][]byte
	revoked map[string]time.Time
}

func NewStubAuthServer(secret string, ttl time.Duration, logger *zap.Logger) (*StubAuthServer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("stub secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultSessionLifetime
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubAuthServer{
		secret:  []byte(secret),
		ttl:     ttl,
		clock:   SystemClock(),
		logger:  logger,
		users:   map[string][]byte{},
		revoked: map[string]time.Time{},
	}, nil
}

// AddUser stores a bcrypt hash of password under username, replacing any previous entry.
func (s *StubAuthServer) AddUser(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.users[username] = hash
	s.mu.Unlock()
	return nil
}

// HasUser reports whether username is registered.
func (s *StubAuthServer) HasUser(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[username]
	return ok
}

// Authenticate checks credentials and issues a signed token.
func (s *StubAuthServer) Authenticate(username, password string) (string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	s.mu.RLock()
	hash, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	now := s.clock.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   username,
		Issuer:    stubIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies signature, issuer, expiry and revocation.
func (s *StubAuthServer) Parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stubIssuer),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	_, revoked := s.revoked[claims.ID]
	s.mu.RUnlock()
	if revoked {
		return nil, errors.New("token revoked")
	}
	return claims, nil
}

// Revoke invalidates token until it would have expired anyway. Unparseable tokens are ignored.
func (s *StubAuthServer) Revoke(token string) {
	claims, err := s.Parse(token)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for jti, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, jti)
		}
	}
	if claims.ExpiresAt != nil {
		s.revoked[claims.ID] = claims.ExpiresAt.Time
	}
}

// Handler serves POST /auth/login, /auth/logout and /auth/validate.
func (s *StubAuthServer) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/auth")
	auth.POST("/login", func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
			return
		}
		token, err := s.Authenticate(req.Username, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
				return
			}
			loggerFromContext(c, s.logger).Error("issue token failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue token")
			return
		}
		c.JSON(http.StatusOK, loginResponse{Token: token})
	})

	auth.POST("/logout", func(c *gin.Context) {
		if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			s.Revoke(token)
		}
		c.Status(http.StatusNoContent)
	})

	auth.POST("/validate", func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			var req validateRequest
			_ = c.ShouldBindJSON(&req)
			token = req.Token
		}
		if token == "" {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "token required")
			return
		}
		_, err := s.Parse(token)
		c.JSON(http.StatusOK, validateResponse{Valid: err == nil})
	})

	return r
}

func bearerToken(header string) string {
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// BootstrapStubUser registers cfg.StubUsername with a generated password when absent.
// The password goes to cfg.StubPasswordPath when set, otherwise to the log.
func BootstrapStubUser(ctx context.Context, s *StubAuthServer, cfg Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	username := firstNonEmpty(cfg.StubUsername, "admin")
	if s.HasUser(username) {
		return nil
	}

	password, err := generatePassword(24)
	if err != nil {
		return err
	}
	if err := s.AddUser(username, password); err != nil {
		return err
	}

	if cfg.StubPasswordPath != "" {
		if err := os.WriteFile(cfg.StubPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		s.logger.Info("stub user created", zap.String("username", username), zap.String("password_path", cfg.StubPasswordPath))
	} else {
		s.logger.Info("stub user created", zap.String("username", username), zap.String("password", password))
	}
	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
