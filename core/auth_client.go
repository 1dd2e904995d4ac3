package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// RemoteAuth is the remote authentication endpoint.
type RemoteAuth interface {
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context, token string) error
	Validate(ctx context.Context, token string) (bool, error)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

// HTTPAuthClient talks JSON to the remote /auth endpoints.
type HTTPAuthClient struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewHTTPAuthClient(baseURL string, timeout time.Duration) *HTTPAuthClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAuthClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &fasthttp.Client{
			Name:                "gestao-admin",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// Login exchanges credentials for an opaque token.
// 4xx answers are ErrInvalidCredentials; everything else that is not a token is ErrAuthUnavailable.
func (c *HTTPAuthClient) Login(ctx context.Context, username, password string) (string, error) {
	var out loginResponse
	status, err := c.postJSON(ctx, "/auth/login", "", loginRequest{Username: username, Password: password}, &out)
	if err != nil {
		return "", err
	}
	switch {
	case status >= 200 && status < 300:
		if strings.TrimSpace(out.Token) == "" {
			return "", fmt.Errorf("%w: login response without token", ErrAuthUnavailable)
		}
		return out.Token, nil
	case status >= 400 && status < 500:
		return "", ErrInvalidCredentials
	default:
		return "", fmt.Errorf("%w: login returned status %d", ErrAuthUnavailable, status)
	}
}

// Logout asks the backend to invalidate token. The response body is ignored.
func (c *HTTPAuthClient) Logout(ctx context.Context, token string) error {
	status, err := c.postJSON(ctx, "/auth/logout", token, struct{}{}, nil)
	if err != nil {
		return err
	}
	if status >= 500 {
		return fmt.Errorf("%w: logout returned status %d", ErrAuthUnavailable, status)
	}
	return nil
}

// Validate asks the backend whether token is still accepted.
func (c *HTTPAuthClient) Validate(ctx context.Context, token string) (bool, error) {
	var out validateResponse
	status, err := c.postJSON(ctx, "/auth/validate", token, validateRequest{Token: token}, &out)
	if err != nil {
		return false, err
	}
	switch {
	case status >= 200 && status < 300:
		return out.Valid, nil
	case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("%w: validate returned status %d", ErrAuthUnavailable, status)
	}
}

// postJSON sends payload and decodes a 2xx body into out. Transport failures, timeouts and
// undecodable bodies are wrapped in ErrAuthUnavailable.
func (c *HTTPAuthClient) postJSON(ctx context.Context, path, token string, payload, out interface{}) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.SetBody(body)

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, fmt.Errorf("%w: %s %s: %v", ErrAuthUnavailable, fasthttp.MethodPost, path, err)
	}

	status := resp.StatusCode()
	if out != nil && status >= 200 && status < 300 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return status, fmt.Errorf("%w: decode %s response: %v", ErrAuthUnavailable, path, err)
		}
	}
	return status, nil
}
