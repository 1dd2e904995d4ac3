package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeRemote accepts alice/secret (or any non-empty pair with acceptAny) unless loginErr is set.
type fakeRemote struct {
	mu          sync.Mutex
	acceptAny   bool
	lastUser    string
	loginErr    error
	logoutErr   error
	validateErr error
	valid       bool
	loginCalls  int
	logouts     []string
	token       string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{valid: true, token: "tok-1"}
}

func (f *fakeRemote) Login(_ context.Context, username, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	f.lastUser = username
	if f.loginErr != nil {
		return "", f.loginErr
	}
	if f.acceptAny {
		return f.token, nil
	}
	if username != "alice" || password != "secret" {
		return "", ErrInvalidCredentials
	}
	return f.token, nil
}

func (f *fakeRemote) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, token)
	return f.logoutErr
}

func (f *fakeRemote) Validate(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid, f.validateErr
}

func (f *fakeRemote) LoginCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls
}

func (f *fakeRemote) Logouts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logouts...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	records []SessionRecord
}

func (n *recordingNotifier) NotifyLogout(record SessionRecord) {
	n.mu.Lock()
	n.records = append(n.records, record)
	n.mu.Unlock()
}

func (n *recordingNotifier) Records() []SessionRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SessionRecord(nil), n.records...)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.SessionKey = "test-session-key-0123456789abcdef"
	return cfg
}
