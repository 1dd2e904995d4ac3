package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/sessions"
)

func sampleRecord() SessionRecord {
	return SessionRecord{Token: "tok-1", Username: "alice", ExpiresAt: time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)}
}

func TestMemorySessionStoreLifecycle(t *testing.T) {
	s := NewMemorySessionStore()
	if _, ok := s.Read(); ok {
		t.Fatalf("empty store reported a session")
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear on empty store: %v", err)
	}

	rec := sampleRecord()
	if err := s.Write(rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, ok := s.Read()
	if !ok || got.Token != rec.Token || got.Username != rec.Username || !got.ExpiresAt.Equal(rec.ExpiresAt) {
		t.Fatalf("read mismatch: %+v ok=%v", got, ok)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := s.Raw(); ok {
		t.Fatalf("slot still occupied after clear")
	}
}

func TestMemorySessionStoreCorruptSlotReadsAsAbsent(t *testing.T) {
	s := NewMemorySessionStore()
	s.SetRaw("not-json")
	if _, ok := s.Read(); ok {
		t.Fatalf("corrupt slot reported a session")
	}
	if raw, ok := s.Raw(); !ok || raw != "not-json" {
		t.Fatalf("read must not modify slot, got %q ok=%v", raw, ok)
	}
}

func openCookieSlot(t *testing.T, slots SlotOpener, cookies []*http.Cookie) (SessionStore, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	store, err := slots.Open(rec, req)
	if err != nil {
		t.Fatalf("open slot: %v", err)
	}
	return store, rec
}

func TestCookieSessionStoreRoundTrip(t *testing.T) {
	cfg := testConfig()
	slots := NewCookieSlots(cfg, sessions.NewCookieStore([]byte(cfg.SessionKey)), nil)

	store, rec := openCookieSlot(t, slots, nil)
	want := sampleRecord()
	if err := store.Write(want); err != nil {
		t.Fatalf("write: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookie set")
	}
	c := cookies[len(cookies)-1]
	if c.Name != cfg.SessionCookieName || !c.HttpOnly || c.MaxAge != 0 || !c.Expires.IsZero() {
		t.Fatalf("unexpected cookie attributes: %+v", c)
	}

	next, _ := openCookieSlot(t, slots, cookies)
	got, ok := next.Read()
	if !ok || got.Token != want.Token || got.Username != want.Username || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("read mismatch: %+v ok=%v", got, ok)
	}

	clearing, rec2 := openCookieSlot(t, slots, cookies)
	if err := clearing.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	after, _ := openCookieSlot(t, slots, rec2.Result().Cookies())
	if _, ok := after.Read(); ok {
		t.Fatalf("session survived clear")
	}
}

func TestCookieSessionStoreTamperedCookie(t *testing.T) {
	cfg := testConfig()
	slots := NewCookieSlots(cfg, sessions.NewCookieStore([]byte(cfg.SessionKey)), nil)

	store, _ := openCookieSlot(t, slots, []*http.Cookie{{Name: cfg.SessionCookieName, Value: "garbage"}})
	if _, ok := store.Read(); ok {
		t.Fatalf("tampered cookie reported a session")
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear on tampered cookie: %v", err)
	}

	other := NewCookieSlots(cfg, sessions.NewCookieStore([]byte("a-different-signing-key-entirely")), nil)
	s1, rec := openCookieSlot(t, other, nil)
	if err := s1.Write(sampleRecord()); err != nil {
		t.Fatalf("write: %v", err)
	}
	s2, _ := openCookieSlot(t, slots, rec.Result().Cookies())
	if _, ok := s2.Read(); ok {
		t.Fatalf("cookie signed with another key was accepted")
	}
}

func TestRedisSessionStore(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewRedisSessionStore(ctx, rdb, "gp:session:test", nil)

	if _, ok := store.Read(); ok {
		t.Fatalf("empty key reported a session")
	}

	want := sampleRecord()
	if err := store.Write(want); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ttl := mr.TTL("gp:session:test"); ttl <= 2*time.Hour || ttl > 2*time.Hour+minSlotTTL {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	got, ok := store.Read()
	if !ok || got.Token != want.Token || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("read mismatch: %+v ok=%v", got, ok)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists("gp:session:test") {
		t.Fatalf("key survived clear")
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestRedisSessionStoreKeepsExpiredRecordBriefly(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisSessionStore(context.Background(), rdb, "gp:session:old", nil)

	rec := sampleRecord()
	rec.ExpiresAt = time.Now().Add(-time.Hour)
	if err := store.Write(rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ttl := mr.TTL("gp:session:old"); ttl != minSlotTTL {
		t.Fatalf("expected ttl %v, got %v", minSlotTTL, ttl)
	}
	if _, ok := store.Read(); !ok {
		t.Fatalf("expired record should still be readable for lazy logout")
	}
}

func TestRedisSessionStoreCorruptValue(t *testing.T) {
	mr, rdb := newTestRedis(t)
	if err := mr.Set("gp:session:bad", "{oops"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := NewRedisSessionStore(context.Background(), rdb, "gp:session:bad", nil)
	if _, ok := store.Read(); ok {
		t.Fatalf("corrupt value reported a session")
	}
}

func TestRedisSlotsBindBrowsingContext(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	slots := NewRedisSlots(cfg, sessions.NewCookieStore([]byte(cfg.SessionKey)), rdb, nil)

	first, rec := openCookieSlot(t, slots, nil)
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("context id cookie not issued")
	}
	if err := first.Write(sampleRecord()); err != nil {
		t.Fatalf("write: %v", err)
	}

	same, _ := openCookieSlot(t, slots, cookies)
	if _, ok := same.Read(); !ok {
		t.Fatalf("same browsing context did not see its session")
	}

	stranger, _ := openCookieSlot(t, slots, nil)
	if _, ok := stranger.Read(); ok {
		t.Fatalf("a new browsing context saw another context's session")
	}
}
