package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func reserveOne(t *testing.T, q *RedisQueue) string {
	t.Helper()
	raw, err := q.Reserve(context.Background(), PendingLogoutKey, ProcessingLogoutKey, time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return raw
}

func enqueueJob(t *testing.T, q *RedisQueue, job LogoutJob) {
	t.Helper()
	data, _ := json.Marshal(job)
	if err := q.Enqueue(context.Background(), PendingLogoutKey, string(data)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestLogoutWorkerDelivers(t *testing.T) {
	mr, rdb := newTestRedis(t)
	q := NewRedisQueue(rdb)
	remote := newFakeRemote()
	w := NewLogoutWorker(q, remote, nil, LogoutWorkerOptions{}, nil)

	enqueueJob(t, q, LogoutJob{ID: "j1", Token: "tok-9", Username: "alice"})
	if err := w.Handle(context.Background(), reserveOne(t, q)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := remote.Logouts(); len(got) != 1 || got[0] != "tok-9" {
		t.Fatalf("unexpected remote logouts %v", got)
	}
	if members, _ := mr.ZMembers(ProcessingLogoutKey); len(members) != 0 {
		t.Fatalf("job not acked: %v", members)
	}
}

func TestLogoutWorkerRetriesThenAbandons(t *testing.T) {
	mr, rdb := newTestRedis(t)
	q := NewRedisQueue(rdb)
	remote := newFakeRemote()
	remote.logoutErr = ErrAuthUnavailable
	w := NewLogoutWorker(q, remote, nil, LogoutWorkerOptions{MaxAttempts: 2}, nil)

	enqueueJob(t, q, LogoutJob{ID: "j1", Token: "tok-9"})

	if err := w.Handle(context.Background(), reserveOne(t, q)); !errors.Is(err, ErrAuthUnavailable) {
		t.Fatalf("first attempt: %v", err)
	}
	retried := reserveOne(t, q)
	var job LogoutJob
	if err := json.Unmarshal([]byte(retried), &job); err != nil || job.Attempts != 1 {
		t.Fatalf("retried job %s: %v", retried, err)
	}

	if err := w.Handle(context.Background(), retried); !errors.Is(err, ErrAuthUnavailable) {
		t.Fatalf("second attempt: %v", err)
	}
	if l, _ := rdb.LLen(context.Background(), PendingLogoutKey).Result(); l != 0 {
		t.Fatalf("abandoned job re-enqueued, pending=%d", l)
	}
	if members, _ := mr.ZMembers(ProcessingLogoutKey); len(members) != 0 {
		t.Fatalf("job not acked: %v", members)
	}
	if n := len(remote.Logouts()); n != 2 {
		t.Fatalf("expected 2 remote calls, got %d", n)
	}
}

func TestLogoutWorkerDropsMalformedJobs(t *testing.T) {
	_, rdb := newTestRedis(t)
	q := NewRedisQueue(rdb)
	remote := newFakeRemote()
	w := NewLogoutWorker(q, remote, nil, LogoutWorkerOptions{}, nil)

	for _, raw := range []string{"garbage", `{"id":"no-token"}`} {
		_ = q.Enqueue(context.Background(), PendingLogoutKey, raw)
		if err := w.Handle(context.Background(), reserveOne(t, q)); err != nil {
			t.Fatalf("handle %q: %v", raw, err)
		}
	}
	if n := len(remote.Logouts()); n != 0 {
		t.Fatalf("malformed jobs reached backend %d times", n)
	}
}

func TestLogoutWorkerRunDrainsQueue(t *testing.T) {
	_, rdb := newTestRedis(t)
	q := NewRedisQueue(rdb)
	remote := newFakeRemote()
	state := NewHeartbeatState("w-test", 2)
	w := NewLogoutWorker(q, remote, state, LogoutWorkerOptions{Concurrency: 2, IdleWait: 10 * time.Millisecond}, nil)

	for i, tok := range []string{"t1", "t2", "t3"} {
		enqueueJob(t, q, LogoutJob{ID: string(rune('a' + i)), Token: tok})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(remote.Logouts()) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}

	if n := len(remote.Logouts()); n != 3 {
		t.Fatalf("expected 3 deliveries, got %d", n)
	}
	if snap := state.Snapshot(); snap.ProcessedTotal != 3 || snap.FailedTotal != 0 {
		t.Fatalf("unexpected heartbeat counters %+v", snap)
	}
}
