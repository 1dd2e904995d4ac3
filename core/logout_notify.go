package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogoutNotifier tells the backend a session ended. Implementations must return immediately
// and swallow their own failures.
type LogoutNotifier interface {
	NotifyLogout(record SessionRecord)
}

// NopLogoutNotifier drops notifications.
type NopLogoutNotifier struct{}

func (NopLogoutNotifier) NotifyLogout(SessionRecord) {}

// AsyncLogoutNotifier calls the backend from a detached goroutine.
type AsyncLogoutNotifier struct {
	remote  RemoteAuth
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewAsyncLogoutNotifier(remote RemoteAuth, timeout time.Duration, logger *zap.Logger) *AsyncLogoutNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncLogoutNotifier{remote: remote, timeout: timeout, logger: logger}
}

func (n *AsyncLogoutNotifier) NotifyLogout(record SessionRecord) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.remote.Logout(ctx, record.Token); err != nil {
			n.logger.Warn("remote logout failed", zap.String("username", record.Username), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (n *AsyncLogoutNotifier) Wait() {
	n.wg.Wait()
}

// LogoutJob is the queue payload consumed by LogoutWorker.
type LogoutJob struct {
	ID         string    `json:"id"`
	Token      string    `json:"token"`
	Username   string    `json:"username"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueLogoutNotifier pushes notifications onto the Redis logout queue.
type QueueLogoutNotifier struct {
	queue   Queue
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewQueueLogoutNotifier(queue Queue, logger *zap.Logger) *QueueLogoutNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueLogoutNotifier{queue: queue, timeout: 2 * time.Second, logger: logger}
}

func (n *QueueLogoutNotifier) NotifyLogout(record SessionRecord) {
	job := LogoutJob{
		ID:         uuid.NewString(),
		Token:      record.Token,
		Username:   record.Username,
		EnqueuedAt: time.Now(),
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		data, err := json.Marshal(job)
		if err != nil {
			n.logger.Error("encode logout job failed", zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.queue.Enqueue(ctx, PendingLogoutKey, string(data)); err != nil {
			n.logger.Warn("enqueue logout job failed", zap.String("username", record.Username), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight enqueues finish.
func (n *QueueLogoutNotifier) Wait() {
	n.wg.Wait()
}
