package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LogoutWorkerOptions tune the logout worker loop.
type LogoutWorkerOptions struct {
	Concurrency     int
	MaxAttempts     int
	Visibility      time.Duration
	ReclaimInterval time.Duration
	IdleWait        time.Duration
	CallTimeout     time.Duration
}

func (o LogoutWorkerOptions) withDefaults() LogoutWorkerOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Visibility <= 0 {
		o.Visibility = DefaultVisibilityTimeout
	}
	if o.ReclaimInterval <= 0 {
		o.ReclaimInterval = 15 * time.Second
	}
	if o.IdleWait <= 0 {
		o.IdleWait = 100 * time.Millisecond
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 5 * time.Second
	}
	return o
}

// LogoutWorker drains the logout queue and forwards each job to the backend's /auth/logout.
type LogoutWorker struct {
	queue  Queue
	remote RemoteAuth
	state  *HeartbeatState
	opts   LogoutWorkerOptions
	logger *zap.Logger
}

func NewLogoutWorker(queue Queue, remote RemoteAuth, state *HeartbeatState, opts LogoutWorkerOptions, logger *zap.Logger) *LogoutWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogoutWorker{queue: queue, remote: remote, state: state, opts: opts.withDefaults(), logger: logger}
}

// Run blocks until ctx is cancelled.
func (w *LogoutWorker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reclaimLoop(ctx)
	}()

	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i + 1)
	}
	wg.Wait()
}

func (w *LogoutWorker) loop(ctx context.Context, slot int) {
	log := w.logger.With(zap.Int("slot", slot))
	for {
		raw, err := w.queue.Reserve(ctx, PendingLogoutKey, ProcessingLogoutKey, w.opts.Visibility)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.opts.IdleWait):
					continue
				}
			}
			if ctx.Err() != nil {
				return
			}
			log.Warn("reserve failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if w.state != nil {
			w.state.JobStarted()
		}
		procErr := w.Handle(ctx, raw)
		if w.state != nil {
			w.state.JobFinished(procErr)
		}
	}
}

// Handle processes one reserved payload and acks it. Failed calls are re-enqueued with an
// incremented attempt count until MaxAttempts; malformed payloads are dropped.
func (w *LogoutWorker) Handle(ctx context.Context, raw string) error {
	defer func() {
		if err := w.queue.Ack(ctx, ProcessingLogoutKey, raw); err != nil {
			w.logger.Warn("ack failed", zap.Error(err))
		}
	}()

	var job LogoutJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.Token == "" {
		w.logger.Warn("dropping malformed logout job", zap.String("payload", truncate(raw, 64)))
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, w.opts.CallTimeout)
	err := w.remote.Logout(callCtx, job.Token)
	cancel()
	if err == nil {
		w.logger.Info("remote logout delivered", zap.String("job_id", job.ID), zap.String("username", job.Username))
		return nil
	}

	job.Attempts++
	if job.Attempts >= w.opts.MaxAttempts {
		w.logger.Warn("remote logout abandoned", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempts), zap.Error(err))
		return err
	}
	data, encErr := json.Marshal(job)
	if encErr != nil {
		return encErr
	}
	if qErr := w.queue.Enqueue(ctx, PendingLogoutKey, string(data)); qErr != nil {
		w.logger.Warn("re-enqueue failed", zap.String("job_id", job.ID), zap.Error(qErr))
		return qErr
	}
	w.logger.Info("remote logout retried", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempts), zap.Error(err))
	return err
}

func (w *LogoutWorker) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.ReclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobs, err := w.queue.RequeueExpired(ctx, ProcessingLogoutKey, PendingLogoutKey, time.Now())
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn("requeue expired failed", zap.Error(err))
				}
				continue
			}
			if len(jobs) > 0 {
				w.logger.Info("requeued expired logout jobs", zap.Int("count", len(jobs)))
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
