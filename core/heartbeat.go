package core

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	WorkerHeartbeatPrefix = "gp:worker:heartbeat:"
	WorkerHeartbeatTTL    = 45 * time.Second
)

// WorkerHeartbeatKey returns the Redis key for a worker id.
func WorkerHeartbeatKey(id string) string {
	return WorkerHeartbeatPrefix + id
}

// WorkerHeartbeat is what a logout worker periodically publishes.
type WorkerHeartbeat struct {
	WorkerID       string    `json:"worker_id"`
	Hostname       string    `json:"hostname"`
	PID            int       `json:"pid"`
	Concurrency    int       `json:"concurrency"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	Status         string    `json:"status"` // starting|idle|busy
	RunningCount   int       `json:"running_count"`
	ProcessedTotal int64     `json:"processed_total"`
	FailedTotal    int64     `json:"failed_total"`
	LastError      string    `json:"last_error,omitempty"`
	NumGoroutine   int       `json:"num_goroutine"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SaveHeartbeat stores hb as JSON with WorkerHeartbeatTTL.
func SaveHeartbeat(ctx context.Context, client RedisClientRaw, hb WorkerHeartbeat) error {
	hb.UpdatedAt = time.Now()
	data, err := json.Marshal(hb)
	if err != nil {
		return err
	}
	return client.Set(ctx, WorkerHeartbeatKey(hb.WorkerID), data, WorkerHeartbeatTTL).Err()
}

// ListHeartbeats returns every live heartbeat, ordered by worker id.
func ListHeartbeats(ctx context.Context, client RedisClientRaw) ([]WorkerHeartbeat, error) {
	var out []WorkerHeartbeat
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, WorkerHeartbeatPrefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			data, err := client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return nil, err
			}
			var hb WorkerHeartbeat
			if json.Unmarshal(data, &hb) == nil {
				out = append(out, hb)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out, nil
}

// HeartbeatState aggregates one worker process's counters.
type HeartbeatState struct {
	mu       sync.Mutex
	hb       WorkerHeartbeat
	interval time.Duration
}

func NewHeartbeatState(workerID string, concurrency int) *HeartbeatState {
	hostname, _ := os.Hostname()
	now := time.Now()
	return &HeartbeatState{
		hb: WorkerHeartbeat{
			WorkerID:    workerID,
			Hostname:    hostname,
			PID:         os.Getpid(),
			Concurrency: concurrency,
			Status:      "starting",
			StartedAt:   now,
			UpdatedAt:   now,
		},
		interval: 5 * time.Second,
	}
}

// Start publishes immediately and then every interval until ctx ends.
func (s *HeartbeatState) Start(ctx context.Context, client RedisClientRaw, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s.flush(ctx, client, logger)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx, client, logger)
		}
	}
}

func (s *HeartbeatState) JobStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hb.RunningCount++
	s.hb.Status = "busy"
}

func (s *HeartbeatState) JobFinished(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hb.RunningCount > 0 {
		s.hb.RunningCount--
	}
	s.hb.ProcessedTotal++
	if err != nil {
		s.hb.FailedTotal++
		s.hb.LastError = err.Error()
	}
	if s.hb.RunningCount == 0 {
		s.hb.Status = "idle"
	}
}

// Snapshot returns a copy of the current counters.
func (s *HeartbeatState) Snapshot() WorkerHeartbeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	hb := s.hb
	hb.UptimeSeconds = int64(time.Since(hb.StartedAt).Seconds())
	hb.NumGoroutine = runtime.NumGoroutine()
	return hb
}

func (s *HeartbeatState) flush(ctx context.Context, client RedisClientRaw, logger *zap.Logger) {
	hb := s.Snapshot()
	if err := SaveHeartbeat(ctx, client, hb); err != nil && ctx.Err() == nil {
		logger.Debug("heartbeat save failed", zap.String("worker_id", hb.WorkerID), zap.Error(err))
	}
}
