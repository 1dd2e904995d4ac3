package core

import (
	"context"
	"fmt"
	"time"
)

// LogoutQueueMetrics are the current logout queue lengths.
type LogoutQueueMetrics struct {
	Pending          int64 `json:"pending"`
	Processing       int64 `json:"processing"`
	ExpiredCandidate int64 `json:"expired_candidate"`
}

// ShellStatus is the /healthz payload.
type ShellStatus struct {
	Status        string              `json:"status"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Queue         *LogoutQueueMetrics `json:"queue,omitempty"`
	Workers       []WorkerHeartbeat   `json:"workers,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// QueueMetrics reads pending/processing counts and how many reservations are past their deadline.
func QueueMetrics(ctx context.Context, client RedisClientRaw, now time.Time) (LogoutQueueMetrics, error) {
	pending, err := client.LLen(ctx, PendingLogoutKey).Result()
	if err != nil {
		return LogoutQueueMetrics{}, err
	}
	processing, err := client.ZCard(ctx, ProcessingLogoutKey).Result()
	if err != nil {
		return LogoutQueueMetrics{}, err
	}
	expired, err := client.ZCount(ctx, ProcessingLogoutKey, "-inf", fmt.Sprintf("%d", now.UnixMilli())).Result()
	if err != nil {
		return LogoutQueueMetrics{}, err
	}
	return LogoutQueueMetrics{Pending: pending, Processing: processing, ExpiredCandidate: expired}, nil
}

// CollectStatus aggregates uptime and, when client is set, queue metrics and worker heartbeats.
// Redis failures are reported in the payload rather than failing the probe.
func CollectStatus(ctx context.Context, client RedisClientRaw, startedAt time.Time) ShellStatus {
	st := ShellStatus{Status: "ok"}
	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	if client == nil {
		return st
	}

	qm, err := QueueMetrics(ctx, client, time.Now())
	if err != nil {
		st.Status = "degraded"
		st.Error = err.Error()
		return st
	}
	st.Queue = &qm

	workers, err := ListHeartbeats(ctx, client)
	if err != nil {
		st.Status = "degraded"
		st.Error = err.Error()
		return st
	}
	st.Workers = workers
	return st
}
