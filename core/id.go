package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// NewWorkerID builds a logout worker identifier from hostname, pid and a random suffix.
func NewWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "logout-worker"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), suffix)
}

// requestID keeps a caller-supplied id when it is sane, otherwise mints one.
func requestID(header string) string {
	header = strings.TrimSpace(header)
	if header != "" && len(header) <= 128 {
		return header
	}
	return uuid.NewString()
}
