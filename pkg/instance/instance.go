package instance

import (
	"os"
	"strings"
)

// GetID returns the worker instance identifier. YIELDVAULT_WORKER_ID wins,
// then the hostname, then a fixed default.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("YIELDVAULT_WORKER_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
