package instance

import (
	"os"

	"github.com/GregHandsley/pokeflip-sub002/pkg/env"
)

// GetID identifies this worker process in logs and lock owners. It prefers
// POKEFLIP_WORKER_ID, then the hostname.
func GetID() string {
	if id := env.Get("POKEFLIP_WORKER_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
