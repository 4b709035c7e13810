// Package version exposes build metadata for the captcha service.
// The package-level variables are stamped with -ldflags at build time.
package version

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// Version is the release tag or short commit of the build.
	// Set via: -ldflags "-X captcha/internal/version.Version=..."
	Version = "dev"

	// BuildDate is the UTC build timestamp.
	// Set via: -ldflags "-X captcha/internal/version.BuildDate=..."
	BuildDate = "unknown"

	// GitCommit is the full commit SHA.
	// Set via: -ldflags "-X captcha/internal/version.GitCommit=..."
	GitCommit = "unknown"
)

// Info describes the running binary and the process instance.
type Info struct {
	Version    string    `json:"version"`
	GitCommit  string    `json:"git_commit"`
	BuildDate  string    `json:"build_date"`
	InstanceID string    `json:"instance_id"`
	Hostname   string    `json:"hostname"`
	StartedAt  time.Time `json:"started_at"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns the build metadata. The instance ID, hostname and start time
// are captured on the first call and reused afterwards.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.NewString(),
			Hostname:   hostname(),
			StartedAt:  time.Now(),
		}
	})
	return info
}

// Uptime reports how long the process has been running, rounded to seconds.
func (i Info) Uptime() time.Duration {
	if i.StartedAt.IsZero() {
		return 0
	}
	return time.Since(i.StartedAt).Round(time.Second)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// String formats version info for CLI display.
func (i Info) String() string {
	return fmt.Sprintf("captcha version %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}
