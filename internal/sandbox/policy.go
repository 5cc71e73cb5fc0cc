package sandbox

import (
	"fmt"
	"strings"
	"time"

	units "github.com/docker/go-units"
)

// Policy defines the resource limits applied to every sandbox.
type Policy struct {
	MaxMemory string // Docker memory limit (e.g. "512m")
	CPUPeriod int64  // CFS period in microseconds
	CPUQuota  int64  // CFS quota in microseconds per period
	StopGrace time.Duration
}

// DefaultPolicy returns the fixed per-sandbox limits: 512 MiB and half a core.
func DefaultPolicy() Policy {
	return Policy{
		MaxMemory: "512m",
		CPUPeriod: 100000,
		CPUQuota:  50000,
		StopGrace: 10 * time.Second,
	}
}

// MemoryBytes parses MaxMemory into bytes.
func (p Policy) MemoryBytes() (int64, error) {
	if strings.TrimSpace(p.MaxMemory) == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(p.MaxMemory)
	if err != nil {
		return 0, fmt.Errorf("parsing memory limit %q: %w", p.MaxMemory, err)
	}
	return n, nil
}

// CPUFraction returns the share of one core the policy allows.
func (p Policy) CPUFraction() float64 {
	if p.CPUPeriod <= 0 {
		return 0
	}
	return float64(p.CPUQuota) / float64(p.CPUPeriod)
}
