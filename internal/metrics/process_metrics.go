package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// maxTreeSize bounds the process tree walk under the child.
const maxTreeSize = 256

// ErrNoChild is returned by Sample when no child is running.
var ErrNoChild = errors.New("no child process")

// Usage is a resource sample of the child and all of its descendants. The
// supervised command is usually a launcher (npx) whose real work happens in a
// grandchild, so the whole tree is summed.
type Usage struct {
	PID        int32     `json:"pid"`
	Processes  int       `json:"processes"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProcessSampler periodically samples the child's process tree with gopsutil
// and publishes the totals as gauges.
type ProcessSampler struct {
	interval time.Duration
	pid      func() int
	log      *slog.Logger

	mu   sync.RWMutex
	last Usage
}

// NewProcessSampler creates a sampler polling pid() every interval. pid returns
// 0 while no child is running.
func NewProcessSampler(interval time.Duration, pid func() int, log *slog.Logger) *ProcessSampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &ProcessSampler{interval: interval, pid: pid, log: log}
}

// Run samples until ctx is done. It always returns nil so it can run inside an
// errgroup without tearing the group down.
func (s *ProcessSampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			u, err := s.Sample()
			if err != nil {
				if !errors.Is(err, ErrNoChild) {
					s.log.Debug("process sample failed", "error", err)
				}
				continue
			}
			setUsage(u)
		}
	}
}

// Sample takes one reading of the current child tree.
func (s *ProcessSampler) Sample() (Usage, error) {
	pid := s.pid()
	if pid <= 0 {
		return Usage{}, ErrNoChild
	}
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, fmt.Errorf("failed to create process handle: %w", err)
	}
	u := Usage{PID: root.Pid, Timestamp: time.Now()}
	for _, p := range walkTree(root) {
		memInfo, err := p.MemoryInfo()
		if err != nil {
			// Descendants may exit between listing and sampling.
			if p == root {
				return Usage{}, fmt.Errorf("failed to get memory info: %w", err)
			}
			continue
		}
		u.Processes++
		u.MemoryRSS += memInfo.RSS
		if cpu, err := p.CPUPercent(); err == nil {
			u.CPUPercent += cpu
		}
		if n, err := p.NumThreads(); err == nil {
			u.NumThreads += n
		}
	}
	u.MemoryMB = float64(u.MemoryRSS) / 1024 / 1024

	s.mu.Lock()
	s.last = u
	s.mu.Unlock()
	return u, nil
}

// Last returns the most recent successful sample.
func (s *ProcessSampler) Last() Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func walkTree(root *process.Process) []*process.Process {
	out := []*process.Process{root}
	for i := 0; i < len(out) && len(out) < maxTreeSize; i++ {
		kids, err := out[i].Children()
		if err != nil {
			continue
		}
		out = append(out, kids...)
	}
	if len(out) > maxTreeSize {
		out = out[:maxTreeSize]
	}
	return out
}
