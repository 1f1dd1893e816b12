//go:build linux

package resource

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// defaultSampler reads /proc/stat for CPU utilization (as a delta between
// successive samples) and golang.org/x/sys/unix.Sysinfo for memory
// utilization.
type defaultSampler struct {
	mu       sync.Mutex
	lastIdle uint64
	lastTotal uint64
	haveLast bool
}

// NewDefaultSampler returns the Linux /proc-backed Sampler.
func NewDefaultSampler() Sampler {
	return &defaultSampler{}
}

func (s *defaultSampler) Sample() (float64, float64, error) {
	cpu, err := s.sampleCPU()
	if err != nil {
		return 0, 0, err
	}
	mem, err := sampleMemory()
	if err != nil {
		return 0, 0, err
	}
	return cpu, mem, nil
}

func (s *defaultSampler) sampleCPU() (float64, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, fmt.Errorf("resource: empty /proc/stat")
	}
	var label string
	var user, nice, system, idle, iowait, irq, softirq, steal uint64
	_, err = fmt.Sscanf(sc.Text(), "%s %d %d %d %d %d %d %d %d",
		&label, &user, &nice, &system, &idle, &iowait, &irq, &softirq, &steal)
	if err != nil {
		return 0, err
	}

	total := user + nice + system + idle + iowait + irq + softirq + steal
	idleAll := idle + iowait

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveLast {
		s.lastTotal, s.lastIdle = total, idleAll
		s.haveLast = true
		return 0, nil
	}

	deltaTotal := total - s.lastTotal
	deltaIdle := idleAll - s.lastIdle
	s.lastTotal, s.lastIdle = total, idleAll

	if deltaTotal == 0 {
		return 0, nil
	}
	busy := float64(deltaTotal-deltaIdle) / float64(deltaTotal)
	return busy * 100, nil
}

func sampleMemory() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	total := uint64(info.Totalram) * uint64(info.Unit)
	free := uint64(info.Freeram) * uint64(info.Unit)
	if total == 0 {
		return 0, fmt.Errorf("resource: zero total memory reported")
	}
	used := float64(total-free) / float64(total)
	return used * 100, nil
}
