package resource_test

import (
	"errors"
	"testing"

	"github.com/agentruntime/coordinator/resource"
	"github.com/rs/zerolog"
)

type fakeSampler struct {
	cpu, mem float64
	err      error
}

func (f fakeSampler) Sample() (float64, float64, error) {
	return f.cpu, f.mem, f.err
}

func TestOptimalWorkersScalesWithLoad(t *testing.T) {
	m := resource.New(zerolog.Nop(), fakeSampler{cpu: 10, mem: 10}) // load=0.1
	m.Sample()
	if got := m.OptimalWorkers(4); got != 8 {
		t.Fatalf("expected 2x base at low load, got %d", got)
	}

	m2 := resource.New(zerolog.Nop(), fakeSampler{cpu: 50, mem: 50}) // load=0.5
	m2.Sample()
	if got := m2.OptimalWorkers(4); got != 4 {
		t.Fatalf("expected base at medium load, got %d", got)
	}

	m3 := resource.New(zerolog.Nop(), fakeSampler{cpu: 90, mem: 90}) // load=0.9
	m3.Sample()
	if got := m3.OptimalWorkers(4); got != 2 {
		t.Fatalf("expected base/2 at high load, got %d", got)
	}

	m4 := resource.New(zerolog.Nop(), fakeSampler{cpu: 90, mem: 90})
	m4.Sample()
	if got := m4.OptimalWorkers(1); got != 1 {
		t.Fatalf("expected floor of 1 worker, got %d", got)
	}
}

func TestShouldThrottle(t *testing.T) {
	m := resource.New(zerolog.Nop(), fakeSampler{cpu: 95, mem: 80}) // load=0.875
	m.Sample()
	if !m.ShouldThrottle() {
		t.Fatalf("expected throttle at load > 0.85")
	}

	m2 := resource.New(zerolog.Nop(), fakeSampler{cpu: 50, mem: 50})
	m2.Sample()
	if m2.ShouldThrottle() {
		t.Fatalf("did not expect throttle at load 0.5")
	}
}

func TestSampleFailureKeepsPreviousValue(t *testing.T) {
	m := resource.New(zerolog.Nop(), fakeSampler{cpu: 95, mem: 95})
	m.Sample()
	if !m.ShouldThrottle() {
		t.Fatalf("expected initial throttle state")
	}

	failing := resource.New(zerolog.Nop(), fakeSampler{err: errors.New("boom")})
	failing.Sample()
	snap := failing.Snapshot()
	if snap.SampleCount != 0 || snap.CurrentLoad != 0 {
		t.Fatalf("expected failed sample to leave state untouched, got %+v", snap)
	}
}
