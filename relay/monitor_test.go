package relay

import (
	"testing"
	"time"
)

func monitorTestConfig() Config {
	cfg := DefaultConfig()
	cfg.MonitorInterval = 5 * time.Second
	cfg.MaxConsecutiveFailures = 3
	cfg.FailingCooldown = 60 * time.Second
	return cfg
}

func TestMonitorSuspectThenFailing(t *testing.T) {
	m := NewMonitor(monitorTestConfig())
	now := time.Now()

	m.ObserveExit("a", now)
	if state, failures := m.HealthOf("a"); state != Suspect || failures != 1 {
		t.Fatalf("after one exit: %v/%d, want suspect/1", state, failures)
	}
	// first retry waits the base delay, not zero
	if m.Eligible("a", now) {
		t.Fatal("eligible immediately after exit")
	}
	if !m.Eligible("a", now.Add(2*time.Second)) {
		t.Fatal("not eligible after base backoff elapsed")
	}

	m.ObserveExit("a", now)
	m.ObserveExit("a", now)
	state, failures := m.HealthOf("a")
	if state != Failing || failures != 3 {
		t.Fatalf("after three exits: %v/%d, want failing/3", state, failures)
	}
	// failing destinations run on the fixed cooldown, not exponential backoff
	if m.Eligible("a", now.Add(30*time.Second)) {
		t.Fatal("failing destination eligible before cooldown")
	}
	if !m.Eligible("a", now.Add(61*time.Second)) {
		t.Fatal("failing destination not eligible after cooldown")
	}
}

func TestMonitorAliveResetsFailures(t *testing.T) {
	m := NewMonitor(monitorTestConfig())
	now := time.Now()

	m.ObserveExit("a", now)
	m.ObserveExit("a", now)

	// surviving less than one interval changes nothing
	m.ObserveAlive("a", now.Add(-time.Second), now)
	if state, failures := m.HealthOf("a"); state != Suspect || failures != 2 {
		t.Fatalf("short-lived process reset health: %v/%d", state, failures)
	}

	m.ObserveAlive("a", now.Add(-6*time.Second), now)
	if state, failures := m.HealthOf("a"); state != Healthy || failures != 0 {
		t.Fatalf("after surviving an interval: %v/%d, want healthy/0", state, failures)
	}
	if !m.Eligible("a", now) {
		t.Fatal("healthy destination not eligible")
	}
}

func TestMonitorDestinationsIndependent(t *testing.T) {
	m := NewMonitor(monitorTestConfig())
	now := time.Now()

	for i := 0; i < 5; i++ {
		m.ObserveExit("a", now)
	}
	if state, _ := m.HealthOf("b"); state != Healthy {
		t.Fatalf("b affected by a's failures: %v", state)
	}
	if !m.Eligible("b", now) {
		t.Fatal("b not eligible while a is failing")
	}
}

func TestMonitorSourceFlip(t *testing.T) {
	m := NewMonitor(monitorTestConfig())
	now := time.Now()

	if m.RecordSourceCheck(true, now) {
		t.Fatal("first probe reported as a flip")
	}
	if m.RecordSourceCheck(true, now.Add(20*time.Second)) {
		t.Fatal("unchanged status reported as a flip")
	}
	if !m.RecordSourceCheck(false, now.Add(40*time.Second)) {
		t.Fatal("online->offline not reported as a flip")
	}
	if !m.RecordSourceCheck(true, now.Add(60*time.Second)) {
		t.Fatal("offline->online not reported as a flip")
	}
	if !m.SourceOnline() {
		t.Fatal("SourceOnline = false after coming back")
	}
}
