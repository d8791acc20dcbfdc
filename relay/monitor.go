package relay

import "time"

type HealthState int

const (
	Healthy HealthState = iota
	Suspect
	Failing
)

func (h HealthState) String() string {
	return [...]string{"healthy", "suspect", "failing"}[h]
}

type destinationHealth struct {
	state       HealthState
	failures    int
	nextAttempt time.Time
}

// Monitor classifies per-destination failures and tracks source liveness.
// It only decides when a restart is warranted; the supervisor performs it.
// Destinations are fully independent: one destination's schedule never
// blocks or delays another's.
//
// A Monitor is owned by a single Supervisor and accessed under its lock.
type Monitor struct {
	cfg    Config
	health map[string]*destinationHealth

	sourceOnline  bool
	sourceChecked bool
	lastCheck     time.Time
}

func NewMonitor(cfg Config) *Monitor {
	return &Monitor{
		cfg:    cfg,
		health: make(map[string]*destinationHealth),
	}
}

func (m *Monitor) stateOf(name string) *destinationHealth {
	h, ok := m.health[name]
	if !ok {
		h = &destinationHealth{}
		m.health[name] = h
	}
	return h
}

// ObserveExit records a process exit and schedules the next attempt: Suspect
// destinations follow the exponential backoff, Failing ones move to the long
// fixed cooldown so they cannot starve healthy destinations of attempts.
func (m *Monitor) ObserveExit(name string, now time.Time) {
	h := m.stateOf(name)
	h.failures++
	if h.failures >= m.cfg.MaxConsecutiveFailures {
		h.state = Failing
		h.nextAttempt = now.Add(m.cfg.FailingCooldown)
		return
	}
	h.state = Suspect
	h.nextAttempt = now.Add(m.cfg.Backoff.NextDelay(h.failures - 1))
}

// ObserveAlive resets a destination to Healthy once its process has survived
// longer than one monitor interval.
func (m *Monitor) ObserveAlive(name string, startedAt, now time.Time) {
	h := m.stateOf(name)
	if now.Sub(startedAt) > m.cfg.MonitorInterval {
		h.state = Healthy
		h.failures = 0
		h.nextAttempt = time.Time{}
	}
}

// Eligible reports whether a restart attempt for name is due.
func (m *Monitor) Eligible(name string, now time.Time) bool {
	h := m.stateOf(name)
	return h.nextAttempt.IsZero() || !now.Before(h.nextAttempt)
}

func (m *Monitor) HealthOf(name string) (HealthState, int) {
	h, ok := m.health[name]
	if !ok {
		return Healthy, 0
	}
	return h.state, h.failures
}

func (m *Monitor) Forget(name string) {
	delete(m.health, name)
}

// RecordSourceCheck stores a source probe verdict and reports whether the
// online/offline status flipped. The first probe establishes the baseline
// and is never a flip.
func (m *Monitor) RecordSourceCheck(online bool, now time.Time) (flipped bool) {
	flipped = m.sourceChecked && online != m.sourceOnline
	m.sourceOnline = online
	m.sourceChecked = true
	m.lastCheck = now
	return flipped
}

func (m *Monitor) SourceOnline() bool {
	return m.sourceOnline
}

func (m *Monitor) LastSourceCheck() time.Time {
	return m.lastCheck
}
