package relay

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePusher stands in for the ffmpeg Runner so supervision behavior can be
// exercised without spawning processes.
type fakePusher struct {
	fleet *fakeFleet
	dest  string

	mu        sync.Mutex
	startedAt time.Time
	exited    bool
	exitCode  int
}

func (f *fakePusher) Start() error {
	f.mu.Lock()
	f.startedAt = time.Now()
	f.mu.Unlock()
	return nil
}

func (f *fakePusher) Poll() RunnerStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exited {
		return RunnerRunning
	}
	if f.exitCode == 0 {
		return RunnerExitedNormally
	}
	return RunnerExitedWithError
}

func (f *fakePusher) ExitCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitCode
}

func (f *fakePusher) StartedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startedAt
}

func (f *fakePusher) Stop(grace time.Duration) {
	f.mu.Lock()
	f.exited = true
	f.mu.Unlock()
	f.fleet.record("stop:" + f.dest)
}

// fail simulates the process dying with the given exit code.
func (f *fakePusher) fail(code int) {
	f.mu.Lock()
	f.exited = true
	f.exitCode = code
	f.mu.Unlock()
}

type fakeFleet struct {
	mu      sync.Mutex
	events  []string
	pushers map[string][]*fakePusher
	offline bool
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{pushers: make(map[string][]*fakePusher)}
}

func (fl *fakeFleet) factory(jobID string, source Source, dest Destination, placeholder bool, cfg Config) pusher {
	p := &fakePusher{fleet: fl, dest: dest.Name}
	fl.mu.Lock()
	fl.pushers[dest.Name] = append(fl.pushers[dest.Name], p)
	fl.mu.Unlock()
	fl.record("start:" + dest.Name)
	return p
}

func (fl *fakeFleet) record(event string) {
	fl.mu.Lock()
	fl.events = append(fl.events, event)
	fl.mu.Unlock()
}

func (fl *fakeFleet) eventLog() []string {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	out := make([]string, len(fl.events))
	copy(out, fl.events)
	return out
}

func (fl *fakeFleet) generations(dest string) int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return len(fl.pushers[dest])
}

func (fl *fakeFleet) latest(dest string) *fakePusher {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	gens := fl.pushers[dest]
	if len(gens) == 0 {
		return nil
	}
	return gens[len(gens)-1]
}

func (fl *fakeFleet) setOffline(offline bool) {
	fl.mu.Lock()
	fl.offline = offline
	fl.mu.Unlock()
}

func (fl *fakeFleet) online() bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return !fl.offline
}

func newTestSupervisor(t *testing.T, destinations ...Destination) (*Supervisor, *fakeFleet) {
	t.Helper()
	set, err := NewDestinationSet(destinations...)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	// tests drive tick/checkSource directly; park the loop tickers
	cfg.MonitorInterval = time.Hour
	cfg.SourceCheckInterval = time.Hour
	cfg.RestartPause = 10 * time.Millisecond
	cfg.GracePeriod = 50 * time.Millisecond

	fl := newFakeFleet()
	s := NewSupervisor("job1", Source{URL: "rtmp://src.example.com/live/in"}, set, cfg)
	s.newPusher = fl.factory
	s.probeSource = fl.online
	return s, fl
}

func TestStartNoEnabledDestinations(t *testing.T) {
	s, fl := newTestSupervisor(t,
		Destination{Name: "a", URL: "rtmp://a.example.com/live/x", Enabled: false},
	)
	if err := s.Start(); err != ErrNoEnabledDestinations {
		t.Fatalf("Start = %v, want ErrNoEnabledDestinations", err)
	}
	if len(fl.eventLog()) != 0 {
		t.Fatalf("processes spawned: %v", fl.eventLog())
	}
	if s.State() != Idle {
		t.Fatalf("state = %v, want idle", s.State())
	}
}

func TestStartRejectsMalformedURLOutright(t *testing.T) {
	s, fl := newTestSupervisor(t,
		Destination{Name: "a", URL: "rtmp://a.example.com/live/x", Enabled: true},
		Destination{Name: "b", URL: "not a url", Enabled: true},
	)
	err := s.Start()
	if err == nil {
		t.Fatal("Start accepted a malformed destination URL")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Fatalf("Start = %T, want *ConfigurationError", err)
	}
	// validation is all-or-nothing: nothing spawned for the valid one either
	if len(fl.eventLog()) != 0 {
		t.Fatalf("processes spawned despite rejection: %v", fl.eventLog())
	}
}

func TestStartTwiceRejected(t *testing.T) {
	s, _ := newTestSupervisor(t,
		Destination{Name: "a", URL: "rtmp://a.example.com/live/x", Enabled: true},
	)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if err := s.Start(); err != ErrAlreadyRunning {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	s, fl := newTestSupervisor(t,
		Destination{Name: "a", URL: "rtmp://a.example.com/live/x", Enabled: true},
		Destination{Name: "b", URL: "rtmp://b.example.com/live/x", Enabled: true},
	)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop = %v, want nil", err)
	}

	snap := s.Status()
	if snap.State != "stopped" {
		t.Fatalf("state = %s, want stopped", snap.State)
	}
	for _, d := range snap.Destinations {
		if d.Running {
			t.Fatalf("destination %s still running after stop", d.Name)
		}
	}
	for _, name := range []string{"a", "b"} {
		if p := fl.latest(name); p.Poll() == RunnerRunning {
			t.Fatalf("process for %s leaked past stop", name)
		}
	}
}

func TestDestinationFailureIsolation(t *testing.T) {
	s, fl := newTestSupervisor(t,
		Destination{Name: "a", URL: "rtmp://a.example.com/live/x", Enabled: true},
		Destination{Name: "b", URL: "rtmp://b.example.com/live/x", Enabled: true},
	)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	bStart := fl.latest("b").StartedAt()
	now := time.Now()

	fl.latest("a").fail(1)
	s.tick(now)
	// backoff holds a back for the base delay, then it respawns
	s.tick(now.Add(500 * time.Millisecond))
	if fl.generations("a") != 1 {
		t.Fatal("a respawned before its backoff elapsed")
	}
	s.tick(now.Add(2 * time.Second))
	if fl.generations("a") != 2 {
		t.Fatalf("a generations = %d, want 2", fl.generations("a"))
	}

	// b never restarted, never stopped, uptime preserved
	if fl.generations("b") != 1 {
		t.Fatalf("b generations = %d, want 1", fl.generations("b"))
	}
	if got := fl.latest("b").StartedAt(); !got.Equal(bStart) {
		t.Fatal("b's uptime baseline changed")
	}
	for _, e := range fl.eventLog() {
		if e == "stop:b" {
			t.Fatal("b was stopped by a's failure")
		}
	}
}

func TestFailingDestinationMovesToCooldown(t *testing.T) {
	s, fl := newTestSupervisor(t,
		Destination{Name: "a", URL: "rtmp://a.example.com/live/x", Enabled: true},
	)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	now := time.Now()
	fl.latest("a").fail(1)
	s.tick(now) // failure 1, next attempt after 1s
	s.tick(now.Add(2 * time.Second))
	fl.latest("a").fail(1)
	s.tick(now.Add(3 * time.Second)) // failure 2, next attempt after 2s
	s.tick(now.Add(6 * time.Second))
	fl.latest("a").fail(1)
	s.tick(now.Add(7 * time.Second)) // failure 3: failing, 60s cooldown

	snap := s.Status()
	if snap.Destinations[0].Health != "failing" {
		t.Fatalf("health = %s, want failing", snap.Destinations[0].Health)
	}
	if snap.Destinations[0].ConsecutiveFailures != 3 {
		t.Fatalf("failures = %d, want 3", snap.Destinations[0].ConsecutiveFailures)
	}

	gens := fl.generations("a")
	s.tick(now.Add(30 * time.Second))
	if fl.generations("a") != gens {
		t.Fatal("failing destination retried before its cooldown")
	}
	s.tick(now.Add(70 * time.Second))
	if fl.generations("a") != gens+1 {
		t.Fatal("failing destination not retried after its cooldown")
	}
}

func TestSourceFlipTriggersOneFullRestart(t *testing.T) {
	s, fl := newTestSupervisor(t,
		Destination{Name: "a", URL: "rtmp://a.example.com/live/x", Enabled: true},
		Destination{Name: "b", URL: "rtmp://b.example.com/live/x", Enabled: true},
	)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	fl.setOffline(true)
	s.checkSource()

	events := fl.eventLog()
	if len(events) != 6 {
		t.Fatalf("events = %v, want 2 starts + 2 stops + 2 starts", events)
	}
	// the full teardown completes before any replacement spawns
	for _, e := range events[2:4] {
		if !strings.HasPrefix(e, "stop:") {
			t.Fatalf("expected stops before new generation, got %v", events)
		}
	}
	for _, e := range events[4:6] {
		if !strings.HasPrefix(e, "start:") {
			t.Fatalf("expected new generation after stops, got %v", events)
		}
	}

	// a steady probe result does not restart again
	s.checkSource()
	if got := fl.eventLog(); len(got) != 6 {
		t.Fatalf("steady probe caused extra events: %v", got)
	}

	// flipping back online is exactly one more cycle
	fl.setOffline(false)
	s.checkSource()
	if got := fl.eventLog(); len(got) != 10 {
		t.Fatalf("events after flip back = %v", got)
	}
}

func TestRestartHasNoGenerationOverlap(t *testing.T) {
	s, fl := newTestSupervisor(t,
		Destination{Name: "a", URL: "rtmp://a.example.com/live/x", Enabled: true},
		Destination{Name: "b", URL: "rtmp://b.example.com/live/x", Enabled: true},
	)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Restart(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	events := fl.eventLog()
	lastStop, firstSecondStart := -1, -1
	for i, e := range events {
		if strings.HasPrefix(e, "stop:") {
			lastStop = i
		}
		if strings.HasPrefix(e, "start:") && i >= 2 && firstSecondStart == -1 {
			firstSecondStart = i
		}
	}
	if lastStop == -1 || firstSecondStart == -1 {
		t.Fatalf("unexpected event log: %v", events)
	}
	if lastStop > firstSecondStart {
		t.Fatalf("old generation still live when new one spawned: %v", events)
	}
	if s.State() != Running {
		t.Fatalf("state after restart = %v, want running", s.State())
	}
}

func TestDisableAffectsNextRestartOnly(t *testing.T) {
	s, fl := newTestSupervisor(t,
		Destination{Name: "a", URL: "rtmp://a.example.com/live/x", Enabled: true},
		Destination{Name: "b", URL: "rtmp://b.example.com/live/x", Enabled: true},
	)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	s.Destinations.SetEnabled("b", false)
	s.tick(time.Now())
	// the live process keeps running until it exits on its own
	if fl.latest("b").Poll() != RunnerRunning {
		t.Fatal("disable tore down a live process")
	}

	fl.latest("b").fail(1)
	s.tick(time.Now())
	s.tick(time.Now().Add(2 * time.Second))
	if fl.generations("b") != 1 {
		t.Fatal("disabled destination was restarted")
	}
}
