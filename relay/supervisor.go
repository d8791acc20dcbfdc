package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/EasyRestream/EasyRestream/log"
)

type JobState int

const (
	Idle JobState = iota
	Starting
	Running
	Degraded
	Stopping
	Stopped
)

func (s JobState) String() string {
	return [...]string{"idle", "starting", "running", "degraded", "stopping", "stopped"}[s]
}

var (
	ErrAlreadyRunning        = errors.New("job is already running")
	ErrNotRunning            = errors.New("job is not running")
	ErrNoEnabledDestinations = errors.New("no enabled destinations")
)

type DestinationStatus struct {
	Name                string        `json:"name"`
	URL                 string        `json:"url"`
	Enabled             bool          `json:"enabled"`
	Running             bool          `json:"running"`
	Uptime              time.Duration `json:"uptime"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Health              string        `json:"health"`
}

type StatusSnapshot struct {
	JobID           string              `json:"jobId"`
	State           string              `json:"state"`
	SourceURL       string              `json:"sourceUrl"`
	SourceOnline    bool                `json:"sourceOnline"`
	StartedAt       time.Time           `json:"startedAt"`
	LastSourceCheck time.Time           `json:"lastSourceCheck"`
	Destinations    []DestinationStatus `json:"destinations"`
}

// Supervisor owns the lifecycle of one stream job: a pushing process per
// enabled destination, a timer-driven monitor loop deciding restarts, and a
// job-private cancellation context. Stopping one job can never affect
// another job's workers.
type Supervisor struct {
	JobID        string
	Source       Source
	Destinations *DestinationSet

	cfg         Config
	logger      *log.Logger
	newPusher   pusherFactory
	probeSource func() bool

	lock      sync.Mutex
	state     JobState
	startedAt time.Time
	pushers   map[string]pusher
	monitor   *Monitor
	cancel    context.CancelFunc
	loopDone  chan struct{}
	stopped   chan struct{}
}

func NewSupervisor(jobID string, source Source, destinations *DestinationSet, cfg Config) *Supervisor {
	return &Supervisor{
		JobID:        jobID,
		Source:       source,
		Destinations: destinations,
		cfg:          cfg,
		logger:       log.NewLogger(jobID, log.JobId),
		newPusher:    newFFmpegPusher,
		probeSource:  func() bool { return source.CheckOnline(cfg.SourceProbeTimeout) },
		state:        Idle,
	}
}

// Start validates the enabled destination set, spawns one pusher per enabled
// destination and launches the monitor loop. Validation is all-or-nothing:
// one malformed enabled URL rejects the whole job with nothing spawned.
func (s *Supervisor) Start() error {
	s.lock.Lock()
	if s.state != Idle && s.state != Stopped {
		s.lock.Unlock()
		return ErrAlreadyRunning
	}
	enabled := s.Destinations.Enabled()
	if len(enabled) == 0 {
		s.lock.Unlock()
		return ErrNoEnabledDestinations
	}
	for _, d := range enabled {
		if err := CheckDestinationURL(d.URL); err != nil {
			s.lock.Unlock()
			return err
		}
	}
	s.state = Starting
	s.monitor = NewMonitor(s.cfg)
	s.pushers = make(map[string]pusher)
	s.lock.Unlock()

	// network probe happens outside the lock so Status() stays responsive
	online := s.probeSource()

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state != Starting {
		// a concurrent Stop won the race during the probe
		return nil
	}
	now := time.Now()
	s.monitor.RecordSourceCheck(online, now)
	if !online {
		s.logger.Warn("source is offline, starting with placeholder input")
	}
	for _, d := range enabled {
		s.spawnLocked(d, now)
	}
	s.state = Running
	s.startedAt = now

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	go s.loop(ctx)
	s.logger.Info(fmt.Sprintf("job started, %d destination(s)", len(enabled)))
	return nil
}

func (s *Supervisor) spawnLocked(d Destination, now time.Time) {
	placeholder := s.cfg.PlaceholderEnabled && !s.monitor.SourceOnline()
	p := s.newPusher(s.JobID, s.Source, d, placeholder, s.cfg)
	if err := p.Start(); err != nil {
		// spawn failures count against the destination and go through the
		// same retry schedule as a crash
		s.logger.Error(fmt.Sprintf("spawn for destination %s failed: %v", d.Name, err))
		s.monitor.ObserveExit(d.Name, now)
		return
	}
	s.pushers[d.Name] = p
}

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.loopDone)
	monitorTick := time.NewTicker(s.cfg.MonitorInterval)
	defer monitorTick.Stop()
	sourceTick := time.NewTicker(s.cfg.SourceCheckInterval)
	defer sourceTick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-monitorTick.C:
			s.tick(time.Now())
		case <-sourceTick.C:
			s.checkSource()
		}
	}
}

// tick reaps exited pushers and restarts eligible destinations. Destinations
// are independent: each one's schedule is consulted separately and a Failing
// destination never delays the others.
func (s *Supervisor) tick(now time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state != Running && s.state != Degraded {
		return
	}

	for name, p := range s.pushers {
		switch p.Poll() {
		case RunnerRunning:
			s.monitor.ObserveAlive(name, p.StartedAt(), now)
		default:
			s.logger.Warn(fmt.Sprintf("destination %s process exited with code %d", name, p.ExitCode()))
			delete(s.pushers, name)
			s.monitor.ObserveExit(name, now)
		}
	}

	enabled := s.Destinations.Enabled()
	for _, d := range enabled {
		if _, ok := s.pushers[d.Name]; ok {
			continue
		}
		if s.monitor.Eligible(d.Name, now) {
			s.spawnLocked(d, now)
		}
	}

	healthy := 0
	for _, d := range enabled {
		if _, ok := s.pushers[d.Name]; !ok {
			continue
		}
		if state, _ := s.monitor.HealthOf(d.Name); state == Healthy {
			healthy++
		}
	}
	if healthy == len(enabled) {
		s.state = Running
	} else {
		s.state = Degraded
	}
}

// checkSource probes source availability; a flip in online status replaces
// the input itself, so every process is torn down before any replacement is
// spawned. This is the one case where a global restart is correct.
func (s *Supervisor) checkSource() {
	online := s.probeSource()
	now := time.Now()

	s.lock.Lock()
	if s.state != Running && s.state != Degraded {
		s.lock.Unlock()
		return
	}
	flipped := s.monitor.RecordSourceCheck(online, now)
	if !flipped {
		s.lock.Unlock()
		return
	}
	s.logger.Info(fmt.Sprintf("source online=%v, restarting full pipeline", online))
	old := s.pushers
	s.pushers = make(map[string]pusher)
	s.lock.Unlock()

	var wg sync.WaitGroup
	for _, p := range old {
		wg.Add(1)
		go func(p pusher) {
			defer wg.Done()
			p.Stop(s.cfg.GracePeriod)
		}(p)
	}
	wg.Wait()

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state != Running && s.state != Degraded {
		return
	}
	for _, d := range s.Destinations.Enabled() {
		s.spawnLocked(d, time.Now())
	}
}

// Stop tears the job down: graceful terminate per pusher bounded by the
// grace period, then forced kill. Idempotent; concurrent callers wait for
// the first stop to finish.
func (s *Supervisor) Stop() error {
	s.lock.Lock()
	switch s.state {
	case Idle, Stopped:
		s.lock.Unlock()
		return nil
	case Stopping:
		stopped := s.stopped
		s.lock.Unlock()
		if stopped != nil {
			<-stopped
		}
		return nil
	}
	s.state = Stopping
	s.stopped = make(chan struct{})
	stopped := s.stopped
	cancel := s.cancel
	loopDone := s.loopDone
	old := s.pushers
	s.pushers = make(map[string]pusher)
	s.lock.Unlock()

	if cancel != nil {
		cancel()
	}
	var wg sync.WaitGroup
	for _, p := range old {
		wg.Add(1)
		go func(p pusher) {
			defer wg.Done()
			p.Stop(s.cfg.GracePeriod)
		}(p)
	}
	wg.Wait()
	if loopDone != nil {
		<-loopDone
	}

	s.lock.Lock()
	s.state = Stopped
	s.cancel = nil
	s.loopDone = nil
	s.lock.Unlock()
	close(stopped)
	s.logger.Info("job stopped")
	return nil
}

// Restart is stop then start with a mandatory pause so upstream and
// downstream connections fully release before the new generation spawns.
func (s *Supervisor) Restart() error {
	if err := s.Stop(); err != nil {
		return err
	}
	time.Sleep(s.cfg.RestartPause)
	return s.Start()
}

func (s *Supervisor) State() JobState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Status returns a point-in-time snapshot. It never touches process I/O,
// only non-blocking polls, so it is safe to call from the control surface at
// any rate.
func (s *Supervisor) Status() StatusSnapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	snap := StatusSnapshot{
		JobID:     s.JobID,
		State:     s.state.String(),
		SourceURL: s.Source.URL,
		StartedAt: s.startedAt,
	}
	if s.monitor != nil {
		snap.SourceOnline = s.monitor.SourceOnline()
		snap.LastSourceCheck = s.monitor.LastSourceCheck()
	}
	for _, d := range s.Destinations.All() {
		ds := DestinationStatus{
			Name:    d.Name,
			URL:     d.URL,
			Enabled: d.Enabled,
			Health:  Healthy.String(),
		}
		if p, ok := s.pushers[d.Name]; ok && p.Poll() == RunnerRunning {
			ds.Running = true
			ds.Uptime = time.Since(p.StartedAt())
		}
		if s.monitor != nil {
			state, failures := s.monitor.HealthOf(d.Name)
			ds.Health = state.String()
			ds.ConsecutiveFailures = failures
		}
		snap.Destinations = append(snap.Destinations, ds)
	}
	return snap
}
