package relay

import (
	"sync"
	"time"

	"github.com/EasyRestream/EasyRestream/log"
)

// Registry maps job identifiers to supervisors, exactly one per jobId.
// Stopped jobs are kept as terminal records so status queries keep working
// until the job is started again or removed.
type Registry struct {
	cfg           Config
	newSupervisor func(jobID string, source Source, destinations *DestinationSet, cfg Config) *Supervisor

	lock sync.Mutex
	jobs map[string]*Supervisor
}

var instance *Registry = nil

func GetRegistry() *Registry {
	if instance == nil {
		instance = NewRegistry(LoadConfig())
	}
	return instance
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:           cfg,
		newSupervisor: NewSupervisor,
		jobs:          make(map[string]*Supervisor),
	}
}

func (r *Registry) supervisor(jobID string) *Supervisor {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.jobs[jobID]
}

// Get returns the supervisor for jobID, or nil if none is registered.
func (r *Registry) Get(jobID string) *Supervisor {
	return r.supervisor(jobID)
}

func (r *Registry) Config() Config {
	return r.cfg
}

// StartJob creates and starts a supervisor for jobID. A jobID with a live
// supervisor is rejected with ErrAlreadyRunning; the caller must stop it
// first. A stopped record is replaced.
func (r *Registry) StartJob(jobID string, source Source, destinations *DestinationSet) error {
	r.lock.Lock()
	if existing, ok := r.jobs[jobID]; ok && existing.State() != Stopped {
		r.lock.Unlock()
		return ErrAlreadyRunning
	}
	sup := r.newSupervisor(jobID, source, destinations, r.cfg)
	r.jobs[jobID] = sup
	r.lock.Unlock()

	if err := sup.Start(); err != nil {
		r.lock.Lock()
		if r.jobs[jobID] == sup {
			delete(r.jobs, jobID)
		}
		r.lock.Unlock()
		return err
	}
	return nil
}

func (r *Registry) StopJob(jobID string) error {
	sup := r.supervisor(jobID)
	if sup == nil {
		return ErrNotRunning
	}
	return sup.Stop()
}

func (r *Registry) RestartJob(jobID string) error {
	sup := r.supervisor(jobID)
	if sup == nil {
		return ErrNotRunning
	}
	return sup.Restart()
}

func (r *Registry) RemoveJob(jobID string) error {
	sup := r.supervisor(jobID)
	if sup == nil {
		return ErrNotRunning
	}
	if err := sup.Stop(); err != nil {
		return err
	}
	r.lock.Lock()
	delete(r.jobs, jobID)
	r.lock.Unlock()
	return nil
}

func (r *Registry) Status(jobID string) (StatusSnapshot, error) {
	sup := r.supervisor(jobID)
	if sup == nil {
		return StatusSnapshot{}, ErrNotRunning
	}
	return sup.Status(), nil
}

func (r *Registry) Jobs() []StatusSnapshot {
	r.lock.Lock()
	sups := make([]*Supervisor, 0, len(r.jobs))
	for _, sup := range r.jobs {
		sups = append(sups, sup)
	}
	r.lock.Unlock()
	out := make([]StatusSnapshot, 0, len(sups))
	for _, sup := range sups {
		out = append(out, sup.Status())
	}
	return out
}

func (r *Registry) JobSize() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.jobs)
}

// StopAll stops every job in parallel and waits at most timeout so a
// process-wide shutdown stays prompt even if an underlying media process is
// unresponsive.
func (r *Registry) StopAll(timeout time.Duration) {
	r.lock.Lock()
	sups := make([]*Supervisor, 0, len(r.jobs))
	for _, sup := range r.jobs {
		sups = append(sups, sup)
	}
	r.lock.Unlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, sup := range sups {
			wg.Add(1)
			go func(sup *Supervisor) {
				defer wg.Done()
				sup.Stop()
			}(sup)
		}
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn("timeout waiting for jobs to stop")
	}
}
