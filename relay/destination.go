package relay

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Destination is one remote endpoint the source is retransmitted to.
// Name is the identity and must be unique within a job. Enabled only affects
// the next (re)start decision, it never tears down a live process by itself.
type Destination struct {
	Name    string
	URL     string
	Enabled bool
}

// ConfigurationError marks errors that are rejected synchronously at start
// time and never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

var pushSchemes = map[string]bool{
	"rtmp":  true,
	"rtmps": true,
	"rtsp":  true,
	"srt":   true,
}

// CheckDestinationURL verifies url looks like proto://host[:port]/path for a
// push transport. Malformed URLs are rejected before any process is spawned.
func CheckDestinationURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return &ConfigurationError{Reason: fmt.Sprintf("destination url %q: %v", rawURL, err)}
	}
	if !pushSchemes[strings.ToLower(u.Scheme)] {
		return &ConfigurationError{Reason: fmt.Sprintf("destination url %q: unsupported scheme %q", rawURL, u.Scheme)}
	}
	if u.Hostname() == "" {
		return &ConfigurationError{Reason: fmt.Sprintf("destination url %q: missing host", rawURL)}
	}
	if u.Path == "" || u.Path == "/" {
		return &ConfigurationError{Reason: fmt.Sprintf("destination url %q: missing path", rawURL)}
	}
	return nil
}

// DestinationSet is the per-job destination registry. The control surface
// mutates it while the monitor loop reads it, so every access goes through
// the lock. Insertion order is preserved for status output.
type DestinationSet struct {
	lock  sync.RWMutex
	order []string
	byKey map[string]*Destination
}

func NewDestinationSet(destinations ...Destination) (*DestinationSet, error) {
	s := &DestinationSet{byKey: make(map[string]*Destination)}
	for _, d := range destinations {
		if err := s.Add(d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *DestinationSet) Add(d Destination) error {
	if strings.TrimSpace(d.Name) == "" {
		return &ConfigurationError{Reason: "destination name is required"}
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.byKey[d.Name]; ok {
		return &ConfigurationError{Reason: fmt.Sprintf("destination %q already exists", d.Name)}
	}
	dest := d
	s.byKey[d.Name] = &dest
	s.order = append(s.order, d.Name)
	return nil
}

func (s *DestinationSet) Remove(name string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.byKey[name]; !ok {
		return false
	}
	delete(s.byKey, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *DestinationSet) SetEnabled(name string, enabled bool) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	d, ok := s.byKey[name]
	if !ok {
		return false
	}
	d.Enabled = enabled
	return true
}

func (s *DestinationSet) Get(name string) (Destination, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	d, ok := s.byKey[name]
	if !ok {
		return Destination{}, false
	}
	return *d, true
}

// All returns a copy of every destination in insertion order.
func (s *DestinationSet) All() []Destination {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]Destination, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.byKey[name])
	}
	return out
}

// Enabled returns a copy of the enabled subset in insertion order.
func (s *DestinationSet) Enabled() []Destination {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]Destination, 0, len(s.order))
	for _, name := range s.order {
		if d := s.byKey[name]; d.Enabled {
			out = append(out, *d)
		}
	}
	return out
}

func (s *DestinationSet) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.order)
}
