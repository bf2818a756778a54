// Package network provides connectivity.Source implementations: an active
// reachability prober and a manually driven source.
package network

import (
	"sync"

	"github.com/hay-kot/shelter/internal/core/connectivity"
)

// status holds the last known state and fans signals out to subscribers.
// Subscribers are only notified when the state actually changes, and in the
// order the changes were made.
type status struct {
	deliver  sync.Mutex // held across a change and its delivery
	mu       sync.Mutex
	online   bool
	handlers map[int]func(connectivity.Signal)
	nextID   int
}

func newStatus(online bool) *status {
	return &status{online: online, handlers: make(map[int]func(connectivity.Signal))}
}

func (s *status) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *status) Subscribe(fn func(connectivity.Signal)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.handlers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// set records the new state and reports whether it changed. Handlers must
// not call set.
func (s *status) set(online bool) bool {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return false
	}
	s.online = online
	handlers := make([]func(connectivity.Signal), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	sig := connectivity.SignalOffline
	if online {
		sig = connectivity.SignalOnline
	}
	for _, h := range handlers {
		h(sig)
	}
	return true
}

// Manual is a Source whose state is set by the caller, used for the
// "manual" probe mode and for tests.
type Manual struct {
	*status
}

var _ connectivity.Source = (*Manual)(nil)

// NewManual creates a Manual source in the given state.
func NewManual(online bool) *Manual {
	return &Manual{status: newStatus(online)}
}

// Set changes the state, signalling subscribers if it differs.
func (m *Manual) Set(online bool) {
	m.set(online)
}
