package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/mixlink/pkg/log"
)

// ErrInvalidTransition is returned when a state change is not allowed.
var ErrInvalidTransition = errors.New("engine: invalid state transition")

// State is the connection state of the sync engine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Observer is called on every state change, from the engine goroutine.
type Observer interface {
	OnStateChange(previous, current State, reason string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(previous, current State, reason string)

func (f ObserverFunc) OnStateChange(previous, current State, reason string) {
	f(previous, current, reason)
}

// stateMachine validates and publishes engine state changes.
type stateMachine struct {
	mu       sync.RWMutex
	state    State
	logger   log.Logger
	observer Observer
}

func newStateMachine(logger log.Logger, observer Observer) *stateMachine {
	return &stateMachine{
		state:    StateDisconnected,
		logger:   logger,
		observer: observer,
	}
}

func (m *stateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// allowed reports whether from -> to is a valid transition.
func allowed(from, to State) bool {
	if to == StateStopped {
		return from != StateStopped
	}
	switch from {
	case StateDisconnected, StateStopped:
		return to == StateConnecting
	case StateConnecting:
		return to == StateConnected || to == StateDisconnected
	case StateConnected:
		return to == StateDisconnected
	}
	return false
}

// transitionTo moves to newState. The observer is notified outside the lock.
func (m *stateMachine) transitionTo(newState State, reason string) error {
	m.mu.Lock()
	oldState := m.state
	if !allowed(oldState, newState) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldState, newState)
	}
	m.state = newState
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.OnStateChange(oldState, newState, reason)
	}

	m.logger.Debug("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}
