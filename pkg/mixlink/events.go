package mixlink

import "github.com/bft-labs/mixlink/pkg/engine"

// State is the connection state reported by a Runner.
type State = engine.State

const (
	StateDisconnected = engine.StateDisconnected
	StateConnecting   = engine.StateConnecting
	StateConnected    = engine.StateConnected
	StateStopped      = engine.StateStopped
)

// StateChangeEvent describes one connection state change.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// EventHandler receives runner events.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
}

// BaseEventHandler can be embedded to implement EventHandler with no-ops.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}

type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current engine.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: previous,
		Current:  current,
		Reason:   reason,
	})
}
