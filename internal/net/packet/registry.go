package packet

import (
	"fmt"

	"github.com/tilesim/tilesim/internal/protocol"
	"go.uber.org/zap"
)

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateConnecting    SessionState = iota // transport link up, no Connect accepted yet
	StateConnected                         // version accepted, awaiting Join
	StateJoining                           // join batch sent, awaiting JoinComplete
	StateInWorld                           // playing
	StateDisconnecting                     // draining before removal
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateJoining:
		return "Joining"
	case StateInWorld:
		return "InWorld"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for message handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, msg protocol.ClientMessage)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps opcodes to handlers with state-based access control.
type Registry struct {
	handlers map[protocol.Opcode]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[protocol.Opcode]*handlerEntry),
		log:      log,
	}
}

// Register maps an opcode to a handler, restricted to the given session states.
func (reg *Registry) Register(op protocol.Opcode, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[op] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch finds the handler for the message's opcode, validates the session
// state, and calls the handler. Returns an error if the opcode is unknown,
// the state is not allowed or the handler panicked.
func (reg *Registry) Dispatch(sess any, state SessionState, msg protocol.ClientMessage) error {
	op := msg.Opcode()
	entry, ok := reg.handlers[op]
	if !ok {
		return fmt.Errorf("no handler for %s", op)
	}
	if !entry.allowedStates[state] {
		return fmt.Errorf("%s not allowed in state %s", op, state)
	}
	return reg.safeCall(entry.fn, sess, msg)
}

// safeCall executes a handler with panic recovery so a single bad message
// cannot crash the tick loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, msg protocol.ClientMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.Stringer("opcode", msg.Opcode()),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for %s: %v", msg.Opcode(), rec)
		}
	}()
	fn(sess, msg)
	return nil
}
