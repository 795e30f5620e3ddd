// Package session tracks the server side of each connected peer.
package session

import (
	"fmt"

	"github.com/tilesim/tilesim/internal/core/ecs"
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/net/packet"
	"github.com/tilesim/tilesim/internal/protocol"
	"go.uber.org/zap"
)

// Sender is the slice of the transport a session flushes into.
type Sender interface {
	Send(peer string, d net.Delivery, payload []byte)
}

// Session is one peer's connection record. Outbound messages are buffered
// per delivery guarantee and flushed as batches once per tick.
type Session struct {
	Addr     string
	EntityID ecs.EntityID

	JoinComplete      bool
	PendingDisconnect bool
	Violations        int

	state packet.SessionState
	out   [3][]protocol.ServerMessage
	log   *zap.Logger
}

func New(addr string, log *zap.Logger) *Session {
	return &Session{
		Addr:  addr,
		state: packet.StateConnecting,
		log:   log.With(zap.String("peer", addr)),
	}
}

func (s *Session) State() packet.SessionState { return s.state }

func (s *Session) SetState(st packet.SessionState) {
	if s.state != st {
		s.log.Debug("session state", zap.Stringer("from", s.state), zap.Stringer("to", st))
	}
	s.state = st
}

func (s *Session) Log() *zap.Logger { return s.log }

// Send queues messages for the next Flush. Messages queued together on the
// same delivery stay together in one batch where the payload limit allows.
func (s *Session) Send(d net.Delivery, msgs ...protocol.ServerMessage) {
	if s.PendingDisconnect {
		return
	}
	s.out[d] = append(s.out[d], msgs...)
}

// Queued reports how many messages wait on delivery d.
func (s *Session) Queued(d net.Delivery) int { return len(s.out[d]) }

// Violation records a protocol violation and reports whether the session
// has now reached limit (0 disables the limit).
func (s *Session) Violation(limit int, reason string, fields ...zap.Field) bool {
	s.Violations++
	s.log.Warn("protocol violation: "+reason, append(fields, zap.Int("count", s.Violations))...)
	return limit > 0 && s.Violations >= limit
}

// Flush encodes each delivery's queue into batches of at most maxPayload
// bytes and hands them to the sender.
func (s *Session) Flush(tx Sender, maxPayload int) error {
	for d := range s.out {
		msgs := s.out[d]
		if len(msgs) == 0 {
			continue
		}
		s.out[d] = s.out[d][:0]
		if err := sendBatches(tx, s.Addr, net.Delivery(d), msgs, maxPayload); err != nil {
			return fmt.Errorf("flush %s: %w", net.Delivery(d), err)
		}
	}
	return nil
}

// sendBatches splits msgs in halves until each part fits in maxPayload.
// A single message that is still too large is an error.
func sendBatches(tx Sender, addr string, d net.Delivery, msgs []protocol.ServerMessage, maxPayload int) error {
	data, err := protocol.EncodeServerBatch(msgs...)
	if err != nil {
		return err
	}
	if len(data) <= maxPayload {
		tx.Send(addr, d, data)
		return nil
	}
	if len(msgs) == 1 {
		return fmt.Errorf("%s encodes to %d bytes, limit %d", msgs[0].Opcode(), len(data), maxPayload)
	}
	mid := len(msgs) / 2
	if err := sendBatches(tx, addr, d, msgs[:mid], maxPayload); err != nil {
		return err
	}
	return sendBatches(tx, addr, d, msgs[mid:], maxPayload)
}
