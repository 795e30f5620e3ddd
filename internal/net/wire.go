package net

import (
	"fmt"

	"github.com/tilesim/tilesim/internal/net/packet"
)

// magic tags every datagram so stray traffic is discarded early.
const magic uint32 = 0x54534D31

const headerSize = 4 + 1 + 4

type kind uint8

const (
	kindHeartbeat kind = iota + 1
	kindDisconnect
	kindSequenced
	kindUnordered
	kindOrdered
	kindAck
)

func (k kind) String() string {
	switch k {
	case kindHeartbeat:
		return "heartbeat"
	case kindDisconnect:
		return "disconnect"
	case kindSequenced:
		return "unreliable-sequenced"
	case kindUnordered:
		return "reliable-unordered"
	case kindOrdered:
		return "reliable-ordered"
	case kindAck:
		return "ack"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Delivery selects the guarantee for a Send.
type Delivery uint8

const (
	// UnreliableSequenced may drop; the receiver discards anything older
	// than what it already delivered.
	UnreliableSequenced Delivery = iota
	// ReliableUnordered is retransmitted until acked and delivered once,
	// in arrival order.
	ReliableUnordered
	// ReliableOrdered is retransmitted until acked and delivered once, in
	// send order.
	ReliableOrdered
)

func (d Delivery) kind() kind {
	switch d {
	case ReliableUnordered:
		return kindUnordered
	case ReliableOrdered:
		return kindOrdered
	default:
		return kindSequenced
	}
}

func (d Delivery) String() string { return d.kind().String() }

type datagram struct {
	kind    kind
	seq     uint32
	payload []byte
}

func encodeDatagram(k kind, seq uint32, payload []byte) []byte {
	w := packet.NewWriter(headerSize + len(payload))
	w.WriteD(magic)
	w.WriteC(byte(k))
	w.WriteD(seq)
	w.WriteBytes(payload)
	return w.Bytes()
}

func decodeDatagram(data []byte) (datagram, error) {
	r := packet.NewReader(data)
	m := r.ReadD()
	k := kind(r.ReadC())
	seq := r.ReadD()
	if r.Short() {
		return datagram{}, fmt.Errorf("short datagram (%d bytes)", len(data))
	}
	if m != magic {
		return datagram{}, fmt.Errorf("bad magic %#x", m)
	}
	if k < kindHeartbeat || k > kindAck {
		return datagram{}, fmt.Errorf("unknown kind %d", uint8(k))
	}
	return datagram{kind: k, seq: seq, payload: r.Rest()}, nil
}

// ackEntry names one reliable datagram: its kind and sequence.
type ackEntry struct {
	kind kind
	seq  uint32
}

const ackEntrySize = 5

func encodeAcks(acks []ackEntry) []byte {
	w := packet.NewWriter(len(acks) * ackEntrySize)
	for _, a := range acks {
		w.WriteC(byte(a.kind))
		w.WriteD(a.seq)
	}
	return w.Bytes()
}

func decodeAcks(payload []byte) []ackEntry {
	r := packet.NewReader(payload)
	out := make([]ackEntry, 0, len(payload)/ackEntrySize)
	for r.Remaining() >= ackEntrySize {
		out = append(out, ackEntry{kind: kind(r.ReadC()), seq: r.ReadD()})
	}
	return out
}
