package net

import "net"

// receiveWindow is how far past the next expected sequence reliable
// datagrams are buffered. Anything further is dropped unacked and arrives
// again through the sender's resend.
const receiveWindow = 1024

// pending is a reliable datagram waiting for its ack.
type pending struct {
	data     []byte
	lastSent uint64
}

type outgoing struct {
	kind    kind
	payload []byte
}

// receivedWindow remembers which reliable sequences arrived. Everything
// below base has been seen; above base only the stragglers are kept.
type receivedWindow struct {
	base  uint32
	above map[uint32]struct{}
}

func newReceivedWindow() receivedWindow {
	return receivedWindow{base: 1, above: make(map[uint32]struct{})}
}

// mark records seq and reports whether it is new.
func (w *receivedWindow) mark(seq uint32) bool {
	if seq < w.base {
		return false
	}
	if _, dup := w.above[seq]; dup {
		return false
	}
	w.above[seq] = struct{}{}
	for {
		if _, ok := w.above[w.base]; !ok {
			break
		}
		delete(w.above, w.base)
		w.base++
	}
	return true
}

// peer is the per-address link state. Touched only from Poll and Send on
// the owning goroutine.
type peer struct {
	addr net.Addr
	key  string

	lastRecv uint64
	lastSend uint64

	nextSeq  [kindAck + 1]uint32
	unacked  map[ackEntry]*pending
	acks     []ackEntry
	outgoing []outgoing

	lastSequenced uint32
	unordered     receivedWindow
	orderedNext   uint32
	orderedBuf    map[uint32][]byte
}

func newPeer(addr net.Addr, now uint64) *peer {
	return &peer{
		addr:        addr,
		key:         addr.String(),
		lastRecv:    now,
		lastSend:    now,
		unacked:     make(map[ackEntry]*pending),
		unordered:   newReceivedWindow(),
		orderedNext: 1,
		orderedBuf:  make(map[uint32][]byte),
	}
}

func (p *peer) takeSeq(k kind) uint32 {
	p.nextSeq[k]++
	return p.nextSeq[k]
}

// inWindow reports whether a reliable datagram is close enough to the next
// expected sequence to be buffered.
func (p *peer) inWindow(d datagram) bool {
	switch d.kind {
	case kindUnordered:
		return uint64(d.seq) < uint64(p.unordered.base)+receiveWindow
	case kindOrdered:
		return uint64(d.seq) < uint64(p.orderedNext)+receiveWindow
	}
	return true
}

// receive runs the per-kind delivery rules and returns the payloads to hand
// to the application, in order.
func (p *peer) receive(d datagram) [][]byte {
	switch d.kind {
	case kindSequenced:
		if d.seq <= p.lastSequenced {
			return nil
		}
		p.lastSequenced = d.seq
		return [][]byte{d.payload}

	case kindUnordered:
		p.acks = append(p.acks, ackEntry{kind: d.kind, seq: d.seq})
		if !p.unordered.mark(d.seq) {
			return nil
		}
		return [][]byte{d.payload}

	case kindOrdered:
		p.acks = append(p.acks, ackEntry{kind: d.kind, seq: d.seq})
		if d.seq < p.orderedNext {
			return nil
		}
		if _, dup := p.orderedBuf[d.seq]; dup {
			return nil
		}
		p.orderedBuf[d.seq] = d.payload
		var out [][]byte
		for {
			data, ok := p.orderedBuf[p.orderedNext]
			if !ok {
				break
			}
			delete(p.orderedBuf, p.orderedNext)
			p.orderedNext++
			out = append(out, data)
		}
		return out

	case kindAck:
		for _, a := range decodeAcks(d.payload) {
			delete(p.unacked, a)
		}
	}
	return nil
}
