// Package net is a small reliability layer over a datagram socket. It
// offers unreliable-sequenced, reliable-unordered and reliable-ordered
// delivery to any number of peers.
package net

import (
	"errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tilesim/tilesim/internal/config"
	"github.com/tilesim/tilesim/internal/core/clock"
	"go.uber.org/zap"
)

type Config struct {
	MaxPayload        int
	InQueueSize       int
	ResendInterval    time.Duration
	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
}

func ConfigFrom(c config.NetworkConfig) Config {
	return Config{
		MaxPayload:        c.MaxPayload,
		InQueueSize:       c.InQueueSize,
		ResendInterval:    c.ResendInterval,
		HeartbeatInterval: c.HeartbeatInterval,
		IdleTimeout:       c.IdleTimeout,
	}
}

type EventKind uint8

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventData
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	default:
		return "data"
	}
}

// Event is one thing observed during Poll. Peer is the remote address.
type Event struct {
	Kind EventKind
	Peer string
	Data []byte
}

type inbound struct {
	addr net.Addr
	data []byte
}

// Transport owns one datagram socket. A reader goroutine pushes datagrams
// into a bounded queue; all protocol work happens in Poll, Send and Recv,
// which must be called from one goroutine.
type Transport struct {
	conn   net.PacketConn
	cfg    Config
	clock  clock.Clock
	accept bool
	log    *zap.Logger

	in     chan inbound
	peers  map[string]*peer
	events []Event

	closed  atomic.Bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New wraps conn. When accept is true, datagrams from unknown addresses
// create peers (server mode); otherwise only peers added with Connect are
// talked to.
func New(conn net.PacketConn, accept bool, cfg Config, clk clock.Clock, log *zap.Logger) *Transport {
	if cfg.InQueueSize <= 0 {
		cfg.InQueueSize = 1024
	}
	t := &Transport{
		conn:    conn,
		cfg:     cfg,
		clock:   clk,
		accept:  accept,
		log:     log,
		in:      make(chan inbound, cfg.InQueueSize),
		peers:   make(map[string]*peer),
		closeCh: make(chan struct{}),
	}
	t.wg.Add(1)
	go t.readLoop()
	return t
}

// Listen binds a server transport on a UDP address.
func Listen(addr string, cfg Config, clk clock.Clock, log *zap.Logger) (*Transport, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn, true, cfg, clk, log), nil
}

// Dial opens a client transport on an ephemeral port and registers the
// server as its only peer. It returns the peer key for Send.
func Dial(addr string, cfg Config, clk clock.Clock, log *zap.Logger) (*Transport, string, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, "", err
	}
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, "", err
	}
	t := New(conn, false, cfg, clk, log)
	return t, t.Connect(raddr), nil
}

func (t *Transport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Connect registers addr as a peer and queues a Connect event for it.
func (t *Transport) Connect(addr net.Addr) string {
	key := addr.String()
	if _, ok := t.peers[key]; !ok {
		t.peers[key] = newPeer(addr, t.clock.Micros())
		t.events = append(t.events, Event{Kind: EventConnect, Peer: key})
	}
	return key
}

func (t *Transport) HasPeer(key string) bool {
	_, ok := t.peers[key]
	return ok
}

func (t *Transport) PeerCount() int { return len(t.peers) }

// Send queues payload for the next Poll. Unknown peers and a closed
// transport make it a silent no-op; oversized payloads are dropped.
func (t *Transport) Send(key string, d Delivery, payload []byte) {
	if t.closed.Load() {
		return
	}
	p, ok := t.peers[key]
	if !ok {
		t.log.Debug("send to unknown peer dropped", zap.String("peer", key))
		return
	}
	if len(payload) > t.cfg.MaxPayload {
		t.log.Warn("payload exceeds limit, dropped",
			zap.String("peer", key),
			zap.Int("size", len(payload)),
			zap.Int("max", t.cfg.MaxPayload),
		)
		return
	}
	p.outgoing = append(p.outgoing, outgoing{kind: d.kind(), payload: payload})
}

// Disconnect tells the peer goodbye, forgets it and queues a Disconnect
// event so the owner cleans up on the same path as a timeout.
func (t *Transport) Disconnect(key string) {
	p, ok := t.peers[key]
	if !ok {
		return
	}
	t.write(p, encodeDatagram(kindDisconnect, 0, nil))
	t.drop(p, "local")
}

// Recv returns the events gathered by the last Poll calls and clears them.
func (t *Transport) Recv() []Event {
	ev := t.events
	t.events = nil
	return ev
}

// Poll drains received datagrams, then flushes queued sends, acks,
// retransmissions and heartbeats, and expires idle peers.
func (t *Transport) Poll() {
	if t.closed.Load() {
		return
	}
	now := t.clock.Micros()
	t.drainInbound(now)

	keys := make([]string, 0, len(t.peers))
	for k := range t.peers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	idle := uint64(t.cfg.IdleTimeout.Microseconds())
	for _, k := range keys {
		p := t.peers[k]
		if idle > 0 && now-p.lastRecv > idle {
			t.drop(p, "timeout")
			continue
		}
		t.flushPeer(p, now)
	}
}

func (t *Transport) drainInbound(now uint64) {
	for {
		select {
		case in := <-t.in:
			t.handleDatagram(in, now)
		default:
			return
		}
	}
}

func (t *Transport) handleDatagram(in inbound, now uint64) {
	d, err := decodeDatagram(in.data)
	if err != nil {
		t.log.Debug("malformed datagram", zap.Stringer("from", in.addr), zap.Error(err))
		return
	}
	key := in.addr.String()
	p, ok := t.peers[key]
	if !ok {
		if !t.accept || d.kind == kindDisconnect {
			return
		}
		p = newPeer(in.addr, now)
		t.peers[key] = p
		t.events = append(t.events, Event{Kind: EventConnect, Peer: key})
		t.log.Debug("peer connected", zap.String("peer", key))
	}
	p.lastRecv = now

	if d.kind == kindDisconnect {
		t.drop(p, "remote")
		return
	}
	if !p.inWindow(d) {
		t.log.Debug("datagram beyond receive window dropped",
			zap.String("peer", key), zap.Uint32("seq", d.seq))
		return
	}
	for _, payload := range p.receive(d) {
		t.events = append(t.events, Event{Kind: EventData, Peer: key, Data: payload})
	}
}

func (t *Transport) flushPeer(p *peer, now uint64) {
	for _, o := range p.outgoing {
		seq := p.takeSeq(o.kind)
		data := encodeDatagram(o.kind, seq, o.payload)
		if o.kind != kindSequenced {
			p.unacked[ackEntry{kind: o.kind, seq: seq}] = &pending{data: data, lastSent: now}
		}
		t.write(p, data)
	}
	p.outgoing = p.outgoing[:0]

	resend := uint64(t.cfg.ResendInterval.Microseconds())
	for _, pend := range p.unacked {
		if now-pend.lastSent >= resend && pend.lastSent != now {
			pend.lastSent = now
			t.write(p, pend.data)
		}
	}

	if len(p.acks) > 0 {
		per := max(t.cfg.MaxPayload/ackEntrySize, 1)
		for len(p.acks) > 0 {
			n := min(per, len(p.acks))
			t.write(p, encodeDatagram(kindAck, 0, encodeAcks(p.acks[:n])))
			p.acks = p.acks[n:]
		}
		p.acks = nil
	}

	hb := uint64(t.cfg.HeartbeatInterval.Microseconds())
	if hb > 0 && now-p.lastSend >= hb {
		t.write(p, encodeDatagram(kindHeartbeat, 0, nil))
	}
}

func (t *Transport) write(p *peer, data []byte) {
	if _, err := t.conn.WriteTo(data, p.addr); err != nil {
		if !t.closed.Load() {
			t.log.Debug("write failed", zap.String("peer", p.key), zap.Error(err))
		}
		return
	}
	p.lastSend = t.clock.Micros()
}

func (t *Transport) drop(p *peer, reason string) {
	delete(t.peers, p.key)
	t.events = append(t.events, Event{Kind: EventDisconnect, Peer: p.key})
	t.log.Debug("peer dropped", zap.String("peer", p.key), zap.String("reason", reason))
}

// Close says goodbye to every peer and stops the reader goroutine.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	bye := encodeDatagram(kindDisconnect, 0, nil)
	for _, p := range t.peers {
		t.conn.WriteTo(bye, p.addr)
	}
	close(t.closeCh)
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

// readLoop runs in its own goroutine. It copies each datagram off the
// socket and queues it for Poll; a full queue drops the datagram.
func (t *Transport) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, headerSize+t.cfg.MaxPayload+1)
	for {
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			t.log.Debug("read failed", zap.Error(err))
			continue
		}
		if n > headerSize+t.cfg.MaxPayload {
			t.log.Debug("oversized datagram dropped", zap.Stringer("from", addr), zap.Int("size", n))
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case t.in <- inbound{addr: addr, data: data}:
		case <-t.closeCh:
			return
		default:
			t.log.Warn("inbound queue full, datagram dropped", zap.Stringer("from", addr))
		}
	}
}
