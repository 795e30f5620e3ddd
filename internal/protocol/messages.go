// Package protocol defines the messages exchanged between client and
// server and their batch encoding.
package protocol

import (
	"fmt"

	"github.com/tilesim/tilesim/internal/world"
)

// Version is the protocol version a client advertises in Connect.
var Version = [2]uint8{0, 1}

type Opcode uint8

// Client to server.
const (
	OpConnect Opcode = iota + 1
	OpJoin
	OpJoinComplete
	OpSyncPlayer
	OpRequestChunk
	OpClientPing
	OpEditTile
)

// Server to client.
const (
	OpConnectAccept Opcode = iota + 64
	OpConnectReject
	OpJoinAccept
	OpChunkSync
	OpHumanoidSync
	OpStart
	OpServerPing
)

var opNames = map[Opcode]string{
	OpConnect:       "Connect",
	OpJoin:          "Join",
	OpJoinComplete:  "JoinComplete",
	OpSyncPlayer:    "SyncPlayer",
	OpRequestChunk:  "RequestChunk",
	OpClientPing:    "Ping",
	OpEditTile:      "EditTile",
	OpConnectAccept: "ConnectAccept",
	OpConnectReject: "ConnectReject",
	OpJoinAccept:    "JoinAccept",
	OpChunkSync:     "ChunkSync",
	OpHumanoidSync:  "HumanoidSync",
	OpStart:         "Start",
	OpServerPing:    "Ping",
}

func (o Opcode) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Opcode(%d)", uint8(o))
}

type ClientMessage interface {
	Opcode() Opcode
}

type ServerMessage interface {
	Opcode() Opcode
}

type Connect struct {
	Version [2]uint8
}

type Join struct{}

type JoinComplete struct{}

// SyncPlayer pushes the sender's own humanoid.
type SyncPlayer struct {
	Entity world.Humanoid
}

type RequestChunk struct {
	CX, CY uint16
	Seq    uint32
}

type Ping struct{}

// EditTile asks the server to place a tile.
type EditTile struct {
	X, Y  uint16
	Layer uint8
	Tile  uint8
}

type ConnectAccept struct{}

type ConnectReject struct {
	Version [2]uint8 // the server's version
}

type JoinAccept struct {
	WorldW, WorldH uint16
	EntityID       uint32
	SpawnX, SpawnY uint16
}

type ChunkSync struct {
	CX, CY uint16
	Seq    uint32
	FG, BG [world.ChunkArea]uint8
}

type HumanoidSync struct {
	Entities map[uint32]world.Humanoid
}

type Start struct{}

// ServerPing answers a client Ping.
type ServerPing struct{}

func (*Connect) Opcode() Opcode      { return OpConnect }
func (*Join) Opcode() Opcode         { return OpJoin }
func (*JoinComplete) Opcode() Opcode { return OpJoinComplete }
func (*SyncPlayer) Opcode() Opcode   { return OpSyncPlayer }
func (*RequestChunk) Opcode() Opcode { return OpRequestChunk }
func (*Ping) Opcode() Opcode         { return OpClientPing }
func (*EditTile) Opcode() Opcode     { return OpEditTile }

func (*ConnectAccept) Opcode() Opcode { return OpConnectAccept }
func (*ConnectReject) Opcode() Opcode { return OpConnectReject }
func (*JoinAccept) Opcode() Opcode    { return OpJoinAccept }
func (*ChunkSync) Opcode() Opcode     { return OpChunkSync }
func (*HumanoidSync) Opcode() Opcode  { return OpHumanoidSync }
func (*Start) Opcode() Opcode         { return OpStart }
func (*ServerPing) Opcode() Opcode    { return OpServerPing }

func newClientMessage(op Opcode) ClientMessage {
	switch op {
	case OpConnect:
		return &Connect{}
	case OpJoin:
		return &Join{}
	case OpJoinComplete:
		return &JoinComplete{}
	case OpSyncPlayer:
		return &SyncPlayer{}
	case OpRequestChunk:
		return &RequestChunk{}
	case OpClientPing:
		return &Ping{}
	case OpEditTile:
		return &EditTile{}
	}
	return nil
}

func newServerMessage(op Opcode) ServerMessage {
	switch op {
	case OpConnectAccept:
		return &ConnectAccept{}
	case OpConnectReject:
		return &ConnectReject{}
	case OpJoinAccept:
		return &JoinAccept{}
	case OpChunkSync:
		return &ChunkSync{}
	case OpHumanoidSync:
		return &HumanoidSync{}
	case OpStart:
		return &Start{}
	case OpServerPing:
		return &ServerPing{}
	}
	return nil
}
