package event

import "github.com/tilesim/tilesim/internal/core/ecs"

// PeerDisconnected fires after a connection has been dropped, whether by
// timeout, explicit disconnect or repeated protocol violations.
type PeerDisconnected struct {
	Addr     string
	EntityID ecs.EntityID
	Reason   string
}

// ChunkEdited fires when an authoritative tile edit bumped a chunk's seq.
type ChunkEdited struct {
	CX, CY uint16
	Seq    uint32
}

type HumanoidSpawned struct {
	EntityID ecs.EntityID
	Player   bool
}
