// Package cache keeps encoded-ready chunk snapshots so repeated RequestChunk
// resends do not copy the grid every time.
package cache

import (
	"github.com/dgraph-io/ristretto/v2"
	"github.com/tilesim/tilesim/internal/config"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/world"
)

// ChunkCache maps (cx, cy, seq) to a built ChunkSync. A chunk edit bumps its
// seq, so stale snapshots are never looked up again and simply age out.
type ChunkCache struct {
	c *ristretto.Cache[uint64, *protocol.ChunkSync]
}

func New(cfg config.CacheConfig) (*ChunkCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[uint64, *protocol.ChunkSync]{
		NumCounters: cfg.ChunkCounters,
		MaxCost:     cfg.ChunkMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ChunkCache{c: c}, nil
}

func key(c world.ChunkCoord, seq uint32) uint64 {
	return uint64(c.X)<<48 | uint64(c.Y)<<32 | uint64(seq)
}

// Get returns the snapshot for chunk c at seq, if cached.
func (cc *ChunkCache) Get(c world.ChunkCoord, seq uint32) (*protocol.ChunkSync, bool) {
	if cc == nil {
		return nil, false
	}
	return cc.c.Get(key(c, seq))
}

// Set stores a snapshot. Admission is asynchronous; Wait makes it visible.
func (cc *ChunkCache) Set(msg *protocol.ChunkSync) {
	if cc == nil {
		return
	}
	cc.c.Set(key(world.ChunkCoord{X: msg.CX, Y: msg.CY}, msg.Seq), msg, 1)
}

// Wait blocks until pending Sets are applied.
func (cc *ChunkCache) Wait() {
	if cc != nil {
		cc.c.Wait()
	}
}

// Build returns the ChunkSync for chunk c at its current seq, from cache when
// possible. The returned message is shared and must not be modified.
func (cc *ChunkCache) Build(g *world.Grid, c world.ChunkCoord) *protocol.ChunkSync {
	seq := g.ChunkSeq(c)
	if msg, ok := cc.Get(c, seq); ok {
		return msg
	}
	fg, bg, seq := g.ExtractChunk(c)
	msg := &protocol.ChunkSync{CX: c.X, CY: c.Y, Seq: seq, FG: fg, BG: bg}
	cc.Set(msg)
	return msg
}

// Close releases the cache's goroutines.
func (cc *ChunkCache) Close() {
	if cc != nil {
		cc.c.Close()
	}
}
