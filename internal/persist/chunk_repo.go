package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tilesim/tilesim/internal/world"
)

// ChunkRow is one persisted chunk: its coordinates, seq and both layers.
type ChunkRow struct {
	CX, CY uint16
	Seq    uint32
	FG, BG [world.ChunkArea]uint8
}

// RowFromGrid snapshots chunk c of g.
func RowFromGrid(g *world.Grid, c world.ChunkCoord) ChunkRow {
	fg, bg, seq := g.ExtractChunk(c)
	return ChunkRow{CX: c.X, CY: c.Y, Seq: seq, FG: fg, BG: bg}
}

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// SaveChunks upserts rows in one batch round trip. Rows whose stored seq is
// already newer are left alone.
func (r *ChunkRepo) SaveChunks(ctx context.Context, rows []ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(
			`INSERT INTO chunks (cx, cy, seq, fg, bg, updated_at)
			 VALUES ($1, $2, $3, $4, $5, now())
			 ON CONFLICT (cx, cy) DO UPDATE
			 SET seq = EXCLUDED.seq, fg = EXCLUDED.fg, bg = EXCLUDED.bg, updated_at = now()
			 WHERE chunks.seq <= EXCLUDED.seq`,
			int32(row.CX), int32(row.CY), int64(row.Seq), row.FG[:], row.BG[:],
		)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save chunk (%d,%d): %w", rows[i].CX, rows[i].CY, err)
		}
	}
	return br.Close()
}

// LoadChunks returns every stored chunk.
func (r *ChunkRepo) LoadChunks(ctx context.Context) ([]ChunkRow, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT cx, cy, seq, fg, bg FROM chunks ORDER BY cy, cx`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ChunkRow
	for rows.Next() {
		var (
			cx, cy int32
			seq    int64
			fg, bg []byte
		)
		if err := rows.Scan(&cx, &cy, &seq, &fg, &bg); err != nil {
			return nil, err
		}
		if len(fg) != world.ChunkArea || len(bg) != world.ChunkArea {
			return nil, fmt.Errorf("chunk (%d,%d): layer sizes %d/%d", cx, cy, len(fg), len(bg))
		}
		row := ChunkRow{CX: uint16(cx), CY: uint16(cy), Seq: uint32(seq)}
		copy(row.FG[:], fg)
		copy(row.BG[:], bg)
		result = append(result, row)
	}
	return result, rows.Err()
}

// Restore writes rows into g, skipping chunks outside it.
func Restore(g *world.Grid, rows []ChunkRow) int {
	n := 0
	for i := range rows {
		row := &rows[i]
		c := world.ChunkCoord{X: row.CX, Y: row.CY}
		if !g.ChunkInBounds(c) {
			continue
		}
		g.LoadChunk(c, row.Seq, &row.FG, &row.BG)
		n++
	}
	return n
}
