package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// WorldMeta describes the persisted world. A server refuses to load chunks
// saved for a world of different dimensions.
type WorldMeta struct {
	Width, Height int
	Seed          int64
	CreatedAt     time.Time
	SavedAt       time.Time
}

type WorldRepo struct {
	db *DB
}

func NewWorldRepo(db *DB) *WorldRepo {
	return &WorldRepo{db: db}
}

// Load returns the stored meta, or nil when no world has been saved yet.
func (r *WorldRepo) Load(ctx context.Context) (*WorldMeta, error) {
	var m WorldMeta
	var w, h int32
	err := r.db.Pool.QueryRow(ctx,
		`SELECT width, height, seed, created_at, saved_at FROM world_meta WHERE id = 1`,
	).Scan(&w, &h, &m.Seed, &m.CreatedAt, &m.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Width, m.Height = int(w), int(h)
	return &m, nil
}

// Save creates the meta row or refreshes its saved_at.
func (r *WorldRepo) Save(ctx context.Context, m WorldMeta) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO world_meta (id, width, height, seed) VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET saved_at = now()`,
		int32(m.Width), int32(m.Height), m.Seed,
	)
	return err
}
