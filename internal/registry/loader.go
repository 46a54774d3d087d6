package registry

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/intersection-view/db"
	"github.com/thatsimonsguy/intersection-view/internal/model"
)

// Lister is satisfied by *Client.
type Lister interface {
	ListRoads(ctx context.Context) ([]model.Road, error)
}

// Loader reads through to the registry and keeps the last good listing in a local snapshot,
// which it serves while the registry is unreachable.
type Loader struct {
	source Lister
	cache  *sql.DB
}

func NewLoader(source Lister, cache *sql.DB) *Loader {
	return &Loader{source: source, cache: cache}
}

func (l *Loader) ListRoads(ctx context.Context) ([]model.Road, error) {
	roads, err := l.source.ListRoads(ctx)
	if err == nil {
		if l.cache != nil {
			if serr := db.ReplaceRoads(l.cache, roads); serr != nil {
				log.Warn().Err(serr).Msg("Failed to save registry snapshot")
			}
		}
		return roads, nil
	}

	if l.cache == nil {
		return nil, err
	}
	cached, cerr := db.GetRoads(l.cache)
	if cerr != nil || len(cached) == 0 {
		return nil, err
	}

	savedAt, _ := db.GetSnapshotTime(l.cache)
	log.Warn().Err(err).Time("snapshot_at", savedAt).Int("roads", len(cached)).Msg("Registry unreachable, serving snapshot")
	return cached, nil
}

func (l *Loader) GetRoad(ctx context.Context, roadID int) (model.Road, error) {
	roads, err := l.ListRoads(ctx)
	if err != nil {
		return model.Road{}, err
	}
	return find(roads, roadID)
}
