package source

import (
	"context"

	"github.com/wegman-software/geojson2mvt-go/internal/metrics"
	"github.com/wegman-software/geojson2mvt-go/internal/tile"
	"github.com/wegman-software/geojson2mvt-go/internal/vtile"
)

// TileParams addresses a tile request. UID identifies the requesting tile
// for the reload path and may be empty.
type TileParams struct {
	UID    string
	TileID vtile.TileID
}

// Reloader re-processes a tile that was already produced since the last
// load.
type Reloader interface {
	ReloadTile(ctx context.Context, src *Source, params TileParams) (*tile.Result, error)
}

// CachedReloader answers reloads with the encoding already produced for the
// live index.
type CachedReloader struct{}

// ReloadTile implements Reloader.
func (CachedReloader) ReloadTile(_ context.Context, src *Source, params TileParams) (*tile.Result, error) {
	res, _, err := src.extract(params.TileID)
	return res, err
}

// LoadTile extracts a tile from the live index. A nil result means there is
// no index yet or nothing at that address. Non-empty tiles mark params.UID
// as loaded until the next successful load.
func (s *Source) LoadTile(params TileParams) (*tile.Result, error) {
	res, gen, err := s.extract(params.TileID)
	if err != nil {
		metrics.TilesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if res == nil {
		metrics.TilesTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}
	metrics.TilesTotal.WithLabelValues("ok").Inc()

	if params.UID != "" {
		s.mu.Lock()
		if s.generation == gen {
			s.loaded[params.UID] = struct{}{}
		}
		s.mu.Unlock()
	}
	return res, nil
}

// ReloadTile hands tiles already loaded since the last load to the
// Reloader and loads any other tile afresh.
func (s *Source) ReloadTile(ctx context.Context, params TileParams) (*tile.Result, error) {
	s.mu.Lock()
	_, loaded := s.loaded[params.UID]
	s.mu.Unlock()

	if loaded {
		metrics.TilesTotal.WithLabelValues("reloaded").Inc()
		return s.reloader.ReloadTile(ctx, s, params)
	}
	return s.LoadTile(params)
}

// RemoveTile forgets that uid was loaded.
func (s *Source) RemoveTile(uid string) {
	s.mu.Lock()
	delete(s.loaded, uid)
	s.mu.Unlock()
}

func (s *Source) extract(id vtile.TileID) (*tile.Result, uint64, error) {
	s.mu.Lock()
	ext, gen := s.extractor, s.generation
	s.mu.Unlock()

	res, err := ext.Extract(id)
	return res, gen, err
}
