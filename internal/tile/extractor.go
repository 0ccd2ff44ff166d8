package tile

import (
	"fmt"

	"github.com/paulmach/orb/encoding/mvt"

	"github.com/wegman-software/geojson2mvt-go/internal/index"
	"github.com/wegman-software/geojson2mvt-go/internal/vtile"
)

// Result is an extracted tile: the layer handed to the encoder and its
// encoded bytes.
type Result struct {
	Layer   *mvt.Layer
	RawData []byte
}

// Extractor encodes tiles of one built index. Encoding is deterministic, so
// repeated requests return identical bytes. Safe for concurrent use.
type Extractor struct {
	idx    index.Index
	extent uint32
}

// NewExtractor returns an extractor over idx. idx may be nil, in which case
// every tile is empty.
func NewExtractor(idx index.Index, extent uint32) *Extractor {
	return &Extractor{idx: idx, extent: extent}
}

// Extract returns the tile at id, or nil when there is no index or the index
// holds nothing there.
func (e *Extractor) Extract(id vtile.TileID) (*Result, error) {
	if e == nil || e.idx == nil {
		return nil, nil
	}

	t := e.idx.GetTile(id.Z, id.X, id.Y)
	if t == nil {
		return nil, nil
	}

	layer := NewLayer(t.Features, e.extent)
	data, err := mvt.Marshal(mvt.Layers{layer})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tile %s: %w", id, err)
	}

	return &Result{Layer: layer, RawData: Tight(data)}, nil
}

// Tight returns b itself when it spans its whole backing array and a copy
// otherwise, so receivers may assume offset zero and len == cap.
func Tight(b []byte) []byte {
	if len(b) == cap(b) {
		return b
	}
	return clone(b)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
