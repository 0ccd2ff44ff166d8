package tile

import (
	"encoding/json"

	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"github.com/wegman-software/geojson2mvt-go/internal/vtile"
)

// LayerName is the single layer every extracted tile carries.
const LayerName = "_geojsonTileLayer"

// NewLayer wraps tile features in the layer shape the encoder consumes.
// Geometries are already in pixel coordinates of extent.
func NewLayer(features []*vtile.Feature, extent uint32) *mvt.Layer {
	layer := &mvt.Layer{
		Name:     LayerName,
		Version:  2,
		Extent:   extent,
		Features: make([]*geojson.Feature, 0, len(features)),
	}
	for _, f := range features {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = f.ID
		gf.Properties = encodable(f.Properties)
		layer.Features = append(layer.Features, gf)
	}
	return layer
}

// encodable keeps scalar values and serializes nested ones to JSON text,
// since tile values can only be scalars. Nulls are dropped.
func encodable(props map[string]interface{}) geojson.Properties {
	out := make(geojson.Properties, len(props))
	for k, v := range props {
		switch x := v.(type) {
		case nil:
			continue
		case string, bool, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			out[k] = x
		default:
			b, err := json.Marshal(x)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
