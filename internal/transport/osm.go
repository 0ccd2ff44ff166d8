package transport

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmgeojson"
)

// IsOSM reports whether data looks like an OSM XML document.
func IsOSM(data []byte) bool {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("<?xml")) {
		if i := bytes.Index(data, []byte("?>")); i >= 0 {
			data = bytes.TrimSpace(data[i+2:])
		}
	}
	return bytes.HasPrefix(data, []byte("<osm"))
}

// ConvertOSM turns an OSM XML document into a GeoJSON feature collection.
func ConvertOSM(data []byte) ([]byte, error) {
	o := &osm.OSM{}
	if err := xml.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("failed to parse osm xml: %w", err)
	}

	fc, err := osmgeojson.Convert(o)
	if err != nil {
		return nil, fmt.Errorf("failed to convert osm to geojson: %w", err)
	}

	out, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode geojson: %w", err)
	}
	return out, nil
}
