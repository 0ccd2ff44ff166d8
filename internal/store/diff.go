package store

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"
)

// Diff is an incremental change set applied against a Store. Operations are
// applied in the order removeAll, remove, add, update.
type Diff struct {
	RemoveAll bool               `json:"removeAll,omitempty"`
	Remove    []interface{}      `json:"remove,omitempty"`
	Add       []*geojson.Feature `json:"add,omitempty"`
	Update    []FeatureUpdate    `json:"update,omitempty"`
}

// UnmarshalYAML decodes a diff written in YAML by way of its JSON form, so
// embedded GeoJSON features and geometries decode the same in both.
func (d *Diff) UnmarshalYAML(node *yaml.Node) error {
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode diff: %w", err)
	}
	return json.Unmarshal(b, d)
}

// FeatureUpdate patches one stored feature.
type FeatureUpdate struct {
	ID                    interface{}       `json:"id"`
	NewGeometry           *geojson.Geometry `json:"newGeometry,omitempty"`
	RemoveAllProperties   bool              `json:"removeAllProperties,omitempty"`
	RemoveProperties      []string          `json:"removeProperties,omitempty"`
	AddOrUpdateProperties []PropertyUpdate  `json:"addOrUpdateProperties,omitempty"`
}

// PropertyUpdate sets a single property value.
type PropertyUpdate struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Empty reports whether the diff carries no operation.
func (d *Diff) Empty() bool {
	return d == nil || (!d.RemoveAll && len(d.Remove) == 0 && len(d.Add) == 0 && len(d.Update) == 0)
}

// Stats counts the effect of applying a diff.
type Stats struct {
	Cleared bool
	Removed int
	Added   int
	Updated int
	Skipped int
}

// modifiesProperties reports whether the update merges into the existing
// property bag, which then has to be copied before it is touched.
func (u *FeatureUpdate) modifiesProperties() bool {
	return !u.RemoveAllProperties && (len(u.RemoveProperties) > 0 || len(u.AddOrUpdateProperties) > 0)
}
