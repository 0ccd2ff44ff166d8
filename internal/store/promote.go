package store

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// NormalizeID turns an identifier into a comparable map key. Numbers of any
// Go type collapse to float64 so 1 and 1.0 address the same feature, while
// the string "1" stays distinct. Null and composite values are rejected.
func NormalizeID(id interface{}) (interface{}, bool) {
	switch v := id.(type) {
	case nil:
		return nil, false
	case string, bool:
		return v, true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return nil, false
}

// FeatureID resolves the identifier of f: the promoteID property when set,
// the native feature id otherwise.
func FeatureID(f *geojson.Feature, promoteID string) (interface{}, bool) {
	if f == nil {
		return nil, false
	}
	if promoteID != "" {
		if f.Properties == nil {
			return nil, false
		}
		return NormalizeID(f.Properties[promoteID])
	}
	return NormalizeID(f.ID)
}

// Promotion is the outcome of identifier promotion over a collection: either
// Promotable or NotPromotable.
type Promotion interface {
	promotion()
}

// Promotable carries a store built from a collection whose features all have
// unique identifiers.
type Promotable struct {
	Store *Store
}

// NotPromotable explains why a collection cannot back a store.
type NotPromotable struct {
	Reason string
}

func (Promotable) promotion()    {}
func (NotPromotable) promotion() {}

// Promote builds a store from fc when every feature resolves a unique
// identifier under promoteID.
func Promote(fc *geojson.FeatureCollection, promoteID string) Promotion {
	if fc == nil {
		return NotPromotable{Reason: "no feature collection"}
	}

	s := New(promoteID)
	for i, f := range fc.Features {
		id, ok := FeatureID(f, promoteID)
		if !ok {
			return NotPromotable{Reason: fmt.Sprintf("feature %d has no usable identifier", i)}
		}
		if _, dup := s.Get(id); dup {
			return NotPromotable{Reason: fmt.Sprintf("duplicate identifier %v", id)}
		}
		s.Set(id, f)
	}
	return Promotable{Store: s}
}
