package store

import (
	"sort"

	"github.com/paulmach/orb/geojson"
)

// Store maps feature identifiers to features so diffs can be applied without
// reparsing the whole collection. Iteration follows first insertion order.
type Store struct {
	promoteID string
	seq       uint64
	entries   map[interface{}]*entry
}

type entry struct {
	seq     uint64
	feature *geojson.Feature
}

// New returns an empty store resolving identifiers with promoteID.
func New(promoteID string) *Store {
	return &Store{
		promoteID: promoteID,
		entries:   make(map[interface{}]*entry),
	}
}

// PromoteID returns the property used as identifier, empty for the native id.
func (s *Store) PromoteID() string {
	return s.promoteID
}

// Len returns the number of stored features.
func (s *Store) Len() int {
	return len(s.entries)
}

// Get returns the feature stored under id.
func (s *Store) Get(id interface{}) (*geojson.Feature, bool) {
	key, ok := NormalizeID(id)
	if !ok {
		return nil, false
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.feature, true
}

// Set stores f under id, keeping the position of an existing entry.
func (s *Store) Set(id interface{}, f *geojson.Feature) bool {
	key, ok := NormalizeID(id)
	if !ok {
		return false
	}
	if e, exists := s.entries[key]; exists {
		e.feature = f
		return true
	}
	s.seq++
	s.entries[key] = &entry{seq: s.seq, feature: f}
	return true
}

// Delete removes id from the store.
func (s *Store) Delete(id interface{}) bool {
	key, ok := NormalizeID(id)
	if !ok {
		return false
	}
	if _, exists := s.entries[key]; !exists {
		return false
	}
	delete(s.entries, key)
	return true
}

// Clear removes every feature.
func (s *Store) Clear() {
	s.entries = make(map[interface{}]*entry)
}

// Features returns the stored features in insertion order.
func (s *Store) Features() []*geojson.Feature {
	list := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	features := make([]*geojson.Feature, len(list))
	for i, e := range list {
		features[i] = e.feature
	}
	return features
}

// FeatureCollection materializes the current values as a new collection.
func (s *Store) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = s.Features()
	return fc
}

// Apply mutates the store with d.
func (s *Store) Apply(d *Diff) Stats {
	var stats Stats
	if d == nil {
		return stats
	}

	if d.RemoveAll {
		s.Clear()
		stats.Cleared = true
	}

	for _, id := range d.Remove {
		if s.Delete(id) {
			stats.Removed++
		}
	}

	for _, f := range d.Add {
		id, ok := FeatureID(f, s.promoteID)
		if !ok {
			stats.Skipped++
			continue
		}
		s.Set(id, f)
		stats.Added++
	}

	for i := range d.Update {
		if s.applyUpdate(&d.Update[i]) {
			stats.Updated++
		} else {
			stats.Skipped++
		}
	}

	return stats
}

func (s *Store) applyUpdate(u *FeatureUpdate) bool {
	f, ok := s.Get(u.ID)
	if !ok {
		return false
	}

	// Stored features may be shared with an index built earlier, so they are
	// replaced rather than edited.
	mergeProps := u.modifiesProperties()
	if u.NewGeometry != nil || u.RemoveAllProperties || mergeProps {
		clone := *f
		f = &clone
		if mergeProps {
			f.Properties = f.Properties.Clone()
		}
		s.Set(u.ID, f)
	}

	if u.NewGeometry != nil {
		f.Geometry = u.NewGeometry.Geometry()
	}

	if u.RemoveAllProperties {
		f.Properties = geojson.Properties{}
	} else {
		for _, key := range u.RemoveProperties {
			delete(f.Properties, key)
		}
	}

	if len(u.AddOrUpdateProperties) > 0 && f.Properties == nil {
		f.Properties = geojson.Properties{}
	}
	for _, p := range u.AddOrUpdateProperties {
		f.Properties[p.Key] = p.Value
	}

	return true
}
