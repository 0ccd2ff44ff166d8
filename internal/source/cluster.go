package source

import (
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/wegman-software/geojson2mvt-go/internal/index"
	"github.com/wegman-software/geojson2mvt-go/internal/metrics"
)

func (s *Source) clusterIndex() (index.ClusterIndex, error) {
	s.mu.Lock()
	idx := s.idx
	s.mu.Unlock()

	ci, ok := idx.(index.ClusterIndex)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotClusterIndex, s.name)
	}
	return ci, nil
}

// ClusterExpansionZoom returns the zoom at which the cluster splits.
func (s *Source) ClusterExpansionZoom(clusterID int) (int, error) {
	metrics.ClusterQueriesTotal.WithLabelValues("expansion_zoom").Inc()
	ci, err := s.clusterIndex()
	if err != nil {
		return 0, err
	}
	return ci.ExpansionZoom(clusterID)
}

// ClusterChildren returns the clusters and points one zoom below the
// cluster.
func (s *Source) ClusterChildren(clusterID int) ([]*geojson.Feature, error) {
	metrics.ClusterQueriesTotal.WithLabelValues("children").Inc()
	ci, err := s.clusterIndex()
	if err != nil {
		return nil, err
	}
	return ci.Children(clusterID)
}

// ClusterLeaves returns up to limit original points of the cluster,
// skipping offset. A limit of zero or less returns all of them.
func (s *Source) ClusterLeaves(clusterID, limit, offset int) ([]*geojson.Feature, error) {
	metrics.ClusterQueriesTotal.WithLabelValues("leaves").Inc()
	ci, err := s.clusterIndex()
	if err != nil {
		return nil, err
	}
	return ci.Leaves(clusterID, limit, offset)
}
