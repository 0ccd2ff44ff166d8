package index

import (
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/wegman-software/geojson2mvt-go/internal/cluster"
	"github.com/wegman-software/geojson2mvt-go/internal/expression"
	"github.com/wegman-software/geojson2mvt-go/internal/logger"
	"github.com/wegman-software/geojson2mvt-go/internal/tileindex"
	"github.com/wegman-software/geojson2mvt-go/internal/vtile"
)

// Index serves tiles from a built spatial index.
type Index interface {
	GetTile(z, x, y uint32) *vtile.Tile
}

// ClusterIndex additionally answers cluster queries.
type ClusterIndex interface {
	Index
	ExpansionZoom(clusterID int) (int, error)
	Children(clusterID int) ([]*geojson.Feature, error)
	Leaves(clusterID, limit, offset int) ([]*geojson.Feature, error)
}

// Mode selects the index variant.
type Mode int

const (
	ModeTile Mode = iota
	ModeCluster
)

func (m Mode) String() string {
	if m == ModeCluster {
		return "cluster"
	}
	return "tile"
}

// Options configures a build.
type Options struct {
	Tile              tileindex.Options
	Cluster           cluster.Options
	ClusterProperties ClusterProperties

	// Expressions compiles cluster property terms. Nil selects the style
	// dialect. The caller closes it once Build returns.
	Expressions *expression.Adapter
}

// Build constructs the index for mode from fc. fc is expected to be filtered
// and winding-normalized already.
func Build(fc *geojson.FeatureCollection, mode Mode, opts Options) (Index, error) {
	log := logger.Get()
	start := time.Now()

	var (
		idx Index
		err error
	)
	switch mode {
	case ModeCluster:
		idx, err = buildCluster(fc, opts)
	default:
		idx, err = tileindex.New(fc, opts.Tile)
	}
	if err != nil {
		return nil, err
	}

	log.Debug("Index built",
		zap.String("mode", mode.String()),
		zap.Int("features", len(fc.Features)),
		zap.Duration("duration", time.Since(start)))
	return idx, nil
}

func buildCluster(fc *geojson.FeatureCollection, opts Options) (*cluster.Index, error) {
	clusterOpts := opts.Cluster
	if len(opts.ClusterProperties) > 0 {
		adapter := opts.Expressions
		if adapter == nil {
			adapter = expression.NewAdapter(nil)
			defer adapter.Close()
		}
		agg, err := newAggregation(opts.ClusterProperties, adapter)
		if err != nil {
			return nil, err
		}
		clusterOpts.Aggregation = agg
	}
	return cluster.New(fc, clusterOpts)
}

// aggregation evaluates compiled map and reduce tables in declaration order.
type aggregation struct {
	names  []string
	maps   map[string]*expression.Compiled
	reduce map[string]*expression.Compiled
}

func newAggregation(props ClusterProperties, adapter *expression.Adapter) (aggregation, error) {
	agg := aggregation{
		names:  props.Names(),
		maps:   make(map[string]*expression.Compiled, len(props)),
		reduce: make(map[string]*expression.Compiled, len(props)),
	}

	for _, p := range props {
		m, err := adapter.Compile(p.Map, expression.TypeValue)
		if err != nil {
			return aggregation{}, fmt.Errorf("failed to compile map expression of cluster property %q: %w", p.Name, err)
		}
		r, err := adapter.Compile(adapter.ReduceTerm(p.Reduce, p.Name), expression.TypeValue)
		if err != nil {
			return aggregation{}, fmt.Errorf("failed to compile reduce expression of cluster property %q: %w", p.Name, err)
		}
		agg.maps[p.Name] = m
		agg.reduce[p.Name] = r
	}
	return agg, nil
}

// Map implements cluster.Aggregation. Evaluation errors yield null.
func (a aggregation) Map(props map[string]interface{}) map[string]interface{} {
	feature := expression.PropertiesFeature(props)
	out := make(map[string]interface{}, len(a.names))
	for _, name := range a.names {
		v, err := a.maps[name].Evaluate(expression.Globals{}, feature)
		if err != nil {
			logger.Get().Debug("Cluster map expression failed", zap.String("property", name), zap.Error(err))
			v = nil
		}
		out[name] = v
	}
	return out
}

// Reduce implements cluster.Aggregation. Evaluation errors yield null.
func (a aggregation) Reduce(accumulated, incoming map[string]interface{}) {
	feature := expression.PropertiesFeature(incoming)
	for _, name := range a.names {
		v, err := a.reduce[name].Evaluate(expression.Globals{Accumulated: accumulated[name]}, feature)
		if err != nil {
			logger.Get().Debug("Cluster reduce expression failed", zap.String("property", name), zap.Error(err))
			v = nil
		}
		accumulated[name] = v
	}
}
