package cluster

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"
)

type sumCount struct{}

func (sumCount) Map(props map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"count": props["count"]}
}

func (sumCount) Reduce(acc, in map[string]interface{}) {
	acc["count"] = acc["count"].(float64) + in["count"].(float64)
}

func points(coords ...orb.Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, c := range coords {
		f := geojson.NewFeature(c)
		f.ID = float64(i + 1)
		f.Properties = geojson.Properties{"count": 1.0, "n": float64(i)}
		fc.Append(f)
	}
	return fc
}

func rootCluster(t *testing.T, idx *Index) map[string]interface{} {
	t.Helper()
	tile := idx.GetTile(0, 0, 0)
	require.NotNil(t, tile)
	for _, f := range tile.Features {
		if f.Properties[PropCluster] == true {
			return f.Properties
		}
	}
	t.Fatal("no cluster in root tile")
	return nil
}

func TestClusterAggregation(t *testing.T) {
	opts := DefaultOptions()
	opts.Aggregation = sumCount{}
	idx, err := New(points(orb.Point{0, 0}, orb.Point{0.0001, 0.0001}), opts)
	require.NoError(t, err)

	tile := idx.GetTile(0, 0, 0)
	require.NotNil(t, tile)
	require.Len(t, tile.Features, 1)

	props := tile.Features[0].Properties
	require.Equal(t, true, props[PropCluster])
	require.Equal(t, 2, props[PropPointCount])
	require.Equal(t, 2, props[PropPointCountAbbrv])
	require.Equal(t, 2.0, props["count"])
	require.Equal(t, tile.Features[0].ID, props[PropClusterID])

	// The input properties are never modified by the reduction.
	require.Equal(t, 1.0, idx.points[0].Properties["count"])
}

func TestClusterWithoutAggregation(t *testing.T) {
	idx, err := New(points(orb.Point{10, 10}, orb.Point{10.001, 10}, orb.Point{10, 10.001}), DefaultOptions())
	require.NoError(t, err)

	props := rootCluster(t, idx)
	require.Equal(t, 3, props[PropPointCount])
	_, hasCount := props["count"]
	require.False(t, hasCount)
}

func TestFarPointsStayApart(t *testing.T) {
	idx, err := New(points(orb.Point{0, 0}, orb.Point{100, 50}), DefaultOptions())
	require.NoError(t, err)

	tile := idx.GetTile(0, 0, 0)
	require.NotNil(t, tile)
	require.Len(t, tile.Features, 2)
	for _, f := range tile.Features {
		require.Nil(t, f.Properties[PropCluster])
	}
}

func TestChildrenLeavesExpansion(t *testing.T) {
	idx, err := New(points(
		orb.Point{0, 0},
		orb.Point{0.0001, 0},
		orb.Point{0, 0.0001},
		orb.Point{0.0001, 0.0001},
	), DefaultOptions())
	require.NoError(t, err)

	props := rootCluster(t, idx)
	id := props[PropClusterID].(int)
	require.Equal(t, 4, props[PropPointCount])

	children, err := idx.Children(id)
	require.NoError(t, err)
	total := 0
	for _, c := range children {
		if _, count, ok := clusterInfo(c); ok {
			total += count
		} else {
			total++
		}
	}
	require.Equal(t, 4, total)

	leaves, err := idx.Leaves(id, 10, 0)
	require.NoError(t, err)
	require.Len(t, leaves, 4)
	seen := map[interface{}]bool{}
	for _, l := range leaves {
		seen[l.ID] = true
	}
	require.Len(t, seen, 4)

	page, err := idx.Leaves(id, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, leaves[1].ID, page[0].ID)
	require.Equal(t, leaves[2].ID, page[1].ID)

	all, err := idx.Leaves(id, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)

	zoom, err := idx.ExpansionZoom(id)
	require.NoError(t, err)
	require.Greater(t, zoom, 0)
	require.LessOrEqual(t, zoom, idx.opts.MaxZoom+1)
}

func TestUnknownCluster(t *testing.T) {
	idx, err := New(points(orb.Point{0, 0}, orb.Point{0.0001, 0}), DefaultOptions())
	require.NoError(t, err)

	for _, id := range []int{0, 1, 99999, 2 + (5 << 5) + 31} {
		_, err := idx.Children(id)
		require.True(t, errors.Is(err, ErrClusterNotFound), "id %d: %v", id, err)
	}
	_, err = idx.ExpansionZoom(3)
	require.Error(t, err)
	_, err = idx.Leaves(1, 10, 0)
	require.Error(t, err)
}

func TestSkipsNonPoints(t *testing.T) {
	fc := points(orb.Point{0, 0})
	fc.Append(geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}}))
	idx, err := New(fc, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())
	require.Equal(t, 1, idx.Skipped())
}

func TestWrappedTiles(t *testing.T) {
	idx, err := New(points(orb.Point{179.5, 0}), DefaultOptions())
	require.NoError(t, err)

	tile := idx.GetTile(1, 0, 1)
	require.NotNil(t, tile, "point near the antimeridian should show in the buffer of x=0")
	p := tile.Features[0].Geometry.(orb.Point)
	require.Less(t, p[0], 0.0)
}

func TestAbbreviate(t *testing.T) {
	tests := []struct {
		count int
		want  interface{}
	}{
		{count: 2, want: 2},
		{count: 999, want: 999},
		{count: 1000, want: "1k"},
		{count: 1250, want: "1.3k"},
		{count: 9999, want: "10k"},
		{count: 15499, want: "15k"},
	}
	for _, tt := range tests {
		if got := abbreviate(tt.count); got != tt.want {
			t.Errorf("abbreviate(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	bad := DefaultOptions()
	bad.MinPoints = 1
	require.Error(t, bad.Validate())

	bad = DefaultOptions()
	bad.MinZoom = 5
	bad.MaxZoom = 3
	require.Error(t, bad.Validate())

	require.NoError(t, DefaultOptions().Validate())
}
