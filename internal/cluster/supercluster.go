package cluster

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/wegman-software/geojson2mvt-go/internal/vtile"
)

// ErrClusterNotFound is returned for ids that name no cluster of the index.
var ErrClusterNotFound = errors.New("no cluster with the specified id")

// Cluster property names added to every cluster feature.
const (
	PropCluster         = "cluster"
	PropClusterID       = "cluster_id"
	PropPointCount      = "point_count"
	PropPointCountAbbrv = "point_count_abbreviated"
)

const unprocessed = math.MaxInt

// node is a point or a cluster at one zoom level, in unit mercator space.
type node struct {
	x, y      float64
	zoom      int // zoom at which the node was last visited
	id        int // input index for points, cluster id otherwise
	parent    int
	numPoints int
	propIndex int
}

type level struct {
	nodes []node
	tree  *kdTree
}

func newLevel(nodes []node, nodeSize int) *level {
	xs := make([]float64, len(nodes))
	ys := make([]float64, len(nodes))
	for i, n := range nodes {
		xs[i], ys[i] = n.x, n.y
	}
	return &level{nodes: nodes, tree: newKDTree(xs, ys, nodeSize)}
}

// Index groups point features per zoom level. Only features with Point
// geometry take part.
type Index struct {
	opts         Options
	points       []*geojson.Feature
	levels       []*level
	clusterProps []map[string]interface{}
	skipped      int
}

// New clusters the point features of fc from MaxZoom down to MinZoom.
func New(fc *geojson.FeatureCollection, opts Options) (*Index, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster options: %w", err)
	}

	idx := &Index{
		opts:   opts,
		levels: make([]*level, opts.MaxZoom+2),
	}

	var nodes []node
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			idx.skipped++
			continue
		}
		nodes = append(nodes, node{
			x:         vtile.LngX(p[0]),
			y:         vtile.LatY(p[1]),
			zoom:      unprocessed,
			id:        len(idx.points),
			parent:    -1,
			numPoints: 1,
			propIndex: -1,
		})
		idx.points = append(idx.points, f)
	}

	lvl := newLevel(nodes, opts.NodeSize)
	idx.levels[opts.MaxZoom+1] = lvl
	for z := opts.MaxZoom; z >= opts.MinZoom; z-- {
		lvl = newLevel(idx.cluster(lvl, z), opts.NodeSize)
		idx.levels[z] = lvl
	}

	return idx, nil
}

// Len returns the number of clustered input points.
func (idx *Index) Len() int {
	return len(idx.points)
}

// Skipped returns the number of input features without Point geometry.
func (idx *Index) Skipped() int {
	return idx.skipped
}

func (idx *Index) cluster(lvl *level, zoom int) []node {
	r := idx.opts.Radius / (idx.opts.Extent * math.Pow(2, float64(zoom)))
	agg := idx.opts.Aggregation
	nodes := lvl.nodes
	var next []node

	for i := range nodes {
		p := &nodes[i]
		if p.zoom <= zoom {
			continue
		}
		p.zoom = zoom

		neighbors := lvl.tree.within(p.x, p.y, r)

		numOrigin := p.numPoints
		numPoints := numOrigin
		for _, nb := range neighbors {
			if nodes[nb].zoom > zoom {
				numPoints += nodes[nb].numPoints
			}
		}

		if numPoints > numOrigin && numPoints >= idx.opts.MinPoints {
			wx := p.x * float64(numOrigin)
			wy := p.y * float64(numOrigin)
			id := (i << 5) + (zoom + 1) + len(idx.points)

			var props map[string]interface{}
			propIndex := -1

			for _, nb := range neighbors {
				k := &nodes[nb]
				if k.zoom <= zoom {
					continue
				}
				k.zoom = zoom
				wx += k.x * float64(k.numPoints)
				wy += k.y * float64(k.numPoints)
				k.parent = id

				if agg != nil {
					if props == nil {
						props = idx.mapProps(p, true)
						propIndex = len(idx.clusterProps)
						idx.clusterProps = append(idx.clusterProps, props)
					}
					agg.Reduce(props, idx.mapProps(k, false))
				}
			}

			p.parent = id
			next = append(next, node{
				x:         wx / float64(numPoints),
				y:         wy / float64(numPoints),
				zoom:      unprocessed,
				id:        id,
				parent:    -1,
				numPoints: numPoints,
				propIndex: propIndex,
			})
			continue
		}

		next = append(next, *p)
		if numPoints > 1 {
			for _, nb := range neighbors {
				k := &nodes[nb]
				if k.zoom <= zoom {
					continue
				}
				k.zoom = zoom
				next = append(next, *k)
			}
		}
	}
	return next
}

// mapProps returns the properties n contributes to a reduction. clone asks for
// a copy that may be mutated.
func (idx *Index) mapProps(n *node, clone bool) map[string]interface{} {
	if n.numPoints > 1 {
		props := idx.clusterProps[n.propIndex]
		if clone {
			return copyProps(props)
		}
		return props
	}
	mapped := idx.opts.Aggregation.Map(idx.points[n.id].Properties)
	if clone {
		return copyProps(mapped)
	}
	return mapped
}

func copyProps(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props)+4)
	for k, v := range props {
		out[k] = v
	}
	return out
}

func (idx *Index) limitZoom(z int) int {
	if z < idx.opts.MinZoom {
		return idx.opts.MinZoom
	}
	if z > idx.opts.MaxZoom+1 {
		return idx.opts.MaxZoom + 1
	}
	return z
}

// GetTile returns the points and clusters of tile z/x/y in pixel
// coordinates, or nil when the tile is empty.
func (idx *Index) GetTile(z, x, y uint32) *vtile.Tile {
	if z > vtile.MaxZoom {
		return nil
	}
	lvl := idx.levels[idx.limitZoom(int(z))]
	z2 := float64(uint32(1) << z)
	fx, fy := float64(x), float64(y)
	p := idx.opts.Radius / idx.opts.Extent
	top := (fy - p) / z2
	bottom := (fy + 1 + p) / z2

	tile := &vtile.Tile{ID: vtile.TileID{Z: z, X: x, Y: y}}
	idx.addTileFeatures(tile, lvl, lvl.tree.rangeQuery((fx-p)/z2, top, (fx+1+p)/z2, bottom), fx, fy, z2)

	if x == 0 {
		idx.addTileFeatures(tile, lvl, lvl.tree.rangeQuery(1-p/z2, top, 1, bottom), z2, fy, z2)
	}
	if fx == z2-1 {
		idx.addTileFeatures(tile, lvl, lvl.tree.rangeQuery(0, top, p/z2, bottom), -1, fy, z2)
	}

	if len(tile.Features) == 0 {
		return nil
	}
	return tile
}

func (idx *Index) addTileFeatures(tile *vtile.Tile, lvl *level, ids []int, tx, ty, z2 float64) {
	for _, i := range ids {
		n := &lvl.nodes[i]

		var (
			props  map[string]interface{}
			px, py float64
			id     interface{}
		)
		if n.numPoints > 1 {
			props = idx.clusterProperties(n)
			px, py = n.x, n.y
			id = n.id
		} else {
			f := idx.points[n.id]
			pt := f.Geometry.(orb.Point)
			props = f.Properties
			px, py = vtile.LngX(pt[0]), vtile.LatY(pt[1])
			id = f.ID
			if idx.opts.GenerateID {
				id = n.id
			}
		}

		tile.Features = append(tile.Features, &vtile.Feature{
			ID:         id,
			Geometry:   vtile.ToTilePixels(orb.Point{px, py}, z2, tx, ty, idx.opts.Extent),
			Properties: props,
		})
	}
}

func (idx *Index) clusterProperties(n *node) map[string]interface{} {
	var props map[string]interface{}
	if n.propIndex >= 0 {
		props = copyProps(idx.clusterProps[n.propIndex])
	} else {
		props = make(map[string]interface{}, 4)
	}
	props[PropCluster] = true
	props[PropClusterID] = n.id
	props[PropPointCount] = n.numPoints
	props[PropPointCountAbbrv] = abbreviate(n.numPoints)
	return props
}

// abbreviate renders counts of a thousand and more as "1.2k" or "15k".
func abbreviate(count int) interface{} {
	switch {
	case count >= 10000:
		return strconv.Itoa(int(math.Round(float64(count)/1000))) + "k"
	case count >= 1000:
		v := math.Round(float64(count)/100) / 10
		return strconv.FormatFloat(v, 'f', -1, 64) + "k"
	}
	return count
}

func (idx *Index) clusterFeature(n *node) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{vtile.XLng(n.x), vtile.YLat(n.y)})
	f.ID = n.id
	f.Properties = idx.clusterProperties(n)
	return f
}

func (idx *Index) originID(clusterID int) int {
	return (clusterID - len(idx.points)) >> 5
}

func (idx *Index) originZoom(clusterID int) int {
	return (clusterID - len(idx.points)) % 32
}

// Children returns the points and clusters one zoom level below clusterID.
func (idx *Index) Children(clusterID int) ([]*geojson.Feature, error) {
	if clusterID < len(idx.points) {
		return nil, fmt.Errorf("%w: %d", ErrClusterNotFound, clusterID)
	}
	originID := idx.originID(clusterID)
	originZoom := idx.originZoom(clusterID)
	if originZoom < 1 || originZoom >= len(idx.levels) || idx.levels[originZoom] == nil {
		return nil, fmt.Errorf("%w: %d", ErrClusterNotFound, clusterID)
	}

	lvl := idx.levels[originZoom]
	if originID >= len(lvl.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrClusterNotFound, clusterID)
	}
	origin := lvl.nodes[originID]
	r := idx.opts.Radius / (idx.opts.Extent * math.Pow(2, float64(originZoom-1)))

	var children []*geojson.Feature
	for _, i := range lvl.tree.within(origin.x, origin.y, r) {
		n := &lvl.nodes[i]
		if n.parent != clusterID {
			continue
		}
		if n.numPoints > 1 {
			children = append(children, idx.clusterFeature(n))
		} else {
			children = append(children, idx.points[n.id])
		}
	}

	if len(children) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrClusterNotFound, clusterID)
	}
	return children, nil
}

// Leaves returns the input points under clusterID, skipping offset of them
// and returning at most limit. A limit of zero or less returns all.
func (idx *Index) Leaves(clusterID, limit, offset int) ([]*geojson.Feature, error) {
	leaves := []*geojson.Feature{}
	if _, err := idx.appendLeaves(&leaves, clusterID, limit, offset, 0); err != nil {
		return nil, err
	}
	return leaves, nil
}

func (idx *Index) appendLeaves(result *[]*geojson.Feature, clusterID, limit, offset, skipped int) (int, error) {
	children, err := idx.Children(clusterID)
	if err != nil {
		return skipped, err
	}

	for _, child := range children {
		if id, count, ok := clusterInfo(child); ok {
			if skipped+count <= offset {
				skipped += count
			} else {
				skipped, err = idx.appendLeaves(result, id, limit, offset, skipped)
				if err != nil {
					return skipped, err
				}
			}
		} else if skipped < offset {
			skipped++
		} else {
			*result = append(*result, child)
		}
		if limit > 0 && len(*result) == limit {
			break
		}
	}
	return skipped, nil
}

// clusterInfo reads the id and size of a cluster feature built by this index.
func clusterInfo(f *geojson.Feature) (int, int, bool) {
	if f.Properties == nil || f.Properties[PropCluster] != true {
		return 0, 0, false
	}
	id, ok := f.Properties[PropClusterID].(int)
	if !ok {
		return 0, 0, false
	}
	count, ok := f.Properties[PropPointCount].(int)
	if !ok {
		return 0, 0, false
	}
	return id, count, true
}

// ExpansionZoom returns the zoom at which clusterID splits into more than one
// child.
func (idx *Index) ExpansionZoom(clusterID int) (int, error) {
	expansionZoom := idx.originZoom(clusterID) - 1
	for expansionZoom <= idx.opts.MaxZoom {
		children, err := idx.Children(clusterID)
		if err != nil {
			return 0, err
		}
		expansionZoom++
		if len(children) != 1 {
			break
		}
		id, _, ok := clusterInfo(children[0])
		if !ok {
			break
		}
		clusterID = id
	}
	return expansionZoom, nil
}
