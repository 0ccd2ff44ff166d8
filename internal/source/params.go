package source

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/geojson2mvt-go/internal/cluster"
	"github.com/wegman-software/geojson2mvt-go/internal/index"
	"github.com/wegman-software/geojson2mvt-go/internal/store"
	"github.com/wegman-software/geojson2mvt-go/internal/tileindex"
	"github.com/wegman-software/geojson2mvt-go/internal/transport"
)

// LoadParams is one load request. At most one of Request, Data and DataDiff
// is used, in that order of precedence.
type LoadParams struct {
	Source   string             `json:"source" yaml:"source"`
	Request  *transport.Request `json:"request,omitempty" yaml:"request,omitempty"`
	Data     Literal            `json:"data,omitempty" yaml:"data,omitempty"`
	DataDiff *store.Diff        `json:"dataDiff,omitempty" yaml:"dataDiff,omitempty"`

	Cluster           bool                    `json:"cluster,omitempty" yaml:"cluster,omitempty"`
	TileOptions       tileindex.Options       `json:"geojsonVtOptions" yaml:"geojsonVtOptions"`
	ClusterOptions    cluster.Options         `json:"superclusterOptions" yaml:"superclusterOptions"`
	ClusterProperties index.ClusterProperties `json:"clusterProperties,omitempty" yaml:"clusterProperties,omitempty"`

	Filter            interface{} `json:"filter,omitempty" yaml:"filter,omitempty"`
	PromoteID         string      `json:"promoteId,omitempty" yaml:"promoteId,omitempty"`
	ExpressionDialect string      `json:"expressionDialect,omitempty" yaml:"expressionDialect,omitempty"`

	CollectResourceTiming bool `json:"collectResourceTiming,omitempty" yaml:"collectResourceTiming,omitempty"`
}

// DefaultLoadParams returns params for source with default tiling and
// clustering options.
func DefaultLoadParams(source string) LoadParams {
	return LoadParams{
		Source:         source,
		TileOptions:    tileindex.DefaultOptions(),
		ClusterOptions: cluster.DefaultOptions(),
	}
}

type plainParams LoadParams

// UnmarshalJSON decodes over the defaults so partial option objects keep
// the remaining defaults.
func (p *LoadParams) UnmarshalJSON(data []byte) error {
	tmp := plainParams(DefaultLoadParams(""))
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*p = LoadParams(tmp)
	return nil
}

// UnmarshalYAML decodes over the defaults like UnmarshalJSON.
func (p *LoadParams) UnmarshalYAML(node *yaml.Node) error {
	tmp := plainParams(DefaultLoadParams(""))
	if err := node.Decode(&tmp); err != nil {
		return err
	}
	*p = LoadParams(tmp)
	return nil
}

func (p LoadParams) mode() index.Mode {
	if p.Cluster {
		return index.ModeCluster
	}
	return index.ModeTile
}

func (p LoadParams) input() string {
	switch {
	case p.Request != nil:
		return "request"
	case p.Data != nil:
		return "data"
	case p.DataDiff != nil:
		return "diff"
	}
	return "none"
}

func (p LoadParams) tileOptions() tileindex.Options {
	if p.TileOptions == (tileindex.Options{}) {
		return tileindex.DefaultOptions()
	}
	return p.TileOptions
}

func (p LoadParams) clusterOptions() cluster.Options {
	if p.ClusterOptions == (cluster.Options{}) {
		return cluster.DefaultOptions()
	}
	return p.ClusterOptions
}

func (p LoadParams) extent() uint32 {
	if p.Cluster {
		return uint32(p.clusterOptions().Extent)
	}
	return p.tileOptions().Extent
}

// Literal is GeoJSON text supplied inline. In JSON it may be written either
// as a string holding the document or as the document itself.
type Literal []byte

// UnmarshalJSON implements json.Unmarshaler.
func (l *Literal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Literal(s)
		return nil
	}
	*l = append(Literal(nil), data...)
	return nil
}

// MarshalJSON writes the literal as a JSON string.
func (l Literal) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("null"), nil
	}
	return json.Marshal(string(l))
}

// UnmarshalYAML accepts a string holding the document or an inline mapping.
func (l *Literal) UnmarshalYAML(node *yaml.Node) error {
	if node.ShortTag() == "!!null" {
		*l = nil
		return nil
	}
	if node.Kind == yaml.ScalarNode {
		*l = Literal(node.Value)
		return nil
	}
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode inline data: %w", err)
	}
	*l = b
	return nil
}

// LoadResult is the outcome of a load that did not fail.
type LoadResult struct {
	Abandoned      bool                                  `json:"abandoned,omitempty"`
	ResourceTiming map[string][]transport.ResourceTiming `json:"resourceTiming,omitempty"`
}
