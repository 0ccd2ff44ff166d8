package index

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ClusterProperty derives one aggregated cluster property. Reduce is either a
// bare operator name or a full expression; Map is evaluated per input point.
type ClusterProperty struct {
	Name   string
	Reduce interface{}
	Map    interface{}
}

// ClusterProperties keeps the order in which properties were declared, which
// is also the order they are evaluated in.
type ClusterProperties []ClusterProperty

func parseTerms(name string, v []interface{}) (ClusterProperty, error) {
	if len(v) != 2 {
		return ClusterProperty{}, fmt.Errorf("cluster property %q: expected [reduce, map], got %d elements", name, len(v))
	}
	return ClusterProperty{Name: name, Reduce: v[0], Map: v[1]}, nil
}

// UnmarshalJSON reads {"name": [reduce, map], ...} preserving key order.
func (cp *ClusterProperties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read cluster properties: %w", err)
	}
	if tok == nil {
		*cp = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("cluster properties must be an object")
	}

	var out ClusterProperties
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read cluster property name: %w", err)
		}
		name, _ := keyTok.(string)

		var terms []interface{}
		if err := dec.Decode(&terms); err != nil {
			return fmt.Errorf("cluster property %q: %w", name, err)
		}
		prop, err := parseTerms(name, terms)
		if err != nil {
			return err
		}
		out = append(out, prop)
	}
	*cp = out
	return nil
}

// MarshalJSON writes the properties back as an object in declaration order.
func (cp ClusterProperties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range cp {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal([]interface{}{p.Reduce, p.Map})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML reads a mapping of name: [reduce, map] preserving key order.
func (cp *ClusterProperties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: cluster properties must be a mapping", node.Line)
	}

	var out ClusterProperties
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var terms []interface{}
		if err := node.Content[i+1].Decode(&terms); err != nil {
			return fmt.Errorf("cluster property %q: %w", name, err)
		}
		prop, err := parseTerms(name, terms)
		if err != nil {
			return err
		}
		out = append(out, prop)
	}
	*cp = out
	return nil
}

// Names returns the property names in declaration order.
func (cp ClusterProperties) Names() []string {
	names := make([]string, len(cp))
	for i, p := range cp {
		names[i] = p.Name
	}
	return names
}
