package params

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load reads a parameter tree from a YAML file, or from every YAML file in
// a directory merged in lexical order with Update semantics.
func Load(path string) (*Tree, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameters: %w", err)
	}
	if !info.IsDir() {
		return loadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameter dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yml" || ext == ".yaml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tree := New()
	for _, name := range names {
		sub, err := loadFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		tree.Update(sub)
	}
	logrus.Debugf("loaded %d parameter files from %s", len(names), path)
	return tree, nil
}

func loadFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameters: %w", err)
	}
	tree, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return tree, nil
}

// Parse decodes a YAML document into a tree. An empty document yields an
// empty tree.
func Parse(data []byte) (*Tree, error) {
	tree := New()
	if len(strings.TrimSpace(string(data))) == 0 {
		return tree, nil
	}
	if err := yaml.Unmarshal(data, tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// MustParse is Parse for literals known to be well formed.
func MustParse(doc string) *Tree {
	t, err := Parse([]byte(doc))
	if err != nil {
		panic(err)
	}
	return t
}

// UnmarshalYAML decodes a mapping node, preserving key order.
func (t *Tree) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	node = resolveAlias(node)
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: parameters must be a mapping", node.Line)
	}
	if t.vals == nil {
		t.vals = make(map[string]any)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		v, err := decodeValue(node.Content[i+1])
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		t.setLocal(key, v)
	}
	return nil
}

func decodeValue(node *yaml.Node) (any, error) {
	node = resolveAlias(node)
	switch node.Kind {
	case yaml.MappingNode:
		sub := New()
		if err := sub.UnmarshalYAML(node); err != nil {
			return nil, err
		}
		return sub, nil
	case yaml.SequenceNode:
		items := make([]any, len(node.Content))
		for i, c := range node.Content {
			v, err := decodeValue(c)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return normalizeList(items), nil
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return normalizeLeaf(v), nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %v", node.Line, node.Kind)
	}
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

// MarshalYAML encodes the tree as an ordered mapping node. Numeric vectors
// use flow style so per-age arrays stay on one line.
func (t *Tree) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range t.keys {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: k}
		val, err := encodeValue(t.vals[k])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		node.Content = append(node.Content, key, val)
	}
	return node, nil
}

func encodeValue(v any) (*yaml.Node, error) {
	if sub, ok := v.(*Tree); ok {
		n, err := sub.MarshalYAML()
		if err != nil {
			return nil, err
		}
		return n.(*yaml.Node), nil
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case []float64, [][]float64:
		n.Style = yaml.FlowStyle
	}
	return n, nil
}

// YAML renders the tree as a YAML document.
func (t *Tree) YAML() ([]byte, error) {
	return yaml.Marshal(t)
}
