package docxfill

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadReplacementMap reads a YAML or JSON replacement map. Image paths are resolved
// relative to the map file.
func LoadReplacementMap(path string) (ReplacementMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classify("replacement map reading", path, AccessRead, err)
	}
	defer f.Close()

	m, err := ParseReplacementMap(f, filepath.Dir(path))
	if err != nil {
		return nil, WithContext(err, "replacement map reading", map[string]interface{}{"path": path})
	}
	return m, nil
}

// ParseReplacementMap decodes a replacement map. Scalar values are text; a mapping
// with an image key is an image:
//
//	NAME: Alice
//	LOGO:
//	  image: logo.png
//	  width: 120
//
// JSON documents are accepted as well.
func ParseReplacementMap(r io.Reader, baseDir string) (ReplacementMap, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if err == io.EOF {
			return ReplacementMap{}, nil
		}
		return nil, fmt.Errorf("failed to parse replacement map: %w", err)
	}

	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("replacement map must be a mapping, got %s", nodeKind(doc))
	}

	m := make(ReplacementMap, len(doc.Content)/2)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		keyNode, valueNode := doc.Content[i], doc.Content[i+1]
		name := keyNode.Value
		if _, dup := m[name]; dup {
			return nil, fmt.Errorf("line %d: duplicate key %q", keyNode.Line, name)
		}

		value, err := decodeReplacementValue(valueNode, baseDir)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", valueNode.Line, name, err)
		}
		m[name] = value
	}
	return m, nil
}

type imageSpec struct {
	Image  string `yaml:"image"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

func decodeReplacementValue(node *yaml.Node, baseDir string) (ReplacementValue, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return TextValue(""), nil
		}
		return TextValue(node.Value), nil

	case yaml.MappingNode:
		var img imageSpec
		if err := node.Decode(&img); err != nil {
			return ReplacementValue{}, err
		}
		if img.Image == "" {
			return ReplacementValue{}, fmt.Errorf("mapping value needs an image key")
		}
		if img.Width < 0 || img.Height < 0 {
			return ReplacementValue{}, fmt.Errorf("image dimensions cannot be negative")
		}
		path := img.Image
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		return ImageValue(path, img.Width, img.Height), nil

	case yaml.AliasNode:
		return decodeReplacementValue(node.Alias, baseDir)

	default:
		return ReplacementValue{}, fmt.Errorf("unsupported value of kind %s", nodeKind(node))
	}
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return strconv.Itoa(int(node.Kind))
	}
}
