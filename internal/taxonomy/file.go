// Package taxonomy loads categorization rules from YAML files and watches
// those files for changes.
package taxonomy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"fintrack/internal/categorize"
)

// ErrEmptyFile is returned when a taxonomy file has no content.
var ErrEmptyFile = errors.New("taxonomy file is empty")

// document is the on-disk shape. The list order is rule priority.
//
//	categories:
//	  - name: food
//	    keywords: [pizza, burger]
type document struct {
	Categories []categorize.Rule `yaml:"categories"`
}

// LoadFile reads and validates the taxonomy at path.
func LoadFile(path string) (*categorize.Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file: %w", err)
	}
	tax, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse taxonomy file %s: %w", path, err)
	}
	return tax, nil
}

// Parse decodes a YAML (or JSON) taxonomy document. Unknown fields are rejected.
func Parse(data []byte) (*categorize.Taxonomy, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	return categorize.NewTaxonomy(doc.Categories)
}

// Marshal encodes t in the format accepted by Parse.
func Marshal(t *categorize.Taxonomy) ([]byte, error) {
	doc := document{Categories: t.Rules()}
	if doc.Categories == nil {
		doc.Categories = []categorize.Rule{}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}
