package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrEmptyDocument is returned when the input contains no document.
var ErrEmptyDocument = errors.New("empty configuration document")

// LoadFile reads a YAML or JSON document from path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document %s: %w", path, err)
	}
	defer f.Close()

	doc, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", path, err)
	}
	return doc, nil
}

// Load decodes a single YAML or JSON document from r.
// Unknown fields are rejected so that typos in hand-edited documents surface early.
func Load(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDocument
		}
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &doc, nil
}

// Parse decodes a document from raw bytes.
func Parse(data []byte) (*Document, error) {
	return Load(bytes.NewReader(data))
}

// Marshal encodes the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// Redacted returns a copy of the document with the private key removed.
func (d *Document) Redacted() *Document {
	out := *d
	if d.Key != nil {
		key := *d.Key
		if key.PrivateKeyContent != "" {
			key.PrivateKeyContent = "<redacted>"
		}
		out.Key = &key
	}
	return &out
}
