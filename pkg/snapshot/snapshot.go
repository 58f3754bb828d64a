// Package snapshot encodes the article graph as a portable JSON document,
// optionally zstd compressed, and reads it back with validation.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/kittclouds/wikigraph/pkg/graph"
)

// Version is the document version written by Encode.
const Version = 1

// ErrInvalidSnapshot is returned for documents that fail validation. Nothing
// is applied to a graph when it is returned.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Document is the serialized graph.
type Document struct {
	Version         int                 `json:"version"`
	Nodes           []graph.Node        `json:"nodes"`
	Edges           []graph.Edge        `json:"edges"`
	CrossReferences map[string][]string `json:"crossReferences,omitempty"`
}

// FromState builds a document from a graph state.
func FromState(st graph.State) Document {
	return Document{
		Version:         Version,
		Nodes:           st.Nodes,
		Edges:           st.Edges,
		CrossReferences: st.CrossReferences,
	}
}

// State converts the document into a state for graph.Store.Replace.
func (d Document) State() graph.State {
	return graph.State{
		Nodes:           d.Nodes,
		Edges:           d.Edges,
		CrossReferences: d.CrossReferences,
	}
}

// Encode writes the document as indented JSON.
func Encode(w io.Writer, doc Document) error {
	if doc.Version == 0 {
		doc.Version = Version
	}
	if doc.Nodes == nil {
		doc.Nodes = []graph.Node{}
	}
	if doc.Edges == nil {
		doc.Edges = []graph.Edge{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// rawDocument accepts both the current layout and exports that used "links"
// for edges with endpoints expanded into node objects.
type rawDocument struct {
	Version         int                 `json:"version"`
	Nodes           json.RawMessage     `json:"nodes"`
	Edges           json.RawMessage     `json:"edges"`
	Links           json.RawMessage     `json:"links"`
	CrossReferences map[string][]string `json:"crossReferences"`
}

type rawEdge struct {
	Source         json.RawMessage `json:"source"`
	Target         json.RawMessage `json:"target"`
	ConnectionType string          `json:"connectionType"`
}

// Decode reads and validates a JSON document.
func Decode(r io.Reader) (Document, error) {
	var raw rawDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Document{}, fmt.Errorf("%w: trailing data after document", ErrInvalidSnapshot)
	}
	if raw.Version > Version {
		return Document{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, raw.Version)
	}

	edgesRaw := raw.Edges
	if len(edgesRaw) == 0 {
		edgesRaw = raw.Links
	}
	if !isArray(raw.Nodes) {
		return Document{}, fmt.Errorf("%w: nodes must be an array", ErrInvalidSnapshot)
	}
	if !isArray(edgesRaw) {
		return Document{}, fmt.Errorf("%w: edges must be an array", ErrInvalidSnapshot)
	}

	doc := Document{Version: Version, CrossReferences: raw.CrossReferences}
	if err := json.Unmarshal(raw.Nodes, &doc.Nodes); err != nil {
		return Document{}, fmt.Errorf("%w: nodes: %v", ErrInvalidSnapshot, err)
	}
	for i, n := range doc.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return Document{}, fmt.Errorf("%w: node %d has no id", ErrInvalidSnapshot, i)
		}
	}

	var edges []rawEdge
	if err := json.Unmarshal(edgesRaw, &edges); err != nil {
		return Document{}, fmt.Errorf("%w: edges: %v", ErrInvalidSnapshot, err)
	}
	doc.Edges = make([]graph.Edge, 0, len(edges))
	for i, e := range edges {
		source, err := endpoint(e.Source)
		if err != nil {
			return Document{}, fmt.Errorf("%w: edge %d source: %v", ErrInvalidSnapshot, i, err)
		}
		target, err := endpoint(e.Target)
		if err != nil {
			return Document{}, fmt.Errorf("%w: edge %d target: %v", ErrInvalidSnapshot, i, err)
		}
		doc.Edges = append(doc.Edges, graph.Edge{Source: source, Target: target, ConnectionType: e.ConnectionType})
	}
	return doc, nil
}

// endpoint reads an edge end given either as an id string or as a node
// object carrying an id.
func endpoint(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("missing")
	}
	var id string
	if raw[0] == '{' {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", err
		}
		id = obj.ID
	} else if err := json.Unmarshal(raw, &id); err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", errors.New("missing")
	}
	return id, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// EncodeCompressed writes the document as zstd-compressed JSON.
func EncodeCompressed(w io.Writer, doc Document) error {
	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	if err := Encode(encoder, doc); err != nil {
		encoder.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("closing encoder: %w", err)
	}
	return nil
}

// DecodeCompressed reads a zstd-compressed document.
func DecodeCompressed(r io.Reader) (Document, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return Document{}, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()

	data, err := io.ReadAll(decoder)
	if err != nil {
		return Document{}, fmt.Errorf("%w: decompressing: %v", ErrInvalidSnapshot, err)
	}
	return Decode(bytes.NewReader(data))
}

// Marshal returns the encoded document, compressed when compress is set.
func Marshal(doc Document, compress bool) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if compress {
		err = EncodeCompressed(&buf, doc)
	} else {
		err = Encode(&buf, doc)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data, detecting zstd frames by their magic number.
func Unmarshal(data []byte) (Document, error) {
	if IsCompressed(data) {
		return DecodeCompressed(bytes.NewReader(data))
	}
	return Decode(bytes.NewReader(data))
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// IsCompressed reports whether data starts with a zstd frame.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}
