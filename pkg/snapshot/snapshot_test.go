package snapshot

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/wikigraph/pkg/article"
	"github.com/kittclouds/wikigraph/pkg/graph"
)

const wiki = "https://en.wikipedia.org/wiki/"

func sampleDoc() Document {
	s := graph.NewStore()
	_, _ = s.Merge(article.Record{
		ID: "Crystal", Title: "Crystal", URL: wiki + "Crystal",
		Links: []article.LinkRef{{Title: "Crystal structure", URL: wiki + "Crystal_structure"}, {Title: "Atom", URL: wiki + "Atom"}},
	}, wiki+"Crystal", "")
	_, _ = s.Merge(article.Record{
		ID: "Crystal_structure", Title: "Crystal structure", URL: wiki + "Crystal_structure",
		Links: []article.LinkRef{{Title: "Atom", URL: wiki + "Atom"}},
	}, wiki+"Crystal_structure", "Crystal")
	return FromState(s.State())
}

func TestEncodeDecode(t *testing.T) {
	doc := sampleDoc()
	require.Len(t, doc.Nodes, 2)
	require.Len(t, doc.Edges, 1)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc))
	assert.Contains(t, buf.String(), `"version": 1`)
	assert.Contains(t, buf.String(), `"crossReferences"`)

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestEncodeEmptyWritesArrays(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Document{}))
	assert.Contains(t, buf.String(), `"nodes": []`)

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Empty(t, got.Nodes)
	assert.Empty(t, got.Edges)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"nodes": [`,
		"nodes not array":   `{"nodes": {}, "edges": []}`,
		"edges missing":     `{"nodes": []}`,
		"node without id":   `{"nodes": [{"title": "x"}], "edges": []}`,
		"edge no target":    `{"nodes": [{"id": "A"}], "edges": [{"source": "A"}]}`,
		"edge blank source": `{"nodes": [{"id": "A"}], "edges": [{"source": " ", "target": "A"}]}`,
		"future version":    `{"version": 9, "nodes": [], "edges": []}`,
		"second document":   `{"nodes": [], "edges": []} {}`,
		"trailing garbage":  `{"nodes": [], "edges": []}xyz`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(input))
			assert.True(t, errors.Is(err, ErrInvalidSnapshot), "got %v", err)
		})
	}
}

func TestDecodeAllowsTrailingWhitespace(t *testing.T) {
	doc, err := Decode(strings.NewReader("{\"nodes\": [{\"id\": \"A\"}], \"edges\": []}\n\t \n"))
	require.NoError(t, err)
	assert.Len(t, doc.Nodes, 1)
}

func TestDecodeToleratesDanglingAndLegacyLinks(t *testing.T) {
	input := `{
		"nodes": [{"id": "A", "title": "A"}],
		"links": [
			{"source": {"id": "A", "x": 1}, "target": "Gone", "connectionType": "Child"}
		]
	}`
	doc, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, doc.Edges, 1)
	assert.Equal(t, graph.Edge{Source: "A", Target: "Gone", ConnectionType: "Child"}, doc.Edges[0])
	assert.Equal(t, Version, doc.Version)
}

func TestCompressedRoundTrip(t *testing.T) {
	doc := sampleDoc()
	data, err := Marshal(doc, true)
	require.NoError(t, err)
	assert.True(t, IsCompressed(data))

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = DecodeCompressed(bytes.NewReader(append(append([]byte{}, zstdMagic...), 0, 1, 2)))
	assert.Error(t, err)
}

func TestSaveLoadFS(t *testing.T) {
	fs, err := mem.NewFS()
	require.NoError(t, err)

	doc := sampleDoc()
	for _, path := range []string{"graph.json", "graph.json.zst"} {
		require.NoError(t, Save(fs, path, doc))
		got, err := Load(fs, path)
		require.NoError(t, err)
		assert.Equal(t, doc, got, path)
	}

	raw, err := Marshal(doc, false)
	require.NoError(t, err)
	assert.False(t, IsCompressed(raw))

	_, err = Load(fs, "missing.json")
	assert.Error(t, err)
}

func TestStateRoundTripThroughStore(t *testing.T) {
	doc := sampleDoc()
	s := graph.NewStore()
	s.Replace(doc.State())
	assert.Equal(t, doc, FromState(s.State()))
}
