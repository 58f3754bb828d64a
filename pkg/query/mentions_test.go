package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/wikigraph/pkg/graph"
)

func TestMentionsFindsKnownTitles(t *testing.T) {
	nodes := []graph.Node{
		{ID: "Chokecherry", Title: "Chokecherry"},
		{ID: "Astringent", Title: "Astringent"},
		{ID: "Prunus_virginiana", Title: "Prunus virginiana"},
		{ID: "Of", Title: "Of"},
	}
	text := "Prunus virginiana, commonly called chokecherry, has an astringent taste. Chokecherry again."

	got := Mentions(nodes, text, "Prunus_virginiana")
	require.Len(t, got, 2)
	assert.Equal(t, "Chokecherry", got[0].NodeID)
	assert.Equal(t, "chokecherry", text[got[0].Start:got[0].End])
	assert.Equal(t, "Astringent", got[1].NodeID)
}

func TestMentionsWholeWordsOnly(t *testing.T) {
	nodes := []graph.Node{{ID: "Art", Title: "Art"}}
	assert.Empty(t, Mentions(nodes, "A smart partial match", ""))
	assert.Len(t, Mentions(nodes, "Modern art museum", ""), 1)
}

func TestMentionsEmptyInputs(t *testing.T) {
	assert.Nil(t, Mentions(nil, "text", ""))
	assert.Nil(t, Mentions([]graph.Node{{ID: "Crystal", Title: "Crystal"}}, "", ""))
}
