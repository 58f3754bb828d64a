package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/wikigraph/internal/store"
	"github.com/kittclouds/wikigraph/pkg/article"
	"github.com/kittclouds/wikigraph/pkg/graph"
	"github.com/kittclouds/wikigraph/pkg/layout"
	"github.com/kittclouds/wikigraph/pkg/scrape"
	"github.com/kittclouds/wikigraph/pkg/snapshot"
	"github.com/kittclouds/wikigraph/pkg/viewport"
)

const wiki = "https://en.wikipedia.org/wiki/"

func link(id string) article.LinkRef {
	return article.LinkRef{Title: article.TitleFromID(id), URL: wiki + id}
}

// fakeWiki serves canned records and counts requests.
type fakeWiki struct {
	mu    sync.Mutex
	pages map[string]article.Record
	calls int
}

func newFakeWiki() *fakeWiki {
	pages := map[string]article.Record{}
	add := func(id, summary string, links ...string) {
		rec := article.Record{ID: id, Title: article.TitleFromID(id), URL: wiki + id, Summary: summary}
		for _, l := range links {
			rec.Links = append(rec.Links, link(l))
		}
		pages[wiki+id] = rec
	}
	add("Chokecherry", "Chokecherry is a species of Prunus with an astringent fruit.", "Prunus", "Astringent", "Fruit")
	add("Prunus", "Prunus is a genus of trees.", "Genus", "Fruit", "Tree")
	add("Astringent", "An astringent is a chemical that shrinks tissue.", "Chemical", "Tissue", "Fruit")
	add("Tree", "A tree is a perennial plant.", "Plant", "Genus", "Fruit")
	return &fakeWiki{pages: pages}
}

func (f *fakeWiki) Scrape(_ context.Context, url string) (article.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	rec, ok := f.pages[url]
	if !ok {
		return article.Record{}, fmt.Errorf("%w: %s", scrape.ErrNotFound, url)
	}
	return rec.Clone(), nil
}

func newExplorer(t *testing.T, history store.Storer) (*Explorer, *fakeWiki) {
	t.Helper()
	f := newFakeWiki()
	e := New(Options{
		Scraper: f,
		History: history,
		Layout:  layout.Config{Seed: 1, Params: layout.DefaultParams()},
	})
	return e, f
}

func ids(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestVisitFollowsActiveNode(t *testing.T) {
	e, _ := newExplorer(t, nil)
	ctx := context.Background()

	res, err := e.Visit(ctx, wiki+"Chokecherry")
	require.NoError(t, err)
	assert.Equal(t, graph.MergeResult{SourceID: "Chokecherry", NodesAdded: 1}, res)
	assert.Equal(t, "Chokecherry", e.Active())

	res, err = e.Visit(ctx, wiki+"Prunus")
	require.NoError(t, err)
	// Child edge from the active node plus nothing else: Prunus shares
	// "Fruit" with Chokecherry but Chokecherry -> Prunus already exists.
	assert.Equal(t, 1, res.EdgesAdded)
	assert.True(t, e.Graph().HasEdge("Chokecherry", "Prunus"))
	assert.Equal(t, "Prunus", e.Active())

	require.NoError(t, e.Select("Chokecherry"))
	_, err = e.Visit(ctx, wiki+"Astringent")
	require.NoError(t, err)
	edges := e.Graph().Edges()
	assert.Contains(t, edges, graph.Edge{Source: "Chokecherry", Target: "Astringent", ConnectionType: graph.ConnectionChild})
	assert.Contains(t, edges, graph.Edge{Source: "Prunus", Target: "Astringent", ConnectionType: wiki + "Fruit"})

	view := e.View()
	assert.Equal(t, []string{"Chokecherry", "Prunus", "Astringent"}, ids(view.Nodes))
	assert.Equal(t, ids(view.Nodes), e.Layout().IDs())
}

func TestVisitIsIdempotent(t *testing.T) {
	e, _ := newExplorer(t, nil)
	ctx := context.Background()
	for _, id := range []string{"Chokecherry", "Prunus", "Tree"} {
		_, err := e.Visit(ctx, wiki+id)
		require.NoError(t, err)
	}
	before := e.Graph().State()

	require.NoError(t, e.Select(""))
	for _, id := range []string{"Chokecherry", "Prunus", "Tree"} {
		res, err := e.Visit(ctx, wiki+id)
		require.NoError(t, err)
		assert.Zero(t, res.NodesAdded)
		assert.Zero(t, res.EdgesAdded)
	}
	assert.Equal(t, before, e.Graph().State())
}

func TestVisitFailures(t *testing.T) {
	e, f := newExplorer(t, nil)
	ctx := context.Background()

	_, err := e.Visit(ctx, wiki+"Missing")
	assert.True(t, errors.Is(err, ErrCouldNotLoad))
	assert.True(t, errors.Is(err, scrape.ErrNotFound))

	_, err = e.Visit(ctx, "https://example.com/wiki/Chokecherry")
	assert.True(t, errors.Is(err, ErrCouldNotLoad))
	assert.True(t, errors.Is(err, scrape.ErrInvalidURL))
	assert.Equal(t, 1, f.calls, "invalid URLs never reach the scraper")

	_, err = e.VisitRecord(article.Record{ID: " ", Title: "x"}, wiki+"x")
	assert.True(t, errors.Is(err, ErrCouldNotLoad))
	assert.True(t, errors.Is(err, graph.ErrMalformedRecord))

	assert.Zero(t, e.Graph().NodeCount())
	assert.Empty(t, e.Active())

	_, err = e.VisitNode(ctx, "Nobody")
	assert.True(t, errors.Is(err, ErrUnknownNode))
	assert.True(t, errors.Is(e.Select("Nobody"), ErrUnknownNode))

	empty := New(Options{})
	_, err = empty.Visit(ctx, wiki+"Chokecherry")
	assert.True(t, errors.Is(err, ErrCouldNotLoad))
}

func TestVisitNodeUsesStoredURL(t *testing.T) {
	e, f := newExplorer(t, nil)
	ctx := context.Background()
	_, err := e.Visit(ctx, wiki+"Chokecherry")
	require.NoError(t, err)

	_, err = e.VisitNode(ctx, "Chokecherry")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
	assert.Equal(t, 1, e.Graph().NodeCount())
}

func TestViewportIndependentOfStructure(t *testing.T) {
	e, _ := newExplorer(t, nil)
	ctx := context.Background()

	e.Viewport().Pan(40, -25)
	e.Viewport().ZoomAt(2, 100, 100)
	want := e.Viewport().Transform()

	_, err := e.Visit(ctx, wiki+"Chokecherry")
	require.NoError(t, err)
	_, err = e.Visit(ctx, wiki+"Prunus")
	require.NoError(t, err)
	e.SetSearch("prun")
	e.RemoveNode("Prunus")
	e.SetSearch("")
	e.Layout().Settle(50)

	assert.Equal(t, want, e.Viewport().Transform())

	e.Reset()
	assert.Equal(t, viewport.Identity, e.Viewport().Transform())
}

func TestSearchFiltersLayout(t *testing.T) {
	e, _ := newExplorer(t, nil)
	ctx := context.Background()
	for _, id := range []string{"Chokecherry", "Prunus", "Tree"} {
		_, err := e.Visit(ctx, wiki+id)
		require.NoError(t, err)
	}
	e.Layout().Settle(1000)
	kept, ok := e.Layout().Position("Prunus")
	require.True(t, ok)

	view := e.SetSearch("  PRUN ")
	assert.Equal(t, []string{"Prunus"}, ids(view.Nodes))
	assert.Empty(t, view.Edges)
	assert.Equal(t, []string{"Prunus"}, e.Layout().IDs())
	pos, _ := e.Layout().Position("Prunus")
	assert.Equal(t, kept, pos, "filtering keeps surviving layout state")
	assert.GreaterOrEqual(t, e.Layout().Alpha(), layout.ReheatAlpha-1e-9)

	view = e.SetSearch("")
	assert.Len(t, view.Nodes, 3)
	for _, edge := range view.Edges {
		assert.Contains(t, ids(view.Nodes), edge.Source)
		assert.Contains(t, ids(view.Nodes), edge.Target)
	}
}

func TestRefreshWithoutChangeDoesNotReheat(t *testing.T) {
	e, _ := newExplorer(t, nil)
	_, err := e.Visit(context.Background(), wiki+"Chokecherry")
	require.NoError(t, err)
	e.Layout().Settle(1000)
	require.False(t, e.Layout().Active())

	e.Refresh()
	e.SetSearch("choke")
	assert.False(t, e.Layout().Active())
}

func TestRemoveNodeAndLink(t *testing.T) {
	e, _ := newExplorer(t, nil)
	ctx := context.Background()
	for _, id := range []string{"Chokecherry", "Prunus"} {
		_, err := e.Visit(ctx, wiki+id)
		require.NoError(t, err)
	}

	assert.True(t, e.RemoveLink("Chokecherry", link("Prunus")))
	assert.False(t, e.Graph().HasEdge("Chokecherry", "Prunus"))
	assert.False(t, e.RemoveLink("Chokecherry", link("Prunus")))

	assert.True(t, e.RemoveNode("Prunus"))
	assert.Empty(t, e.Active())
	assert.False(t, e.RemoveNode("Prunus"))
	assert.Equal(t, []string{"Chokecherry"}, e.Layout().IDs())
}

func TestConcurrentVisitsBothMerge(t *testing.T) {
	e, _ := newExplorer(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"Chokecherry", "Prunus", "Astringent", "Tree"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.Visit(ctx, wiki+id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 4, e.Graph().NodeCount())
	seen := map[[2]string]bool{}
	for _, edge := range e.Graph().Edges() {
		key := [2]string{edge.Source, edge.Target}
		assert.False(t, seen[key], "duplicate edge %v", key)
		seen[key] = true
	}
}

func TestExportImport(t *testing.T) {
	e, _ := newExplorer(t, nil)
	ctx := context.Background()
	for _, id := range []string{"Chokecherry", "Prunus", "Astringent"} {
		_, err := e.Visit(ctx, wiki+id)
		require.NoError(t, err)
	}
	want := e.Graph().State()

	for _, compress := range []bool{false, true} {
		data, err := e.ExportBytes(compress)
		require.NoError(t, err)
		assert.Equal(t, compress, snapshot.IsCompressed(data))

		other, _ := newExplorer(t, nil)
		require.NoError(t, other.Import(bytes.NewReader(data)))
		assert.Equal(t, want, other.Graph().State())
		assert.Len(t, other.View().Nodes, 3)
	}

	err := e.Import(strings.NewReader(`{"nodes": {}, "edges": []}`))
	assert.True(t, errors.Is(err, snapshot.ErrInvalidSnapshot))
	assert.Equal(t, want, e.Graph().State(), "a rejected import leaves the graph alone")
}

func TestImportedIndexKeepsCoReferences(t *testing.T) {
	e, _ := newExplorer(t, nil)
	ctx := context.Background()
	_, err := e.Visit(ctx, wiki+"Chokecherry")
	require.NoError(t, err)

	data, err := e.ExportBytes(false)
	require.NoError(t, err)

	other, _ := newExplorer(t, nil)
	require.NoError(t, other.Import(bytes.NewReader(data)))
	_, err = other.Visit(ctx, wiki+"Tree")
	require.NoError(t, err)
	assert.True(t, other.Graph().HasEdge("Chokecherry", "Tree"), "shared Fruit link")
}

func TestCheckpointRestore(t *testing.T) {
	history := store.NewMemStore()
	e, _ := newExplorer(t, history)
	ctx := context.Background()

	_, err := e.Visit(ctx, wiki+"Chokecherry")
	require.NoError(t, err)
	first, err := e.Checkpoint("walk", "one node")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 1, first.NodeCount)

	_, err = e.Visit(ctx, wiki+"Prunus")
	require.NoError(t, err)
	second, err := e.Checkpoint("walk", "two nodes")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	restored, err := e.Restore("walk", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Version)
	assert.Equal(t, 1, e.Graph().NodeCount())

	_, err = e.Restore("walk", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Graph().NodeCount())

	versions, err := e.History("walk")
	require.NoError(t, err)
	assert.Len(t, versions, 3)
	list, err := e.Checkpoints()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = e.Restore("nope", 0)
	assert.True(t, errors.Is(err, store.ErrSnapshotNotFound))

	plain, _ := newExplorer(t, nil)
	_, err = plain.Checkpoint("walk", "")
	assert.True(t, errors.Is(err, ErrNoHistory))
}

func TestRelatedAndStats(t *testing.T) {
	e, _ := newExplorer(t, nil)
	ctx := context.Background()
	for _, id := range []string{"Chokecherry", "Prunus", "Astringent"} {
		_, err := e.Visit(ctx, wiki+id)
		require.NoError(t, err)
	}

	related, err := e.Related("Chokecherry")
	require.NoError(t, err)
	var got []string
	for _, m := range related {
		got = append(got, m.NodeID)
	}
	assert.Equal(t, []string{"Prunus", "Astringent"}, got)

	_, err = e.Related("Nobody")
	assert.True(t, errors.Is(err, ErrUnknownNode))

	stats := e.Stats()
	assert.Equal(t, 3, stats.Nodes)
	assert.Equal(t, e.Graph().EdgeCount(), stats.Edges)
	assert.Equal(t, 3, stats.VisibleNodes)
	assert.Equal(t, "Astringent", stats.Active)
	assert.Positive(t, stats.CrossReferences)
}

func TestRank(t *testing.T) {
	e, _ := newExplorer(t, nil)
	ctx := context.Background()
	for _, id := range []string{"Chokecherry", "Prunus", "Tree"} {
		_, err := e.Visit(ctx, wiki+id)
		require.NoError(t, err)
	}

	results := e.Rank("prunus", 0)
	require.Len(t, results, 2)
	assert.Equal(t, "Prunus", results[0].ID)
	assert.Equal(t, "Chokecherry", results[1].ID)

	assert.Empty(t, e.Rank("zeppelin", 0))
}

func TestViewDoesNotShareNodeData(t *testing.T) {
	e, _ := newExplorer(t, nil)
	_, err := e.Visit(context.Background(), wiki+"Chokecherry")
	require.NoError(t, err)

	v := e.View()
	v.Nodes[0].Links[0].Title = "mutated"
	assert.Equal(t, "Prunus", e.View().Nodes[0].Links[0].Title)

	s := e.SetSearch("choke")
	s.Nodes[0].Links[0].Title = "mutated"
	assert.Equal(t, "Prunus", e.View().Nodes[0].Links[0].Title)
}

func TestCheckpointLookupAndDelete(t *testing.T) {
	e, _ := newExplorer(t, store.NewMemStore())
	ctx := context.Background()

	_, err := e.Visit(ctx, wiki+"Chokecherry")
	require.NoError(t, err)
	_, err = e.Checkpoint("walk", "one node")
	require.NoError(t, err)
	_, err = e.Visit(ctx, wiki+"Prunus")
	require.NoError(t, err)
	_, err = e.Checkpoint("walk", "two nodes")
	require.NoError(t, err)
	_, err = e.Checkpoint("other", "")
	require.NoError(t, err)

	v1, err := e.CheckpointVersion("walk", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.NodeCount)
	current, err := e.CheckpointVersion("walk", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Version)
	_, err = e.CheckpointVersion("walk", 9)
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)

	now, err := e.CheckpointAt("walk", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, now.Version)
	_, err = e.CheckpointAt("walk", time.UnixMilli(0))
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)

	e.Reset()
	restored, err := e.RestoreAt("walk", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Version, "the current version is loaded, not copied")
	assert.Equal(t, 2, e.Graph().NodeCount())

	count, err := e.CountCheckpoints()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, e.DeleteCheckpoint("walk"))
	count, err = e.CountCheckpoints()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.ErrorIs(t, e.DeleteCheckpoint("walk"), store.ErrSnapshotNotFound)
}
