package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/kittclouds/wikigraph/pkg/article"
)

const wiki = "https://en.wikipedia.org/wiki/"

func rec(id string, links ...string) article.Record {
	r := article.Record{ID: id, Title: article.TitleFromID(id), URL: wiki + id}
	for _, l := range links {
		r.Links = append(r.Links, article.LinkRef{Title: article.TitleFromID(l), URL: wiki + l})
	}
	return r
}

func TestMergeCoReferenceScenario(t *testing.T) {
	g := NewStore()

	res, err := g.Merge(rec("A", "X"), wiki+"A", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.NodesAdded != 1 || res.EdgesAdded != 0 {
		t.Errorf("first merge = %+v, want 1 node 0 edges", res)
	}
	if g.NodeCount() != 1 || g.EdgeCount() != 0 {
		t.Fatalf("after A: nodes=%d edges=%d", g.NodeCount(), g.EdgeCount())
	}

	if _, err := g.Merge(rec("B", "X"), wiki+"B", ""); err != nil {
		t.Fatal(err)
	}
	if g.NodeCount() != 2 || g.EdgeCount() != 1 {
		t.Fatalf("after B: nodes=%d edges=%d, want 2/1", g.NodeCount(), g.EdgeCount())
	}
	e := g.Edges()[0]
	if e.Source != "A" || e.Target != "B" || e.ConnectionType != wiki+"X" {
		t.Errorf("edge = %+v, want A->B via X", e)
	}

	res, err = g.Merge(rec("A", "X"), wiki+"A", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.NodesAdded != 0 || res.EdgesAdded != 0 {
		t.Errorf("re-merge = %+v, want no changes", res)
	}
	if g.NodeCount() != 2 || g.EdgeCount() != 1 {
		t.Errorf("after re-merge: nodes=%d edges=%d, want 2/1", g.NodeCount(), g.EdgeCount())
	}
}

func TestCoReferenceOrderDependence(t *testing.T) {
	ab := NewStore()
	ab.Merge(rec("A", "X"), wiki+"A", "")
	ab.Merge(rec("B", "X"), wiki+"B", "")
	if !ab.HasEdge("A", "B") || ab.HasEdge("B", "A") {
		t.Error("A then B should produce only A->B")
	}

	ba := NewStore()
	ba.Merge(rec("B", "X"), wiki+"B", "")
	ba.Merge(rec("A", "X"), wiki+"A", "")
	if !ba.HasEdge("B", "A") || ba.HasEdge("A", "B") {
		t.Error("B then A should produce only B->A")
	}
}

func TestMergeChildEdge(t *testing.T) {
	g := NewStore()
	g.Merge(rec("A", "B"), wiki+"A", "")

	res, err := g.Merge(rec("B"), wiki+"B", "A")
	if err != nil {
		t.Fatal(err)
	}
	if res.EdgesAdded != 1 {
		t.Errorf("EdgesAdded = %d, want 1", res.EdgesAdded)
	}
	out := g.OutgoingEdges("A")
	if len(out) != 1 || !out[0].Edge.IsChild() || out[0].Node.ID != "B" {
		t.Errorf("outgoing of A = %+v, want Child edge to B", out)
	}

	// the same merge again adds nothing
	res, _ = g.Merge(rec("B"), wiki+"B", "A")
	if res.EdgesAdded != 0 || g.EdgeCount() != 1 {
		t.Errorf("repeat child merge added edges: %+v", res)
	}
}

func TestMergeChildEdgePlusCoReference(t *testing.T) {
	g := NewStore()
	g.Merge(rec("A", "B", "X"), wiki+"A", "")
	g.Merge(rec("B", "X"), wiki+"B", "A")

	// A->B already exists as Child; the co-reference candidate is deduplicated
	if g.EdgeCount() != 1 {
		t.Fatalf("EdgeCount = %d, want 1", g.EdgeCount())
	}
	if g.Edges()[0].ConnectionType != ConnectionChild {
		t.Errorf("first writer should win, got %q", g.Edges()[0].ConnectionType)
	}
}

func TestMergeWithoutActiveNodeHasNoChildEdge(t *testing.T) {
	g := NewStore()
	g.Merge(rec("A", "B"), wiki+"A", "")
	g.Merge(rec("B"), wiki+"B", "")
	if g.EdgeCount() != 0 {
		t.Errorf("EdgeCount = %d, want 0", g.EdgeCount())
	}

	// active node that does not link to the merged article
	g.Merge(rec("C"), wiki+"C", "B")
	if g.EdgeCount() != 0 {
		t.Errorf("EdgeCount = %d, want 0 when active does not link", g.EdgeCount())
	}
}

func TestMergeKeepsFirstScrapeContent(t *testing.T) {
	g := NewStore()
	first := rec("A")
	first.Summary = "first"
	g.Merge(first, wiki+"A", "")

	second := rec("A")
	second.Summary = "second"
	g.Merge(second, wiki+"A", "")

	n, _ := g.Node("A")
	if n.Summary != "first" {
		t.Errorf("Summary = %q, want first", n.Summary)
	}
}

func TestMergeMalformedRecord(t *testing.T) {
	g := NewStore()
	g.Merge(rec("A", "X"), wiki+"A", "")

	for _, bad := range []article.Record{
		{ID: "", Title: "B"},
		{ID: "B", Title: "  "},
	} {
		_, err := g.Merge(bad, wiki+"B", "A")
		if !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("err = %v, want ErrMalformedRecord", err)
		}
	}
	if g.NodeCount() != 1 || g.EdgeCount() != 0 || g.Index().Len() != 1 {
		t.Error("malformed merge must not mutate the store")
	}
}

func TestMergeFallsBackToRecordID(t *testing.T) {
	g := NewStore()
	res, err := g.Merge(article.Record{ID: "Some Title", Title: "Some Title"}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.SourceID != "Some_Title" {
		t.Errorf("SourceID = %q", res.SourceID)
	}
}

func TestRemoveNodeKeepsIndexHints(t *testing.T) {
	g := NewStore()
	g.Merge(rec("A", "X"), wiki+"A", "")
	g.Merge(rec("B", "X"), wiki+"B", "")

	if !g.RemoveNode("A") {
		t.Fatal("RemoveNode returned false")
	}
	if g.NodeCount() != 1 || g.EdgeCount() != 0 {
		t.Fatalf("after remove: nodes=%d edges=%d", g.NodeCount(), g.EdgeCount())
	}
	if ids := g.Index().Lookup("X"); len(ids) != 2 || ids[0] != "A" {
		t.Errorf("index bucket = %v, want A still registered", ids)
	}

	// stale hint for A is skipped while A is absent
	g.Merge(rec("C", "X"), wiki+"C", "")
	if g.HasEdge("A", "C") {
		t.Error("no edge may reference a removed node")
	}
	if !g.HasEdge("B", "C") {
		t.Error("B->C expected")
	}

	// re-adding A links it from every other article sharing X
	res, _ := g.Merge(rec("A", "X"), wiki+"A", "")
	if res.NodesAdded != 1 || res.EdgesAdded != 2 {
		t.Errorf("re-add result = %+v, want 1 node and 2 edges", res)
	}
	if !g.HasEdge("B", "A") || !g.HasEdge("C", "A") {
		t.Error("re-added node should get B->A and C->A")
	}
	// and reacquires A->C from the stale hint on the next visit of C
	g.Merge(rec("C", "X"), wiki+"C", "")
	if !g.HasEdge("A", "C") {
		t.Error("re-added node should reacquire A->C")
	}
	if g.RemoveNode("missing") {
		t.Error("RemoveNode of unknown id should be false")
	}
}

func TestReaddedNodeMergeIsIdempotent(t *testing.T) {
	g := NewStore()
	for _, id := range []string{"A", "B", "C"} {
		g.Merge(rec(id, "X"), wiki+id, "")
	}
	g.RemoveNode("A")
	g.Merge(rec("A", "X"), wiki+"A", "")
	edges := g.EdgeCount()

	res, err := g.Merge(rec("A", "X"), wiki+"A", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.NodesAdded != 0 || res.EdgesAdded != 0 {
		t.Errorf("second merge = %+v, want no changes", res)
	}
	if g.EdgeCount() != edges {
		t.Errorf("EdgeCount = %d, want %d", g.EdgeCount(), edges)
	}
}

func TestRemoveLink(t *testing.T) {
	g := NewStore()
	g.Merge(rec("A", "B", "X"), wiki+"A", "")
	g.Merge(rec("B", "X", "Y"), wiki+"B", "A")
	g.Merge(rec("C", "Y"), wiki+"C", "")
	// A->B Child, B->C via Y
	if g.EdgeCount() != 2 {
		t.Fatalf("EdgeCount = %d, want 2", g.EdgeCount())
	}

	if !g.RemoveLink("B", article.LinkRef{URL: wiki + "Y"}) {
		t.Fatal("RemoveLink returned false")
	}
	if g.HasEdge("B", "C") {
		t.Error("B->C should be removed with link Y")
	}
	if !g.HasEdge("A", "B") {
		t.Error("unrelated Child edge must survive")
	}
	n, _ := g.Node("B")
	if len(n.Links) != 1 || n.Links[0].URL != wiki+"X" {
		t.Errorf("links = %+v", n.Links)
	}

	// removing the link that justified the Child edge drops it
	g.RemoveLink("A", article.LinkRef{Title: "b"})
	if g.HasEdge("A", "B") {
		t.Error("Child edge A->B should go with link B")
	}
	if g.RemoveLink("A", article.LinkRef{URL: "nope"}) {
		t.Error("unknown link should report false")
	}
	if g.RemoveLink("missing", article.LinkRef{URL: wiki + "X"}) {
		t.Error("unknown node should report false")
	}
}

func TestReplaceToleratesDanglingEdges(t *testing.T) {
	g := NewStore()
	g.Merge(rec("Z"), wiki+"Z", "")

	g.Replace(State{
		Nodes: []Node{{ID: "A", Title: "A", Links: []article.LinkRef{{Title: "X", URL: wiki + "X"}}}, {ID: "A", Title: "dup"}},
		Edges: []Edge{
			{Source: "A", Target: "ghost", ConnectionType: "Child"},
			{Source: "A", Target: "ghost", ConnectionType: "other"},
		},
	})
	if g.NodeCount() != 1 || g.EdgeCount() != 1 {
		t.Fatalf("nodes=%d edges=%d, want 1/1", g.NodeCount(), g.EdgeCount())
	}
	if n, _ := g.Node("A"); n.Title != "A" {
		t.Error("first duplicate node should win")
	}
	if len(g.Neighbors("A")) != 0 || len(g.OutgoingEdges("A")) != 0 {
		t.Error("dangling edge must be inert")
	}
	// index rebuilt from node links
	if ids := g.Index().Lookup("X"); len(ids) != 1 || ids[0] != "A" {
		t.Errorf("rebuilt index = %v", ids)
	}
	g.Merge(rec("B", "X"), wiki+"B", "")
	if !g.HasEdge("A", "B") {
		t.Error("co-reference detection should resume after Replace")
	}
	// removing the present endpoint clears the dangling edge too
	g.RemoveNode("A")
	if g.EdgeCount() != 0 {
		t.Errorf("EdgeCount = %d, want 0", g.EdgeCount())
	}
}

func TestStateRoundTripThroughReplace(t *testing.T) {
	g := NewStore()
	g.Merge(rec("A", "X"), wiki+"A", "")
	g.Merge(rec("B", "X"), wiki+"B", "")
	g.RemoveNode("A")

	h := NewStore()
	h.Replace(g.State())
	// A stays in the serialized index
	if ids := h.Index().Lookup("X"); len(ids) != 2 {
		t.Errorf("index after replace = %v", ids)
	}
}

func TestReturnedValuesDoNotAlias(t *testing.T) {
	g := NewStore()
	g.Merge(rec("A", "X"), wiki+"A", "")
	n, _ := g.Node("A")
	n.Links[0].Title = "mutated"
	nodes := g.Nodes()
	nodes[0].Title = "mutated"

	again, _ := g.Node("A")
	if again.Title != "A" || again.Links[0].Title != "X" {
		t.Error("store state leaked through returned values")
	}
}

func TestNoDuplicateEdgesRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := []string{"A", "B", "C", "D", "E", "F"}
	titles := []string{"X", "Y", "Z", "A", "B"}

	g := NewStore()
	active := ""
	for i := 0; i < 300; i++ {
		id := ids[rng.Intn(len(ids))]
		var links []string
		for _, title := range titles {
			if rng.Intn(2) == 0 {
				links = append(links, title)
			}
		}
		if _, err := g.Merge(rec(id, links...), wiki+id, active); err != nil {
			t.Fatal(err)
		}
		if rng.Intn(5) == 0 {
			g.RemoveNode(ids[rng.Intn(len(ids))])
		}
		active = id
	}

	seen := make(map[string]bool)
	for _, e := range g.Edges() {
		key := fmt.Sprintf("%s->%s", e.Source, e.Target)
		if seen[key] {
			t.Fatalf("duplicate edge %s", key)
		}
		seen[key] = true
		if _, ok := g.Node(e.Source); !ok {
			t.Fatalf("edge %s has missing source", key)
		}
		if _, ok := g.Node(e.Target); !ok {
			t.Fatalf("edge %s has missing target", key)
		}
	}
}

func TestOrphanNodesAndCentrality(t *testing.T) {
	g := NewStore()
	g.Merge(rec("hub", "X"), wiki+"hub", "")
	g.Merge(rec("a", "X"), wiki+"a", "")
	g.Merge(rec("b", "X"), wiki+"b", "")
	g.Merge(rec("orphan"), wiki+"orphan", "")

	orphans := g.OrphanNodes()
	if len(orphans) != 1 || orphans[0].ID != "orphan" {
		t.Errorf("orphans = %+v", orphans)
	}

	centrality := g.DegreeCentrality()
	if centrality["hub"] <= centrality["orphan"] {
		t.Error("hub should have higher centrality than the orphan")
	}
	if len(g.Neighbors("a")) != 2 {
		t.Errorf("neighbors of a = %d, want 2", len(g.Neighbors("a")))
	}
}

func TestReset(t *testing.T) {
	g := NewStore()
	g.Merge(rec("A", "X"), wiki+"A", "")
	g.Reset()
	if g.NodeCount() != 0 || g.EdgeCount() != 0 || g.Index().Len() != 0 {
		t.Error("Reset should empty everything")
	}
}
