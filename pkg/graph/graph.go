// Package graph owns the canonical article graph: nodes, edges and the
// cross-reference index used to synthesize co-reference edges.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kittclouds/wikigraph/pkg/article"
)

// ConnectionChild marks an edge created by direct discovery from the active node.
// Any other connection type is the URL of the shared link behind a co-reference edge.
const ConnectionChild = "Child"

// ErrMalformedRecord is returned when a merge input has no usable id or title.
var ErrMalformedRecord = errors.New("graph: malformed record")

// Node is an article in the graph
type Node struct {
	ID      string            `json:"id"`
	Title   string            `json:"title"`
	URL     string            `json:"url"`
	Summary string            `json:"summary"`
	Image   *string           `json:"image"`
	Links   []article.LinkRef `json:"links"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	return n.clone()
}

func (n *Node) clone() Node {
	out := *n
	out.Links = article.CloneLinks(n.Links)
	if n.Image != nil {
		img := *n.Image
		out.Image = &img
	}
	return out
}

// Edge is a directed connection between two articles
type Edge struct {
	Source         string `json:"source"`
	Target         string `json:"target"`
	ConnectionType string `json:"connectionType"`
}

// IsChild reports whether the edge came from direct discovery.
func (e Edge) IsChild() bool {
	return e.ConnectionType == ConnectionChild
}

// Adjacent pairs a neighbouring node with the edge that reaches it.
type Adjacent struct {
	Node Node
	Edge Edge
}

// MergeResult reports what a merge changed.
type MergeResult struct {
	SourceID   string `json:"sourceId"`
	NodesAdded int    `json:"nodesAdded"`
	EdgesAdded int    `json:"edgesAdded"`
}

// State is a full copy of the store, used by snapshots and Replace.
// A nil CrossReferences map on Replace rebuilds the index from node links.
type State struct {
	Nodes           []Node              `json:"nodes"`
	Edges           []Edge              `json:"edges"`
	CrossReferences map[string][]string `json:"crossReferences,omitempty"`
}

// Store is the canonical node/edge collection.
// Safe for concurrent readers; merges are expected to be issued serially.
type Store struct {
	mu sync.RWMutex

	nodes map[string]*Node
	order []string

	// edges in insertion order, plus adjacency for O(1) dedup:
	// source -> target -> edge, target -> source -> edge
	edges    []*Edge
	outbound map[string]map[string]*Edge
	inbound  map[string]map[string]*Edge

	index *CrossReferenceIndex
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.nodes = make(map[string]*Node)
	s.order = nil
	s.edges = nil
	s.outbound = make(map[string]map[string]*Edge)
	s.inbound = make(map[string]map[string]*Edge)
	s.index = NewCrossReferenceIndex()
}

// Reset empties the store, including the cross-reference index.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Merge folds a scraped record into the graph.
//
// The node id comes from originURL (falling back to record.ID). An existing
// node keeps its content. When activeID names a node whose links contain
// originURL, a Child edge active -> source is added. Every link title is then
// looked up in the cross-reference index. A newly created source gets a
// co-reference edge from every other registered article; an existing source
// only from those registered before it, so re-merging adds nothing.
func (s *Store) Merge(record article.Record, originURL, activeID string) (MergeResult, error) {
	if !record.Valid() {
		return MergeResult{}, fmt.Errorf("%w: id=%q title=%q", ErrMalformedRecord, record.ID, record.Title)
	}
	sourceID := article.IDFromURL(originURL)
	if sourceID == "" {
		sourceID = article.IDFromTitle(record.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := MergeResult{SourceID: sourceID}

	_, existed := s.nodes[sourceID]
	if !existed {
		url := originURL
		if url == "" {
			url = record.URL
		}
		rec := record.Clone()
		s.insertNodeLocked(&Node{
			ID:      sourceID,
			Title:   rec.Title,
			URL:     url,
			Summary: rec.Summary,
			Image:   rec.Image,
			Links:   rec.Links,
		})
		result.NodesAdded++
	}

	if activeID != "" && activeID != sourceID {
		if active, ok := s.nodes[activeID]; ok && hasLinkURL(active.Links, originURL) {
			if s.addEdgeLocked(activeID, sourceID, ConnectionChild) {
				result.EdgesAdded++
			}
		}
	}

	for _, link := range record.Links {
		for _, otherID := range s.index.Lookup(link.Title) {
			if otherID == sourceID {
				// an existing node already has edges from ids registered before it
				if existed {
					break
				}
				continue
			}
			if _, ok := s.nodes[otherID]; !ok {
				continue
			}
			if s.addEdgeLocked(otherID, sourceID, link.URL) {
				result.EdgesAdded++
			}
		}
		s.index.Register(link.Title, sourceID)
	}

	return result, nil
}

func hasLinkURL(links []article.LinkRef, url string) bool {
	if url == "" {
		return false
	}
	for _, l := range links {
		if l.URL == url {
			return true
		}
	}
	return false
}

func (s *Store) insertNodeLocked(n *Node) {
	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
}

// addEdgeLocked adds source -> target unless that ordered pair already exists.
// Both endpoints must be present.
func (s *Store) addEdgeLocked(source, target, connectionType string) bool {
	if source == target {
		return false
	}
	if s.nodes[source] == nil || s.nodes[target] == nil {
		return false
	}
	return s.linkLocked(source, target, connectionType)
}

// linkLocked records an edge without checking endpoints (Replace keeps dangling edges).
func (s *Store) linkLocked(source, target, connectionType string) bool {
	if _, exists := s.outbound[source][target]; exists {
		return false
	}
	edge := &Edge{Source: source, Target: target, ConnectionType: connectionType}
	s.edges = append(s.edges, edge)

	if s.outbound[source] == nil {
		s.outbound[source] = make(map[string]*Edge)
	}
	s.outbound[source][target] = edge

	if s.inbound[target] == nil {
		s.inbound[target] = make(map[string]*Edge)
	}
	s.inbound[target][source] = edge
	return true
}

func (s *Store) unlinkLocked(source, target string) {
	delete(s.outbound[source], target)
	if len(s.outbound[source]) == 0 {
		delete(s.outbound, source)
	}
	delete(s.inbound[target], source)
	if len(s.inbound[target]) == 0 {
		delete(s.inbound, target)
	}
}

// compactEdgesLocked drops edges for which drop returns true.
func (s *Store) compactEdgesLocked(drop func(*Edge) bool) int {
	kept := s.edges[:0]
	removed := 0
	for _, e := range s.edges {
		if drop(e) {
			s.unlinkLocked(e.Source, e.Target)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.edges); i++ {
		s.edges[i] = nil
	}
	s.edges = kept
	return removed
}

// RemoveNode deletes a node and every edge touching it.
// The cross-reference index is left untouched.
func (s *Store) RemoveNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.nodes[id]
	removed := s.compactEdgesLocked(func(e *Edge) bool {
		return e.Source == id || e.Target == id
	})
	if !ok {
		return removed > 0
	}
	delete(s.nodes, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveLink removes one LinkRef from a node and the edges that link alone
// justified: co-reference edges at the node carrying link.URL, and the Child
// edge from the node to the linked article.
// The link is matched by URL, or by title when link.URL is empty.
func (s *Store) RemoveLink(nodeID string, link article.LinkRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return false
	}

	pos := -1
	for i, l := range node.Links {
		if link.URL != "" && l.URL == link.URL {
			pos = i
			break
		}
		if link.URL == "" && article.TitleKey(l.Title) == article.TitleKey(link.Title) {
			pos = i
			break
		}
	}
	if pos < 0 {
		return false
	}
	removedLink := node.Links[pos]
	node.Links = append(node.Links[:pos:pos], node.Links[pos+1:]...)

	childTarget := article.IDFromURL(removedLink.URL)
	s.compactEdgesLocked(func(e *Edge) bool {
		if e.Source != nodeID && e.Target != nodeID {
			return false
		}
		if e.IsChild() {
			return e.Source == nodeID && e.Target == childTarget
		}
		return removedLink.URL != "" && e.ConnectionType == removedLink.URL
	})
	return true
}

// Replace swaps the whole node and edge collections.
// Duplicate node ids and duplicate (source, target) pairs keep their first
// occurrence. Edges to unknown nodes are stored but stay inert.
func (s *Store) Replace(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	for i := range state.Nodes {
		n := state.Nodes[i].clone()
		if n.ID == "" {
			continue
		}
		if _, dup := s.nodes[n.ID]; dup {
			continue
		}
		s.insertNodeLocked(&n)
	}
	for _, e := range state.Edges {
		if e.Source == "" || e.Target == "" || e.Source == e.Target {
			continue
		}
		s.linkLocked(e.Source, e.Target, e.ConnectionType)
	}

	if state.CrossReferences != nil {
		s.index = NewCrossReferenceIndexFrom(state.CrossReferences)
		return
	}
	for _, id := range s.order {
		for _, l := range s.nodes[id].Links {
			s.index.Register(l.Title, id)
		}
	}
}

// State returns a deep copy of nodes, edges and the cross-reference index.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Nodes:           s.nodesLocked(),
		Edges:           s.edgesLocked(),
		CrossReferences: s.index.Entries(),
	}
}

// Index returns a copy of the cross-reference index.
func (s *Store) Index() *CrossReferenceIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.clone()
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Nodes returns copies of all nodes in insertion order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodesLocked()
}

func (s *Store) nodesLocked() []Node {
	out := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id].clone())
	}
	return out
}

// Edges returns copies of all edges in insertion order, dangling ones included.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesLocked()
}

func (s *Store) edgesLocked() []Edge {
	out := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, *e)
	}
	return out
}

// HasEdge reports whether the ordered pair source -> target exists.
func (s *Store) HasEdge(source, target string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.outbound[source][target]
	return ok
}

// NodeCount returns the number of nodes
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of edges
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// OutgoingEdges returns the edges leaving id whose target is present.
func (s *Store) OutgoingEdges(id string) []Adjacent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Adjacent
	for _, e := range s.edges {
		if e.Source != id {
			continue
		}
		if target := s.nodes[e.Target]; target != nil {
			result = append(result, Adjacent{Node: target.clone(), Edge: *e})
		}
	}
	return result
}

// IncomingEdges returns the edges arriving at id whose source is present.
func (s *Store) IncomingEdges(id string) []Adjacent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Adjacent
	for _, e := range s.edges {
		if e.Target != id {
			continue
		}
		if source := s.nodes[e.Source]; source != nil {
			result = append(result, Adjacent{Node: source.clone(), Edge: *e})
		}
	}
	return result
}

// Neighbors returns all present nodes connected to id in either direction.
func (s *Store) Neighbors(id string) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var result []Node
	for _, e := range s.edges {
		var other string
		switch id {
		case e.Source:
			other = e.Target
		case e.Target:
			other = e.Source
		default:
			continue
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		if n := s.nodes[other]; n != nil {
			result = append(result, n.clone())
		}
	}
	return result
}

// DegreeCentrality computes (in+out)/(2*(n-1)) for each node.
// Dangling edges do not count.
func (s *Store) DegreeCentrality() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.nodes)
	result := make(map[string]float64, n)
	if n <= 1 {
		for id := range s.nodes {
			result[id] = 0.0
		}
		return result
	}

	degree := make(map[string]int, n)
	for _, e := range s.edges {
		if s.nodes[e.Source] == nil || s.nodes[e.Target] == nil {
			continue
		}
		degree[e.Source]++
		degree[e.Target]++
	}
	normalizer := 2.0 * float64(n-1)
	for id := range s.nodes {
		result[id] = float64(degree[id]) / normalizer
	}
	return result
}

// OrphanNodes returns nodes with no live connections, in insertion order.
func (s *Store) OrphanNodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connected := make(map[string]bool)
	for _, e := range s.edges {
		if s.nodes[e.Source] != nil && s.nodes[e.Target] != nil {
			connected[e.Source] = true
			connected[e.Target] = true
		}
	}
	var orphans []Node
	for _, id := range s.order {
		if !connected[id] {
			orphans = append(orphans, s.nodes[id].clone())
		}
	}
	return orphans
}

// FindByTitle returns the first node whose title matches case-insensitively.
func (s *Store) FindByTitle(title string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if strings.EqualFold(s.nodes[id].Title, title) {
			return s.nodes[id].clone(), true
		}
	}
	return Node{}, false
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
