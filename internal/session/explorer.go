// Package session ties the graph store, layout engine, viewport and scraper
// into one exploring session.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kittclouds/wikigraph/internal/logger"
	"github.com/kittclouds/wikigraph/internal/store"
	"github.com/kittclouds/wikigraph/pkg/article"
	"github.com/kittclouds/wikigraph/pkg/graph"
	"github.com/kittclouds/wikigraph/pkg/layout"
	"github.com/kittclouds/wikigraph/pkg/query"
	"github.com/kittclouds/wikigraph/pkg/rank"
	"github.com/kittclouds/wikigraph/pkg/scrape"
	"github.com/kittclouds/wikigraph/pkg/snapshot"
	"github.com/kittclouds/wikigraph/pkg/viewport"
)

var (
	// ErrCouldNotLoad wraps every failure to turn a URL into a merged article.
	ErrCouldNotLoad = errors.New("could not load article")
	// ErrNoHistory is returned by checkpoint operations without a history store.
	ErrNoHistory = errors.New("no snapshot history configured")
	// ErrUnknownNode is returned when an operation names a node that is not in the graph.
	ErrUnknownNode = errors.New("unknown node")
)

// Options configures an Explorer.
type Options struct {
	Scraper scrape.Scraper
	History store.Storer // optional
	Layout  layout.Config
}

// Explorer is one user's exploration: the graph, the selected article, the
// search term and the derived layout and viewport.
type Explorer struct {
	mu sync.Mutex

	graph    *graph.Store
	engine   *layout.Engine
	viewport *viewport.Controller
	scraper  scrape.Scraper
	history  store.Storer

	active string
	search string
	view   query.View
}

// New creates an empty explorer.
func New(opts Options) *Explorer {
	return &Explorer{
		graph:    graph.NewStore(),
		engine:   layout.New(opts.Layout),
		viewport: viewport.New(),
		scraper:  opts.Scraper,
		history:  opts.History,
	}
}

// Graph returns the underlying store.
func (e *Explorer) Graph() *graph.Store { return e.graph }

// Layout returns the layout engine.
func (e *Explorer) Layout() *layout.Engine { return e.engine }

// Viewport returns the pan/zoom controller.
func (e *Explorer) Viewport() *viewport.Controller { return e.viewport }

// Visit scrapes url and merges it, linked from the active node. The new
// article becomes active. The scrape runs without holding the session lock,
// so concurrent visits both complete and both merge.
func (e *Explorer) Visit(ctx context.Context, url string) (graph.MergeResult, error) {
	if e.scraper == nil {
		return graph.MergeResult{}, fmt.Errorf("%w: no scraper configured", ErrCouldNotLoad)
	}
	if err := scrape.ValidateURL(url); err != nil {
		logger.Warn("Rejected article URL", "url", url)
		return graph.MergeResult{}, fmt.Errorf("%w: %w", ErrCouldNotLoad, err)
	}
	record, err := e.scraper.Scrape(ctx, url)
	if err != nil {
		logger.Warn("Failed to load article", "url", url, "error", err)
		return graph.MergeResult{}, fmt.Errorf("%w: %w", ErrCouldNotLoad, err)
	}
	return e.VisitRecord(record, url)
}

// VisitNode revisits an existing node through its stored URL.
func (e *Explorer) VisitNode(ctx context.Context, id string) (graph.MergeResult, error) {
	node, ok := e.graph.Node(id)
	if !ok {
		return graph.MergeResult{}, fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	return e.Visit(ctx, node.URL)
}

// VisitRecord merges an already scraped record as if it had been visited
// from originURL.
func (e *Explorer) VisitRecord(record article.Record, originURL string) (graph.MergeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mergeLocked(record, originURL, e.active)
}

func (e *Explorer) mergeLocked(record article.Record, originURL, activeID string) (graph.MergeResult, error) {
	res, err := e.graph.Merge(record, originURL, activeID)
	if err != nil {
		logger.Warn("Rejected scraped article", "url", originURL, "error", err)
		return res, fmt.Errorf("%w: %w", ErrCouldNotLoad, err)
	}
	e.active = res.SourceID
	e.refreshLocked()
	logger.Info("Merged article", "id", res.SourceID, "nodesAdded", res.NodesAdded, "edgesAdded", res.EdgesAdded)
	return res, nil
}

// Select makes id the active node. An empty id clears the selection.
func (e *Explorer) Select(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id != "" {
		if _, ok := e.graph.Node(id); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownNode, id)
		}
	}
	e.active = id
	return nil
}

// Active returns the selected node id, or "".
func (e *Explorer) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// SetSearch changes the filter term and resyncs the layout.
func (e *Explorer) SetSearch(term string) query.View {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.search = term
	e.refreshLocked()
	return e.copyView()
}

// Search returns the current filter term.
func (e *Explorer) Search() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.search
}

// View returns the filtered subgraph currently laid out.
func (e *Explorer) View() query.View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.copyView()
}

func (e *Explorer) copyView() query.View {
	return e.view.Clone()
}

// RemoveNode deletes a node and its edges.
func (e *Explorer) RemoveNode(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.graph.RemoveNode(id) {
		return false
	}
	if e.active == id {
		e.active = ""
	}
	e.refreshLocked()
	logger.Debug("Removed node", "id", id)
	return true
}

// RemoveLink drops one link from a node together with the edges it justified.
func (e *Explorer) RemoveLink(nodeID string, link article.LinkRef) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.graph.RemoveLink(nodeID, link) {
		return false
	}
	e.refreshLocked()
	return true
}

// Refresh refilters the graph and resyncs the layout.
func (e *Explorer) Refresh() query.View {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshLocked()
	return e.copyView()
}

// refreshLocked recomputes the view and syncs the engine. The layout is
// reheated only when the visible structure changed; the viewport transform
// is never touched.
func (e *Explorer) refreshLocked() {
	view := query.Filter(e.graph.Nodes(), e.graph.Edges(), e.search)
	changed := !sameStructure(e.view, view)
	e.view = view
	e.engine.Sync(view.Nodes, view.Edges)
	if changed {
		e.engine.Reheat()
	}
}

func sameStructure(a, b query.View) bool {
	if len(a.Nodes) != len(b.Nodes) || len(a.Edges) != len(b.Edges) {
		return false
	}
	for i := range a.Nodes {
		if a.Nodes[i].ID != b.Nodes[i].ID {
			return false
		}
	}
	for i := range a.Edges {
		if a.Edges[i].Source != b.Edges[i].Source || a.Edges[i].Target != b.Edges[i].Target {
			return false
		}
	}
	return true
}

// Reset starts a new, empty graph.
func (e *Explorer) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.graph.Reset()
	e.active = ""
	e.refreshLocked()
	e.viewport.Reset()
}

// Related lists other nodes whose titles occur in the summary of id.
func (e *Explorer) Related(id string) ([]query.Mention, error) {
	node, ok := e.graph.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	return query.Mentions(e.graph.Nodes(), node.Summary, id), nil
}

// Rank scores every article against a free-text query, best first.
func (e *Explorer) Rank(q string, limit int) []rank.Result {
	return rank.Build(e.graph.Nodes(), rank.DefaultConfig()).Search(q, limit)
}

// Document returns the graph as a snapshot document.
func (e *Explorer) Document() snapshot.Document {
	return snapshot.FromState(e.graph.State())
}

// Export writes the graph as a snapshot, zstd compressed when compress is set.
func (e *Explorer) Export(w io.Writer, compress bool) error {
	doc := e.Document()
	if compress {
		return snapshot.EncodeCompressed(w, doc)
	}
	return snapshot.Encode(w, doc)
}

// Import replaces the graph with the snapshot read from r. Plain and zstd
// documents are both accepted. On error the graph is unchanged.
func (e *Explorer) Import(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	doc, err := snapshot.Unmarshal(data)
	if err != nil {
		logger.Warn("Rejected snapshot", "error", err)
		return err
	}
	e.Load(doc)
	return nil
}

// Load replaces the graph with doc.
func (e *Explorer) Load(doc snapshot.Document) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.graph.Replace(doc.State())
	e.active = ""
	e.refreshLocked()
	e.engine.Reheat()
	logger.Info("Loaded snapshot", "nodes", len(doc.Nodes), "edges", len(doc.Edges))
}

// Checkpoint stores the current graph as the next version of name.
func (e *Explorer) Checkpoint(name, reason string) (*store.Snapshot, error) {
	if e.history == nil {
		return nil, ErrNoHistory
	}
	doc := e.Document()
	payload, err := snapshot.Marshal(doc, true)
	if err != nil {
		return nil, err
	}
	snap := &store.Snapshot{
		Name:      name,
		Payload:   payload,
		NodeCount: len(doc.Nodes),
		EdgeCount: len(doc.Edges),
	}
	if err := e.history.SaveSnapshot(snap, reason); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	logger.Info("Saved checkpoint", "name", name, "version", snap.Version)
	return snap, nil
}

// Restore loads a checkpoint into the graph. Version 0 means the current
// version; an older version is first copied forward as the new current one.
func (e *Explorer) Restore(name string, version int) (*store.Snapshot, error) {
	if e.history == nil {
		return nil, ErrNoHistory
	}
	var snap *store.Snapshot
	var err error
	if version <= 0 {
		snap, err = e.CheckpointVersion(name, 0)
	} else {
		snap, err = e.history.RestoreSnapshotVersion(name, version)
	}
	if err != nil {
		return nil, err
	}

	doc, err := snapshot.Unmarshal(snap.Payload)
	if err != nil {
		return nil, err
	}
	e.Load(doc)
	return snap, nil
}

// Checkpoints lists the current version of every stored checkpoint.
func (e *Explorer) Checkpoints() ([]*store.Snapshot, error) {
	if e.history == nil {
		return nil, ErrNoHistory
	}
	return e.history.ListSnapshots()
}

// History lists every version of one checkpoint, newest first.
func (e *Explorer) History(name string) ([]*store.Snapshot, error) {
	if e.history == nil {
		return nil, ErrNoHistory
	}
	return e.history.ListSnapshotVersions(name)
}

// RestoreAt loads the version of name that was current at the given time.
// An old version is copied forward as the new current one.
func (e *Explorer) RestoreAt(name string, at time.Time) (*store.Snapshot, error) {
	snap, err := e.CheckpointAt(name, at)
	if err != nil {
		return nil, err
	}
	if snap.IsCurrent {
		return e.Restore(name, 0)
	}
	return e.Restore(name, snap.Version)
}

// CheckpointVersion returns one stored version without loading it.
// Version 0 means the current version.
func (e *Explorer) CheckpointVersion(name string, version int) (*store.Snapshot, error) {
	if e.history == nil {
		return nil, ErrNoHistory
	}
	var snap *store.Snapshot
	var err error
	if version <= 0 {
		snap, err = e.history.GetSnapshot(name)
	} else {
		snap, err = e.history.GetSnapshotVersion(name, version)
	}
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s v%d", store.ErrSnapshotNotFound, name, version)
	}
	return snap, nil
}

// CheckpointAt returns the version of name that was current at the given time.
func (e *Explorer) CheckpointAt(name string, at time.Time) (*store.Snapshot, error) {
	if e.history == nil {
		return nil, ErrNoHistory
	}
	snap, err := e.history.GetSnapshotAtTime(name, at.UnixMilli())
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s at %s", store.ErrSnapshotNotFound, name, at.Format(time.RFC3339))
	}
	return snap, nil
}

// DeleteCheckpoint removes every version of name.
func (e *Explorer) DeleteCheckpoint(name string) error {
	if _, err := e.CheckpointVersion(name, 0); err != nil {
		return err
	}
	if err := e.history.DeleteSnapshot(name); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	logger.Info("Deleted checkpoint", "name", name)
	return nil
}

// CountCheckpoints returns the number of checkpoint names.
func (e *Explorer) CountCheckpoints() (int, error) {
	if e.history == nil {
		return 0, ErrNoHistory
	}
	return e.history.CountSnapshots()
}

// Stats summarizes the session.
type Stats struct {
	Nodes           int     `json:"nodes"`
	Edges           int     `json:"edges"`
	VisibleNodes    int     `json:"visibleNodes"`
	VisibleEdges    int     `json:"visibleEdges"`
	Orphans         int     `json:"orphans"`
	CrossReferences int     `json:"crossReferences"`
	Active          string  `json:"active"`
	Search          string  `json:"search"`
	Alpha           float64 `json:"alpha"`
}

// Stats returns counts for the graph and the current view.
func (e *Explorer) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Nodes:           e.graph.NodeCount(),
		Edges:           e.graph.EdgeCount(),
		VisibleNodes:    len(e.view.Nodes),
		VisibleEdges:    len(e.view.Edges),
		Orphans:         len(e.graph.OrphanNodes()),
		CrossReferences: e.graph.Index().Len(),
		Active:          e.active,
		Search:          e.search,
		Alpha:           e.engine.Alpha(),
	}
}

// ExportBytes is Export into memory.
func (e *Explorer) ExportBytes(compress bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Export(&buf, compress); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
