package main

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kittclouds/wikigraph/internal/config"
	"github.com/kittclouds/wikigraph/internal/logger"
	"github.com/kittclouds/wikigraph/internal/session"
	"github.com/kittclouds/wikigraph/internal/store"
)

// Command flags
var (
	crawlDepth       int
	crawlConcurrency int
	exportCompress   bool
	layoutTicks      int
	searchLimit      int
	historyReason    string
	historyVersion   int
	historyAt        string
)

var visitCmd = &cobra.Command{
	Use:   "visit <url>...",
	Short: "Scrape articles and merge them into the graph",
	Long: `Scrape each URL in order and merge it into the graph.

Each article is merged with the previous one as the active node, the same
way clicking through links does.

Examples:
  wikigraph visit https://en.wikipedia.org/wiki/Prunus_virginiana
  wikigraph visit https://en.wikipedia.org/wiki/Prunus https://en.wikipedia.org/wiki/Genus`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVisit,
}

var crawlCmd = &cobra.Command{
	Use:   "crawl <url>",
	Short: "Visit an article and follow its links breadth first",
	Args:  cobra.ExactArgs(1),
	RunE:  runCrawl,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the graph with a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the graph as a snapshot (stdout when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Run the force simulation and print node positions",
	RunE:  runLayout,
}

var filterCmd = &cobra.Command{
	Use:   "filter <term>",
	Short: "List the articles whose title contains term",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilter,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Rank articles by relevance to a free-text query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph statistics",
	RunE:  runStats,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Versioned checkpoints of the graph",
}

var historyListCmd = &cobra.Command{
	Use:   "list [name]",
	Short: "List checkpoints, or every version of one checkpoint",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryList,
}

var historySaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Store the graph as the next version of a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistorySave,
}

var historyRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Load a checkpoint into the working snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryRestore,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one version of a checkpoint without loading it",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete every version of a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var configCmd = &cobra.Command{
	Use:   "init-config <file>",
	Short: "Write the default configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
		return nil
	},
}

func init() {
	crawlCmd.Flags().IntVar(&crawlDepth, "depth", 1, "link levels to follow")
	crawlCmd.Flags().IntVar(&crawlConcurrency, "concurrency", session.DefaultCrawlConcurrency, "parallel fetches per level")
	exportCmd.Flags().BoolVar(&exportCompress, "compress", false, "zstd compress the output")
	layoutCmd.Flags().IntVar(&layoutTicks, "ticks", 300, "maximum simulation steps")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results (0 = all)")
	historySaveCmd.Flags().StringVar(&historyReason, "reason", "", "change reason stored with the version")
	for _, c := range []*cobra.Command{historyRestoreCmd, historyShowCmd} {
		c.Flags().IntVar(&historyVersion, "version", 0, "version (0 = current)")
		c.Flags().StringVar(&historyAt, "at", "", "the version current at this RFC 3339 time")
	}

	historyCmd.AddCommand(historyListCmd, historySaveCmd, historyRestoreCmd, historyShowCmd, historyDeleteCmd)
	rootCmd.AddCommand(visitCmd, crawlCmd, importCmd, exportCmd, layoutCmd, filterCmd, searchCmd, statsCmd, historyCmd, configCmd)
}

func runVisit(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	var errs []error
	for _, url := range args {
		res, err := a.explorer.Visit(cmd.Context(), url)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", url, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "%s: +%d nodes, +%d edges\n", res.SourceID, res.NodesAdded, res.EdgesAdded)
	}
	if err := a.Save(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.explorer.Crawl(cmd.Context(), args[0], crawlDepth, crawlConcurrency)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Visited %d articles (%d failed): +%d nodes, +%d edges\n",
		res.Visited, res.Failed, res.NodesAdded, res.EdgesAdded)
	return a.Save()
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	if err := a.explorer.Import(f); err != nil {
		return err
	}
	st := a.explorer.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d nodes, %d edges\n", st.Nodes, st.Edges)
	return a.Save()
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		return a.explorer.Export(cmd.OutOrStdout(), exportCompress)
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := a.explorer.Export(f, exportCompress); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runLayout(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	engine := a.explorer.Layout()
	start := time.Now()
	steps := engine.Settle(layoutTicks)
	logger.Debug("Layout settled", "steps", steps, "alpha", engine.Alpha(), "took", time.Since(start))

	type nodePosition struct {
		ID string  `json:"id"`
		X  float64 `json:"x"`
		Y  float64 `json:"y"`
	}
	positions := engine.Positions()
	out := make([]nodePosition, 0, len(positions))
	for _, id := range engine.IDs() {
		p := positions[id]
		out = append(out, nodePosition{ID: id, X: p.X, Y: p.Y})
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func runFilter(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	view := a.explorer.SetSearch(args[0])
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, n := range view.Nodes {
		fmt.Fprintf(w, "%s\t%s\n", n.ID, n.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d articles, %d edges\n",
		len(view.Nodes), a.explorer.Graph().NodeCount(), len(view.Edges))
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	results := a.explorer.Rank(strings.Join(args, " "), searchLimit)
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matches")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(w, "%.3f\t%s\n", r.Score, r.ID)
	}
	return w.Flush()
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	st := a.explorer.Stats()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Nodes:\t%d\n", st.Nodes)
	fmt.Fprintf(w, "Edges:\t%d\n", st.Edges)
	fmt.Fprintf(w, "Orphans:\t%d\n", st.Orphans)
	fmt.Fprintf(w, "Cross references:\t%d\n", st.CrossReferences)
	if top := topByDegree(a.explorer.Graph().DegreeCentrality(), 5); len(top) > 0 {
		fmt.Fprintf(w, "Most linked:\t%s\n", top[0])
		for _, id := range top[1:] {
			fmt.Fprintf(w, "\t%s\n", id)
		}
	}
	return w.Flush()
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	var snaps []*store.Snapshot
	if len(args) == 1 {
		snaps, err = a.explorer.History(args[0])
	} else {
		snaps, err = a.explorer.Checkpoints()
	}
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tNODES\tEDGES\tCURRENT\tREASON")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n",
			s.Name, s.Version, s.NodeCount, s.EdgeCount, strconv.FormatBool(s.IsCurrent), s.ChangeReason)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(args) == 0 {
		count, err := a.explorer.CountCheckpoints()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Checkpoints: %d\n", count)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	at, useAt, err := historyTime()
	if err != nil {
		return err
	}
	var snap *store.Snapshot
	if useAt {
		snap, err = a.explorer.CheckpointAt(args[0], at)
	} else {
		snap, err = a.explorer.CheckpointVersion(args[0], historyVersion)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", snap.Name)
	fmt.Fprintf(w, "Version:\t%d\n", snap.Version)
	fmt.Fprintf(w, "Nodes:\t%d\n", snap.NodeCount)
	fmt.Fprintf(w, "Edges:\t%d\n", snap.EdgeCount)
	fmt.Fprintf(w, "Current:\t%t\n", snap.IsCurrent)
	fmt.Fprintf(w, "Valid from:\t%s\n", time.UnixMilli(snap.ValidFrom).Format(time.RFC3339))
	if snap.ValidTo != nil {
		fmt.Fprintf(w, "Valid to:\t%s\n", time.UnixMilli(*snap.ValidTo).Format(time.RFC3339))
	}
	if snap.ChangeReason != "" {
		fmt.Fprintf(w, "Reason:\t%s\n", snap.ChangeReason)
	}
	return w.Flush()
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.explorer.DeleteCheckpoint(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func runHistorySave(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.explorer.Checkpoint(args[0], historyReason)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s v%d (%d nodes, %d edges)\n", snap.Name, snap.Version, snap.NodeCount, snap.EdgeCount)
	return nil
}

func runHistoryRestore(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	at, useAt, err := historyTime()
	if err != nil {
		return err
	}
	var snap *store.Snapshot
	if useAt {
		snap, err = a.explorer.RestoreAt(args[0], at)
	} else {
		snap, err = a.explorer.Restore(args[0], historyVersion)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %s v%d (%d nodes, %d edges)\n", snap.Name, snap.Version, snap.NodeCount, snap.EdgeCount)
	return a.Save()
}

// historyTime parses --at; ok is false when it was not given.
func historyTime() (at time.Time, ok bool, err error) {
	if historyAt == "" {
		return time.Time{}, false, nil
	}
	if historyVersion != 0 {
		return time.Time{}, false, errors.New("--version and --at are mutually exclusive")
	}
	at, err = time.Parse(time.RFC3339, historyAt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid --at: %w", err)
	}
	return at, true, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// topByDegree returns up to n ids with the highest degree, ties by id.
func topByDegree(degree map[string]float64, n int) []string {
	ids := make([]string, 0, len(degree))
	for id, d := range degree {
		if d > 0 {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(degree[b], degree[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
