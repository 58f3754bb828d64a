//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"syscall/js"

	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/indexeddb"

	"github.com/kittclouds/wikigraph/internal/logger"
	"github.com/kittclouds/wikigraph/internal/logger/console"
	"github.com/kittclouds/wikigraph/internal/session"
	"github.com/kittclouds/wikigraph/internal/store"
	"github.com/kittclouds/wikigraph/pkg/article"
	"github.com/kittclouds/wikigraph/pkg/layout"
	"github.com/kittclouds/wikigraph/pkg/sab"
	"github.com/kittclouds/wikigraph/pkg/snapshot"
	"github.com/kittclouds/wikigraph/pkg/viewport"
)

// Version info
const Version = "0.1.0"

const (
	idbName         = "wikigraph"
	defaultSnapshot = "graph.json.zst"
)

// Global state
var (
	explorer *session.Explorer
	buffer   *sab.SharedBuffer

	fsOnce sync.Once
	idbFS  hackpadfs.FS
	idbErr error
)

func main() {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Output:      os.Stdout,
		Prefix:      "WikiGraph",
		NoTimestamp: true,
	}))

	explorer = newExplorer(layout.Config{Params: layout.DefaultParams()})
	logger.Info("WASM Ready", "version", Version)

	// Register exports
	js.Global().Set("WikiGraph", js.ValueOf(map[string]interface{}{
		"version":    js.FuncOf(getVersion),
		"initialize": js.FuncOf(initialize),
		// Graph
		"merge":       js.FuncOf(merge),
		"visitRecord": js.FuncOf(visitRecord),
		"select":      js.FuncOf(selectNode),
		"filter":      js.FuncOf(filter),
		"removeNode":  js.FuncOf(removeNode),
		"removeLink":  js.FuncOf(removeLink),
		"related":     js.FuncOf(related),
		"search":      js.FuncOf(search),
		"stats":       js.FuncOf(stats),
		// Snapshots
		"exportSnapshot": js.FuncOf(exportSnapshot),
		"importSnapshot": js.FuncOf(importSnapshot),
		"saveSnapshot":   js.FuncOf(saveSnapshot),
		"loadSnapshot":   js.FuncOf(loadSnapshot),
		// Layout
		"tick":         js.FuncOf(tick),
		"positions":    js.FuncOf(positions),
		"arc":          js.FuncOf(arc),
		"setParameter": js.FuncOf(setParameter),
		"pin":          js.FuncOf(pin),
		"unpin":        js.FuncOf(unpin),
		"attachBuffer": js.FuncOf(attachBuffer),
		// Viewport
		"pan":       js.FuncOf(pan),
		"zoom":      js.FuncOf(zoom),
		"transform": js.FuncOf(transform),
	}))

	select {}
}

// History lives in memory; SQLiteStore is excluded from js builds.
func newExplorer(cfg layout.Config) *session.Explorer {
	return session.New(session.Options{
		History: store.NewMemStore(),
		Layout:  cfg,
	})
}

func getVersion(this js.Value, args []js.Value) interface{} {
	return Version
}

// initialize recreates the session.
// Args: [configJSON string (optional): {width, height, seed, params}]
func initialize(this js.Value, args []js.Value) interface{} {
	var cfg struct {
		Width  float64        `json:"width"`
		Height float64        `json:"height"`
		Seed   uint64         `json:"seed"`
		Params *layout.Params `json:"params"`
	}
	if len(args) > 0 && args[0].Type() == js.TypeString {
		if err := json.Unmarshal([]byte(args[0].String()), &cfg); err != nil {
			return errorResult("invalid config json: " + err.Error())
		}
	}
	params := layout.DefaultParams()
	if cfg.Params != nil {
		params = *cfg.Params
	}
	explorer = newExplorer(layout.Config{Width: cfg.Width, Height: cfg.Height, Seed: cfg.Seed, Params: params})
	return successResult("initialized")
}

// merge folds a record into the graph without changing the selection.
// Args: [recordJSON string, originURL string, activeID string]
func merge(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("merge requires 3 args: recordJSON, originURL, activeID")
	}
	var rec article.Record
	if err := json.Unmarshal([]byte(args[0].String()), &rec); err != nil {
		return errorResult("invalid record json: " + err.Error())
	}
	res, err := explorer.Graph().Merge(rec, args[1].String(), args[2].String())
	if err != nil {
		return errorResult(err.Error())
	}
	explorer.Refresh()
	return jsonResult(res)
}

// visitRecord merges a record fetched by the page and makes it active.
// Args: [recordJSON string, originURL string]
func visitRecord(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("visitRecord requires 2 args: recordJSON, originURL")
	}
	var rec article.Record
	if err := json.Unmarshal([]byte(args[0].String()), &rec); err != nil {
		return errorResult("invalid record json: " + err.Error())
	}
	res, err := explorer.VisitRecord(rec, args[1].String())
	if err != nil {
		return errorResult(err.Error())
	}
	publishEdges()
	return jsonResult(res)
}

// Args: [id string] ("" clears)
func selectNode(this js.Value, args []js.Value) interface{} {
	id := ""
	if len(args) > 0 {
		id = args[0].String()
	}
	if err := explorer.Select(id); err != nil {
		return errorResult(err.Error())
	}
	return successResult("selected")
}

// Args: [term string]
func filter(this js.Value, args []js.Value) interface{} {
	term := ""
	if len(args) > 0 {
		term = args[0].String()
	}
	view := explorer.SetSearch(term)
	publishEdges()
	return jsonResult(view)
}

// Args: [id string]
func removeNode(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("removeNode requires 1 arg: id")
	}
	if !explorer.RemoveNode(args[0].String()) {
		return errorResult("unknown node")
	}
	publishEdges()
	return successResult("removed")
}

// Args: [nodeID string, linkJSON string]
func removeLink(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("removeLink requires 2 args: nodeID, linkJSON")
	}
	var l article.LinkRef
	if err := json.Unmarshal([]byte(args[1].String()), &l); err != nil {
		return errorResult("invalid link json: " + err.Error())
	}
	if !explorer.RemoveLink(args[0].String(), l) {
		return errorResult("unknown link")
	}
	publishEdges()
	return successResult("removed")
}

// Args: [id string]
func related(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("related requires 1 arg: id")
	}
	mentions, err := explorer.Related(args[0].String())
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(mentions)
}

// Args: [query string, limit int (optional)]
func search(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("search requires 1 arg: query")
	}
	limit := 0
	if len(args) > 1 && args[1].Type() == js.TypeNumber {
		limit = args[1].Int()
	}
	return jsonResult(explorer.Rank(args[0].String(), limit))
}

func stats(this js.Value, args []js.Value) interface{} {
	return jsonResult(explorer.Stats())
}

func exportSnapshot(this js.Value, args []js.Value) interface{} {
	data, err := explorer.ExportBytes(false)
	if err != nil {
		return errorResult(err.Error())
	}
	return string(data)
}

// Args: [snapshotJSON string]
func importSnapshot(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("importSnapshot requires 1 arg: snapshotJSON")
	}
	doc, err := snapshot.Unmarshal([]byte(args[0].String()))
	if err != nil {
		return errorResult(err.Error())
	}
	explorer.Load(doc)
	publishEdges()
	return successResult("imported")
}

func getFS() (hackpadfs.FS, error) {
	fsOnce.Do(func() {
		idbFS, idbErr = indexeddb.NewFS(context.Background(), idbName, indexeddb.Options{})
	})
	return idbFS, idbErr
}

func pathArg(args []js.Value) string {
	if len(args) > 0 && args[0].Type() == js.TypeString && args[0].String() != "" {
		return args[0].String()
	}
	return defaultSnapshot
}

// saveSnapshot persists the graph to IndexedDB.
// Args: [path string (optional)]. Returns a Promise.
func saveSnapshot(this js.Value, args []js.Value) interface{} {
	path := pathArg(args)
	return promise(func() (interface{}, error) {
		fs, err := getFS()
		if err != nil {
			return nil, err
		}
		if err := snapshot.Save(fs, path, explorer.Document()); err != nil {
			return nil, err
		}
		return successResult("saved " + path), nil
	})
}

// loadSnapshot reads a graph saved by saveSnapshot.
// Args: [path string (optional)]. Returns a Promise.
func loadSnapshot(this js.Value, args []js.Value) interface{} {
	path := pathArg(args)
	return promise(func() (interface{}, error) {
		fs, err := getFS()
		if err != nil {
			return nil, err
		}
		doc, err := snapshot.Load(fs, path)
		if err != nil {
			return nil, err
		}
		explorer.Load(doc)
		publishEdges()
		return successResult("loaded " + path), nil
	})
}

// tick advances the simulation, publishing positions to the shared buffer
// when one is attached.
// Args: [n int (optional, default 1)]
func tick(this js.Value, args []js.Value) interface{} {
	n := 1
	if len(args) > 0 && args[0].Type() == js.TypeNumber {
		n = args[0].Int()
	}
	steps := explorer.Layout().Settle(n)
	if steps > 0 && buffer != nil {
		engine := explorer.Layout()
		if err := buffer.WritePositions(engine.IDs(), engine.Positions()); err != nil {
			logger.Warn("Positions frame dropped", "error", err)
		}
	}
	return steps
}

func positions(this js.Value, args []js.Value) interface{} {
	return jsonResult(explorer.Layout().Positions())
}

// Args: [sourceID string, targetID string]
func arc(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("arc requires 2 args: sourceID, targetID")
	}
	path, ok := explorer.Layout().Arc(args[0].String(), args[1].String())
	if !ok {
		return errorResult("unknown node")
	}
	return path
}

// Args: [name string, value number|string]; linkColor takes a color string.
func setParameter(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("setParameter requires 2 args: name, value")
	}
	engine := explorer.Layout()
	name := args[0].String()
	if name == "linkColor" {
		engine.SetLinkColor(args[1].String())
		return successResult("updated")
	}
	value, err := numberArg(args[1])
	if err != nil {
		return errorResult(err.Error())
	}
	if err := engine.SetParameter(name, value); err != nil {
		return errorResult(err.Error())
	}
	engine.Reheat()
	return successResult("updated")
}

// Args: [id string, x number, y number]
func pin(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("pin requires 3 args: id, x, y")
	}
	xy, err := numberArgs(args[1:3])
	if err != nil {
		return errorResult(err.Error())
	}
	if !explorer.Layout().Pin(args[0].String(), xy[0], xy[1]) {
		return errorResult("unknown node")
	}
	return successResult("pinned")
}

// Args: [id string]
func unpin(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("unpin requires 1 arg: id")
	}
	if !explorer.Layout().Unpin(args[0].String()) {
		return errorResult("unknown node")
	}
	return successResult("released")
}

// attachBuffer wires a SharedArrayBuffer for position and edge frames.
// Args: [sab SharedArrayBuffer]
func attachBuffer(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("attachBuffer requires 1 arg: SharedArrayBuffer")
	}
	buffer = sab.New(args[0])
	if buffer == nil {
		return errorResult("invalid SharedArrayBuffer")
	}
	publishEdges()
	return successResult("attached")
}

func publishEdges() {
	if buffer == nil {
		return
	}
	if err := buffer.WriteEdges(explorer.View().Edges); err != nil {
		logger.Warn("Edges frame dropped", "error", err)
	}
}

// Args: [dx number, dy number]
func pan(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("pan requires 2 args: dx, dy")
	}
	d, err := numberArgs(args[:2])
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(explorer.Viewport().Pan(d[0], d[1]))
}

// Args: [factor number, px number, py number]
func zoom(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("zoom requires 3 args: factor, px, py")
	}
	z, err := numberArgs(args[:3])
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(explorer.Viewport().ZoomAt(z[0], z[1], z[2]))
}

// transform returns the current transform, or sets it.
// Args: [transformJSON string (optional)]
func transform(this js.Value, args []js.Value) interface{} {
	vp := explorer.Viewport()
	if len(args) > 0 && args[0].Type() == js.TypeString {
		var t viewport.Transform
		if err := json.Unmarshal([]byte(args[0].String()), &t); err != nil {
			return errorResult("invalid transform json: " + err.Error())
		}
		vp.SetTransform(t)
	}
	return jsonResult(vp.Transform())
}

// numberArg accepts a JS number or numeric text.
func numberArg(v js.Value) (float64, error) {
	switch v.Type() {
	case js.TypeNumber:
		return v.Float(), nil
	case js.TypeString:
		return layout.ParseNumber(v.String())
	default:
		return 0, fmt.Errorf("%w: %s", layout.ErrInvalidNumber, v.Type())
	}
}

func numberArgs(args []js.Value) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := numberArg(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// promise runs fn off the event loop and settles a JS Promise with its result.
func promise(fn func() (interface{}, error)) js.Value {
	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolve, reject := args[0], args[1]
		go func() {
			result, err := fn()
			if err != nil {
				reject.Invoke(errorResult(err.Error()))
				return
			}
			resolve.Invoke(result)
		}()
		return nil
	})
	p := js.Global().Get("Promise").New(handler)
	handler.Release()
	return p
}

// Helper: Marshal a value to a JSON string
func jsonResult(v interface{}) interface{} {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return errorResult(err.Error())
	}
	return string(jsonBytes)
}

// Helper: Create error result
func errorResult(msg string) interface{} {
	result := map[string]interface{}{
		"error": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

// Helper: Create success result
func successResult(msg string) interface{} {
	result := map[string]interface{}{
		"success": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}
