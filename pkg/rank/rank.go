// Package rank scores articles against a free-text query with BM25F over
// the title and summary fields, plus a proximity boost for query terms that
// land in the same part of the summary.
package rank

import (
	"cmp"
	"math"
	"math/bits"
	"slices"
	"strings"
	"unicode"

	"github.com/kittclouds/wikigraph/pkg/graph"
)

// Field names
const (
	FieldTitle   = "title"
	FieldSummary = "summary"
)

// maxSegments is the width of a term's position mask.
const maxSegments = 32

// FieldParam weights one field and sets its length normalization.
type FieldParam struct {
	Weight float64 `json:"weight"`
	B      float64 `json:"b"`
}

// Config holds scoring parameters
type Config struct {
	K1             float64               `json:"k1"`
	ProximityAlpha float64               `json:"proximityAlpha"`
	Fields         map[string]FieldParam `json:"fields"`
}

// DefaultConfig weights title hits twice as much as summary hits.
func DefaultConfig() Config {
	return Config{
		K1:             1.2,
		ProximityAlpha: 0.5,
		Fields: map[string]FieldParam{
			FieldTitle:   {Weight: 2.0, B: 0.5},
			FieldSummary: {Weight: 1.0, B: 0.75},
		},
	}
}

// Result is a scored article.
type Result struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type posting struct {
	tf      map[string]int // field -> term frequency
	segMask uint32         // summary segments containing the term
}

type document struct {
	fieldLen map[string]int
}

// Index is an immutable term index over a set of articles.
type Index struct {
	cfg      Config
	docs     map[string]document
	postings map[string]map[string]posting // term -> doc id -> posting
	avgLen   map[string]float64
}

// Build indexes the title and summary of every node.
func Build(nodes []graph.Node, cfg Config) *Index {
	if cfg.Fields == nil {
		cfg.Fields = DefaultConfig().Fields
	}
	idx := &Index{
		cfg:      cfg,
		docs:     make(map[string]document, len(nodes)),
		postings: make(map[string]map[string]posting),
		avgLen:   make(map[string]float64),
	}
	totals := make(map[string]int)
	for _, n := range nodes {
		if _, dup := idx.docs[n.ID]; dup {
			continue
		}
		doc := document{fieldLen: make(map[string]int)}
		idx.addField(n.ID, FieldTitle, Tokenize(n.Title), doc)
		idx.addField(n.ID, FieldSummary, Tokenize(n.Summary), doc)
		idx.docs[n.ID] = doc
		for f, l := range doc.fieldLen {
			totals[f] += l
		}
	}
	if len(idx.docs) > 0 {
		for f, total := range totals {
			idx.avgLen[f] = float64(total) / float64(len(idx.docs))
		}
	}
	return idx
}

func (x *Index) addField(id, field string, tokens []string, doc document) {
	doc.fieldLen[field] = len(tokens)
	for pos, term := range tokens {
		docs := x.postings[term]
		if docs == nil {
			docs = make(map[string]posting)
			x.postings[term] = docs
		}
		p, ok := docs[id]
		if !ok {
			p = posting{tf: make(map[string]int)}
		}
		p.tf[field]++
		if field == FieldSummary {
			p.segMask |= 1 << segment(pos, len(tokens))
		}
		docs[id] = p
	}
}

func segment(pos, length int) uint {
	if length <= 0 {
		return 0
	}
	return uint(pos * maxSegments / length)
}

// Len returns the number of indexed articles.
func (x *Index) Len() int {
	return len(x.docs)
}

// Search returns up to limit articles with a positive score, best first.
// Ties order by id. A limit of zero or less returns every match.
func (x *Index) Search(query string, limit int) []Result {
	terms := uniqueTerms(Tokenize(query))
	candidates := make(map[string]bool)
	for _, t := range terms {
		for id := range x.postings[t] {
			candidates[id] = true
		}
	}

	results := make([]Result, 0, len(candidates))
	for id := range candidates {
		if s := x.score(terms, id); s > 0 {
			results = append(results, Result{ID: id, Score: s})
		}
	}
	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Score returns the relevance of one article, or 0 when unknown.
func (x *Index) Score(query, id string) float64 {
	return x.score(uniqueTerms(Tokenize(query)), id)
}

func (x *Index) score(terms []string, id string) float64 {
	if _, ok := x.docs[id]; !ok {
		return 0
	}
	total := 0.0
	var masks []uint32
	for _, t := range terms {
		p, ok := x.postings[t][id]
		if !ok {
			continue
		}
		total += idf(float64(len(x.docs)), len(x.postings[t])) * saturate(x.weightedFreq(p, id), x.cfg.K1)
		if p.segMask != 0 {
			masks = append(masks, p.segMask)
		}
	}
	return total * proximity(masks, x.cfg.ProximityAlpha)
}

func (x *Index) weightedFreq(p posting, id string) float64 {
	sum := 0.0
	for field, tf := range p.tf {
		param, ok := x.cfg.Fields[field]
		if !ok {
			param = FieldParam{Weight: 1, B: 0.75}
		}
		sum += param.Weight * normalizedTF(tf, x.docs[id].fieldLen[field], x.avgLen[field], param.B)
	}
	return sum
}

// idf is ln(1 + (N - df + 0.5) / (df + 0.5)).
func idf(totalDocs float64, docFreq int) float64 {
	if docFreq == 0 {
		return 0
	}
	df := float64(docFreq)
	ratio := (totalDocs - df + 0.5) / (df + 0.5)
	if ratio < 0 {
		ratio = 0
	}
	return math.Log(1 + ratio)
}

func normalizedTF(tf, fieldLen int, avgFieldLen, b float64) float64 {
	if avgFieldLen <= 0 || tf == 0 {
		return 0
	}
	denom := 1 - b + b*(float64(fieldLen)/avgFieldLen)
	if denom <= 0 {
		return 0
	}
	return float64(tf) / denom
}

// saturate is ((k1 + 1) * score) / (k1 + score).
func saturate(score, k1 float64) float64 {
	if score <= 0 {
		return 0
	}
	if k1 <= 0 {
		return score
	}
	return ((k1 + 1) * score) / (k1 + score)
}

// proximity is 1 + alpha * the share of summary segments common to every
// matched term, relative to the rarest term's spread.
func proximity(masks []uint32, alpha float64) float64 {
	if len(masks) < 2 || alpha <= 0 {
		return 1
	}
	common := masks[0]
	narrowest := bits.OnesCount32(masks[0])
	for _, m := range masks[1:] {
		common &= m
		narrowest = min(narrowest, bits.OnesCount32(m))
	}
	if common == 0 || narrowest == 0 {
		return 1
	}
	return 1 + alpha*float64(bits.OnesCount32(common))/float64(narrowest)
}

// Tokenize lowercases text and splits it on anything that is not a letter
// or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
