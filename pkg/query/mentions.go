package query

import (
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/kittclouds/wikigraph/pkg/graph"
)

// minMentionLen skips titles too short to be meaningful in running text.
const minMentionLen = 3

// Mention is the first occurrence of a known article title inside a text.
type Mention struct {
	NodeID string `json:"nodeId"`
	Title  string `json:"title"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// Mentions scans text for the titles of nodes, whole words only, ignoring
// ASCII case. Each node is reported once, in order of first appearance.
// The node named by exclude (usually the text's own article) is skipped.
func Mentions(nodes []graph.Node, text, exclude string) []Mention {
	var patterns []string
	var patternIDs [][]string
	index := make(map[string]int)
	titles := make(map[string]string, len(nodes))

	for _, n := range nodes {
		if n.ID == exclude {
			continue
		}
		title := strings.TrimSpace(n.Title)
		if len(title) < minMentionLen {
			continue
		}
		titles[n.ID] = n.Title
		key := strings.ToLower(title)
		if i, ok := index[key]; ok {
			patternIDs[i] = append(patternIDs[i], n.ID)
			continue
		}
		index[key] = len(patterns)
		patterns = append(patterns, title)
		patternIDs = append(patternIDs, []string{n.ID})
	}
	if len(patterns) == 0 || text == "" {
		return nil
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  true,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	ac := builder.Build(patterns)

	seen := make(map[string]bool)
	var result []Mention
	for _, m := range ac.FindAll(text) {
		for _, id := range patternIDs[m.Pattern()] {
			if seen[id] {
				continue
			}
			seen[id] = true
			result = append(result, Mention{
				NodeID: id,
				Title:  titles[id],
				Start:  m.Start(),
				End:    m.End(),
			})
		}
	}
	return result
}
