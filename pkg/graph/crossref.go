package graph

import "github.com/kittclouds/wikigraph/pkg/article"

// CrossReferenceIndex maps a normalized link title to the ordered set of
// article ids that have referenced it. Buckets only grow: removing a node
// from the store leaves its id in every bucket it was registered under.
type CrossReferenceIndex struct {
	buckets map[string][]string
	// keys in first-seen order, so Entries and snapshots are stable
	keys []string
}

// NewCrossReferenceIndex creates an empty index.
func NewCrossReferenceIndex() *CrossReferenceIndex {
	return &CrossReferenceIndex{buckets: make(map[string][]string)}
}

// NewCrossReferenceIndexFrom rebuilds an index from serialized entries.
// Keys are renormalized; ids are deduplicated keeping first occurrence.
func NewCrossReferenceIndexFrom(entries map[string][]string) *CrossReferenceIndex {
	idx := NewCrossReferenceIndex()
	for _, title := range sortedKeys(entries) {
		for _, id := range entries[title] {
			idx.Register(title, id)
		}
	}
	return idx
}

// Register appends id to the bucket for title if it is not already there.
// Blank titles or ids are ignored.
func (x *CrossReferenceIndex) Register(title, id string) bool {
	key := article.TitleKey(title)
	if key == "" || id == "" {
		return false
	}
	bucket, ok := x.buckets[key]
	if !ok {
		x.keys = append(x.keys, key)
	}
	for _, existing := range bucket {
		if existing == id {
			return false
		}
	}
	x.buckets[key] = append(bucket, id)
	return true
}

// Lookup returns a copy of the ids registered under title, in registration order.
func (x *CrossReferenceIndex) Lookup(title string) []string {
	bucket := x.buckets[article.TitleKey(title)]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]string, len(bucket))
	copy(out, bucket)
	return out
}

// Len returns the number of distinct title keys.
func (x *CrossReferenceIndex) Len() int {
	return len(x.buckets)
}

// Entries returns a deep copy of the index for serialization.
func (x *CrossReferenceIndex) Entries() map[string][]string {
	out := make(map[string][]string, len(x.buckets))
	for _, key := range x.keys {
		ids := make([]string, len(x.buckets[key]))
		copy(ids, x.buckets[key])
		out[key] = ids
	}
	return out
}

func (x *CrossReferenceIndex) clone() *CrossReferenceIndex {
	out := &CrossReferenceIndex{
		buckets: make(map[string][]string, len(x.buckets)),
		keys:    append([]string(nil), x.keys...),
	}
	for k, ids := range x.buckets {
		out.buckets[k] = append([]string(nil), ids...)
	}
	return out
}
