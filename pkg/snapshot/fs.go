package snapshot

import (
	"fmt"
	"strings"

	"github.com/hack-pad/hackpadfs"
)

// CompressedExt marks snapshot files stored zstd compressed.
const CompressedExt = ".zst"

// Save writes doc to path on fsys. Paths ending in CompressedExt are
// compressed.
func Save(fsys hackpadfs.FS, path string, doc Document) error {
	data, err := Marshal(doc, strings.HasSuffix(path, CompressedExt))
	if err != nil {
		return err
	}
	if err := hackpadfs.WriteFullFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}

// Load reads and validates the document at path.
func Load(fsys hackpadfs.FS, path string) (Document, error) {
	data, err := hackpadfs.ReadFile(fsys, path)
	if err != nil {
		return Document{}, err
	}
	return Unmarshal(data)
}
