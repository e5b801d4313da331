// Package zip builds in-memory archives for bulk media downloads.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Entry is one file in the archive.
type Entry struct {
	Name string
	MIME string
	Data []byte
}

// Archive writes the entries into a zip held entirely in memory. Export
// bundles are bounded by the media list size, so no streaming is needed.
func Archive(entries []Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.Name)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}
