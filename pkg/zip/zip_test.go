package zip

import (
	stdzip "archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveRoundTrip(t *testing.T) {
	data, err := Archive([]Entry{
		{Name: "one.png", MIME: "image/png", Data: []byte("png-bytes")},
		{Name: "two.mp4", MIME: "video/mp4", Data: []byte("mp4-bytes")},
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	zr, err := stdzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("files = %d, want 2", len(zr.File))
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	if string(content) != "png-bytes" {
		t.Fatalf("content = %q", content)
	}
}

func TestArchiveEmpty(t *testing.T) {
	data, err := Archive(nil)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := stdzip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("empty archive unreadable: %v", err)
	}
}
