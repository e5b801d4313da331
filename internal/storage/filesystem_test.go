package storage

import (
	"context"
	"errors"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), "http://localhost:8080/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	key, err := fs.Put(ctx, "users/u1/image.png", []byte{0x89, 0x50, 0x4e, 0x47}, "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if key != "users/u1/image.png" {
		t.Fatalf("canonical key = %q", key)
	}

	obj, err := fs.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(obj.Data) != 4 {
		t.Fatalf("got %d bytes, want 4", len(obj.Data))
	}
	if obj.ContentType != "image/png" {
		t.Fatalf("content type = %q", obj.ContentType)
	}

	u, err := fs.SignedURL(ctx, key, 0)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if u != "http://localhost:8080/static/users/u1/image.png" {
		t.Fatalf("url = %q", u)
	}
}

func TestFileStoreMissingObject(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if _, err := fs.Get(ctx, "nope.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}
	if _, err := fs.SignedURL(ctx, "nope.png", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SignedURL err = %v, want ErrNotFound", err)
	}
	// Compensating deletes must tolerate already-missing blobs.
	if err := fs.Delete(ctx, "nope.png"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := fs.Put(context.Background(), "../escape.png", []byte("x"), "image/png"); err == nil {
		t.Fatal("expected error for traversal key")
	}
}

func TestFileStorePutHonorsCancellation(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fs.Put(ctx, "a.png", []byte("x"), "image/png"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
