package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorePutOpenRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(filepath.Join(dir, "sounds"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	src := filepath.Join(dir, "upload.tmp")
	if err := os.WriteFile(src, []byte("mp3 bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	ref, err := store.Put(ctx, "abc", src)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if filepath.Base(ref) != "abc.mp3" {
		t.Errorf("ref = %s", ref)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Error("Put should consume the source file")
	}

	rc, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "mp3 bytes" {
		t.Errorf("content = %q", data)
	}

	objects, err := store.List(ctx)
	if err != nil || len(objects) != 1 || objects[0].Key != "abc.mp3" {
		t.Errorf("List = %+v, %v", objects, err)
	}
	if s := Stats(objects); s.TotalObjects != 1 || s.TotalSize != int64(len("mp3 bytes")) {
		t.Errorf("Stats = %+v", s)
	}

	if err := store.Remove(ctx, ref); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove(ctx, ref); err != nil {
		t.Errorf("second Remove should be a no-op, got %v", err)
	}
	if _, err := store.Open(ctx, ref); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("Open after remove err = %v, want ErrAssetNotFound", err)
	}
}

func TestLocalStoreStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(dir, "secret.mp3")
	if err := os.WriteFile(outside, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	store, err := NewLocalStore(filepath.Join(dir, "sounds"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Open(context.Background(), "../secret.mp3"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("Open escaped the store dir: %v", err)
	}
	if err := store.Remove(context.Background(), "../secret.mp3"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Error("Remove deleted a file outside the store dir")
	}
	if _, err := store.Open(context.Background(), ""); err == nil {
		t.Error("empty reference should be rejected")
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		12:      "12 B",
		2048:    "2.0 KB",
		5 << 20: "5.0 MB",
	}
	for in, want := range tests {
		if got := FormatSize(in); got != want {
			t.Errorf("FormatSize(%d) = %s, want %s", in, got, want)
		}
	}
}
