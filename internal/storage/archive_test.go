package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pita/internal/storage"
)

func TestLocalArchiveStore(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "A_OCR.pdf")
	if err := os.WriteFile(src, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	archive := storage.NewLocalArchive(filepath.Join(root, "Historial_OCR"))

	dst, err := archive.Store(context.Background(), src, "A.pdf")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if dst != filepath.Join(root, "Historial_OCR", "A.pdf") {
		t.Errorf("dst = %s", dst)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source still present")
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("archived file missing: %v", err)
	}
}

func TestLocalArchiveMissingSource(t *testing.T) {
	archive := storage.NewLocalArchive(t.TempDir())
	if _, err := archive.Store(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"), "x.pdf"); err == nil {
		t.Fatal("expected error")
	}
}

func TestLocalArchiveReplaces(t *testing.T) {
	root := t.TempDir()
	archive := storage.NewLocalArchive(root)
	for i, content := range []string{"first", "second"} {
		src := filepath.Join(t.TempDir(), "in.pdf")
		if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := archive.Store(context.Background(), src, "A.pdf"); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
	}
	data, _ := os.ReadFile(filepath.Join(root, "A.pdf"))
	if string(data) != "second" {
		t.Errorf("archive = %q", data)
	}
}
