package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/searchforge/diskindex/pkg/config"
)

func writeCorpusFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDirSourceYieldsDocuments(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "fruit/apple.txt", "crisp and sweet")
	writeCorpusFile(t, root, "fruit/banana.txt", "yellow and soft")
	writeCorpusFile(t, root, "veg/carrot.txt", "orange and crunchy")
	writeCorpusFile(t, root, "fruit/notes.json", "not part of the corpus")

	src, err := NewDirSource(config.SourceConfig{Root: root, Extensions: []string{".txt"}})
	if err != nil {
		t.Fatalf("NewDirSource: %v", err)
	}
	defer src.Close()

	seen := map[string]string{}
	for {
		doc, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		seen[doc.Name] = doc.Category
		if doc.Text == "" {
			t.Fatalf("document %q has empty text", doc.Name)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("yielded %d documents, want 3: %v", len(seen), seen)
	}
	if seen[filepath.Join("fruit", "apple.txt")] != "fruit" {
		t.Fatalf("category = %q, want fruit", seen[filepath.Join("fruit", "apple.txt")])
	}
	if seen[filepath.Join("veg", "carrot.txt")] != "veg" {
		t.Fatalf("category = %q, want veg", seen[filepath.Join("veg", "carrot.txt")])
	}
}

func TestDirSourceNoExtensionFilter(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "a.txt", "one")
	writeCorpusFile(t, root, "b.md", "two")

	src, err := NewDirSource(config.SourceConfig{Root: root})
	if err != nil {
		t.Fatalf("NewDirSource: %v", err)
	}
	defer src.Close()

	count := 0
	for {
		_, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		count++
	}
	if count != 2 {
		t.Fatalf("yielded %d documents, want 2", count)
	}
}

func TestDirSourceEOFIsSticky(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "a.txt", "one")
	src, err := NewDirSource(config.SourceConfig{Root: root})
	if err != nil {
		t.Fatalf("NewDirSource: %v", err)
	}
	defer src.Close()

	if _, err := src.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := src.Next(context.Background()); err != io.EOF {
			t.Fatalf("Next after exhaustion = %v, want io.EOF", err)
		}
	}
}

func TestDirSourceMissingRoot(t *testing.T) {
	if _, err := NewDirSource(config.SourceConfig{Root: filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Fatal("expected error for missing corpus root")
	}
}

func TestDirSourceRespectsContext(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "a.txt", "one")
	src, err := NewDirSource(config.SourceConfig{Root: root})
	if err != nil {
		t.Fatalf("NewDirSource: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); err != context.Canceled {
		t.Fatalf("Next with cancelled context = %v, want context.Canceled", err)
	}
}
