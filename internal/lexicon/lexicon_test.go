package lexicon

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/searchforge/diskindex/internal/index"
	pkgerrors "github.com/searchforge/diskindex/pkg/errors"
)

func buildTestLexicon(t *testing.T, dir string) *Lexicon {
	t.Helper()
	l := New(dir)
	l.SetTermStats(0, index.TermStats{DocFrequency: 2, Offset: 16, Count: 2})
	l.SetTermStats(1, index.TermStats{DocFrequency: 1, Offset: 32, Count: 1})
	l.SetDocuments(
		map[index.DocID]index.DocMeta{
			0: {Name: "doc-a.txt", Category: "letters"},
			1: {Name: "doc-b.txt", Category: "letters"},
		},
		map[index.DocID]uint32{0: 3, 1: 2},
	)
	return l
}

func saveAll(t *testing.T, l *Lexicon, dir string) {
	t.Helper()
	if err := SaveDocLengths(map[index.DocID]uint32{0: 3, 1: 2}, filepath.Join(dir, DocLengthsFile)); err != nil {
		t.Fatalf("SaveDocLengths: %v", err)
	}
	docs := map[index.DocID]index.DocMeta{
		0: {Name: "doc-a.txt", Category: "letters"},
		1: {Name: "doc-b.txt", Category: "letters"},
	}
	if err := SaveDocIDMapping(docs, filepath.Join(dir, DocIDMappingFile)); err != nil {
		t.Fatalf("SaveDocIDMapping: %v", err)
	}
	if err := l.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestLexiconSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	l := buildTestLexicon(t, dir)
	if !l.IsEmpty() {
		t.Fatal("lexicon must be empty before save")
	}
	saveAll(t, l, dir)
	if l.IsEmpty() {
		t.Fatal("lexicon must not be empty after save")
	}

	loaded := New(dir)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.TermCount() != 2 {
		t.Fatalf("TermCount = %d, want 2", loaded.TermCount())
	}
	stats, ok := loaded.TermInfo(0)
	if !ok || stats.DocFrequency != 2 || stats.Offset != 16 || stats.Count != 2 {
		t.Fatalf("TermInfo(0) = %+v, %v", stats, ok)
	}
	if !loaded.ContainsTerm(1) {
		t.Fatal("ContainsTerm(1) = false")
	}
	if loaded.ContainsTerm(9) {
		t.Fatal("ContainsTerm(9) = true for unknown term")
	}

	corpus := loaded.Corpus()
	if corpus.NumDocs != 2 || corpus.TotalTokens != 5 {
		t.Fatalf("Corpus = %+v", corpus)
	}
	if math.Abs(corpus.AvgDocLength-2.5) > 1e-12 {
		t.Fatalf("AvgDocLength = %v, want 2.5", corpus.AvgDocLength)
	}
	if loaded.DocLength(0) != 3 || loaded.DocLength(1) != 2 {
		t.Fatalf("DocLength = %d, %d", loaded.DocLength(0), loaded.DocLength(1))
	}
	meta, ok := loaded.Doc(1)
	if !ok || meta.Name != "doc-b.txt" || meta.Category != "letters" {
		t.Fatalf("Doc(1) = %+v, %v", meta, ok)
	}
}

func TestSaveLeavesOnlyFinalArtifacts(t *testing.T) {
	dir := t.TempDir()
	l := buildTestLexicon(t, dir)
	saveAll(t, l, dir)

	// Artifacts land under their final names only; a completed save never
	// leaves a temp file that a later open could mistake for index state.
	tmps, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(tmps) != 0 {
		t.Fatalf("temp files left after save: %v", tmps)
	}
	for _, name := range []string{LexiconFile, DocLengthsFile, DocIDMappingFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s written empty", name)
		}
	}
}

func TestLexiconLoadDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	l := buildTestLexicon(t, dir)
	saveAll(t, l, dir)

	path := filepath.Join(dir, LexiconFile)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a payload byte so the checksum no longer matches.
	data[20] ^= 0xFF
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	loaded := New(dir)
	if err := loaded.Load(); !errors.Is(err, pkgerrors.ErrCorruptIndex) {
		t.Fatalf("Load = %v, want ErrCorruptIndex", err)
	}
}

func TestLexiconLoadDetectsTruncation(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LexiconFile), []byte{1, 2, 3}, 0644); err != nil {
		t.Fatal(err)
	}
	loaded := New(dir)
	if err := loaded.Load(); !errors.Is(err, pkgerrors.ErrCorruptIndex) {
		t.Fatalf("Load = %v, want ErrCorruptIndex", err)
	}
}

func TestLexiconLoadDetectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	l := buildTestLexicon(t, dir)
	saveAll(t, l, dir)

	path := filepath.Join(dir, LexiconFile)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 0x00
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	loaded := New(dir)
	if err := loaded.Load(); !errors.Is(err, pkgerrors.ErrCorruptIndex) {
		t.Fatalf("Load = %v, want ErrCorruptIndex", err)
	}
}

func TestDocLengthsRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DocLengthsFile)
	lengths := map[index.DocID]uint32{0: 10, 1: 4, 2: 77}
	if err := SaveDocLengths(lengths, path); err != nil {
		t.Fatalf("SaveDocLengths: %v", err)
	}
	loaded, err := LoadDocLengths(path)
	if err != nil {
		t.Fatalf("LoadDocLengths: %v", err)
	}
	if len(loaded) != len(lengths) {
		t.Fatalf("loaded %d entries, want %d", len(loaded), len(lengths))
	}
	for id, n := range lengths {
		if loaded[id] != n {
			t.Fatalf("length(%d) = %d, want %d", id, loaded[id], n)
		}
	}
}

func TestSaveDocLengthsRejectsNonDense(t *testing.T) {
	path := filepath.Join(t.TempDir(), DocLengthsFile)
	if err := SaveDocLengths(map[index.DocID]uint32{0: 1, 2: 5}, path); err == nil {
		t.Fatal("expected error for non-dense doc ids")
	}
}

func TestDocIDMappingRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DocIDMappingFile)
	docs := map[index.DocID]index.DocMeta{
		0: {Name: "a/x.txt", Category: "a"},
		1: {Name: "b/y.txt", Category: "b"},
	}
	if err := SaveDocIDMapping(docs, path); err != nil {
		t.Fatalf("SaveDocIDMapping: %v", err)
	}
	loaded, err := LoadDocIDMapping(path)
	if err != nil {
		t.Fatalf("LoadDocIDMapping: %v", err)
	}
	if len(loaded) != len(docs) {
		t.Fatalf("loaded %d entries, want %d", len(loaded), len(docs))
	}
	for id, meta := range docs {
		if loaded[id] != meta {
			t.Fatalf("doc(%d) = %+v, want %+v", id, loaded[id], meta)
		}
	}
}
