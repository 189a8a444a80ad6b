package index

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestIDAllocatorDenseAssignment(t *testing.T) {
	a := NewIDAllocator()
	if got := a.GetOrAssign("apple"); got != 0 {
		t.Fatalf("first term got id %d, want 0", got)
	}
	if got := a.GetOrAssign("banana"); got != 1 {
		t.Fatalf("second term got id %d, want 1", got)
	}
	if got := a.GetOrAssign("apple"); got != 0 {
		t.Fatalf("repeat term got id %d, want 0", got)
	}
	if a.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", a.Len())
	}

	if id, ok := a.Lookup("banana"); !ok || id != 1 {
		t.Fatalf("Lookup(banana) = %d, %v", id, ok)
	}
	if _, ok := a.Lookup("cherry"); ok {
		t.Fatal("Lookup must not allocate")
	}
	if term, ok := a.Term(0); !ok || term != "apple" {
		t.Fatalf("Term(0) = %q, %v", term, ok)
	}
	if _, ok := a.Term(99); ok {
		t.Fatal("Term(99) should not exist")
	}
}

func TestIDAllocatorConcurrentAssignment(t *testing.T) {
	a := NewIDAllocator()
	terms := []string{"one", "two", "three", "four", "five"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a.GetOrAssign(terms[j%len(terms)])
			}
		}()
	}
	wg.Wait()
	if a.Len() != len(terms) {
		t.Fatalf("Len() = %d, want %d", a.Len(), len(terms))
	}
	// Every term resolves to the same id from every angle.
	for _, term := range terms {
		id, ok := a.Lookup(term)
		if !ok {
			t.Fatalf("term %q missing", term)
		}
		if back, ok := a.Term(id); !ok || back != term {
			t.Fatalf("Term(%d) = %q, want %q", id, back, term)
		}
	}
}

func TestIDAllocatorSaveLoadRoundtrip(t *testing.T) {
	a := NewIDAllocator()
	for _, term := range []string{"alpha", "beta", "gamma"} {
		a.GetOrAssign(term)
	}
	path := filepath.Join(t.TempDir(), "termid.mapping")
	if err := a.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadIDAllocator(path)
	if err != nil {
		t.Fatalf("LoadIDAllocator: %v", err)
	}
	if loaded.Len() != a.Len() {
		t.Fatalf("loaded Len() = %d, want %d", loaded.Len(), a.Len())
	}
	for _, term := range []string{"alpha", "beta", "gamma"} {
		want, _ := a.Lookup(term)
		got, ok := loaded.Lookup(term)
		if !ok || got != want {
			t.Fatalf("loaded Lookup(%q) = %d, %v, want %d", term, got, ok, want)
		}
	}
}

func TestLoadIDAllocatorRejectsNonDense(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termid.mapping")
	if err := os.WriteFile(path, []byte("0\talpha\n2\tgamma\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadIDAllocator(path); err == nil {
		t.Fatal("expected error for non-dense ids")
	}
}

func TestTermCounterCountsDocuments(t *testing.T) {
	c := NewTermCounter()
	// Term 0 appears in two documents, term 1 in one. Frequencies within a
	// document must not inflate the count.
	c.Observe(map[TermID]uint32{0: 5, 1: 1})
	c.Observe(map[TermID]uint32{0: 1})
	if got := c.Count(0); got != 2 {
		t.Fatalf("Count(0) = %d, want 2", got)
	}
	if got := c.Count(1); got != 1 {
		t.Fatalf("Count(1) = %d, want 1", got)
	}
	if got := c.Count(9); got != 0 {
		t.Fatalf("Count(9) = %d, want 0", got)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}
