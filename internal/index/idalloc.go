package index

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// IDAllocator owns the term→TermID table and the next-free counter. IDs are
// dense, starting at zero, and handed out on first encounter. All methods are
// safe for concurrent use; parallel build workers share one allocator.
type IDAllocator struct {
	mu    sync.RWMutex
	ids   map[string]TermID
	terms []string
}

// NewIDAllocator returns an empty allocator.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{ids: make(map[string]TermID)}
}

// GetOrAssign returns the TermID for term, allocating the next dense ID if the
// term has not been seen before.
func (a *IDAllocator) GetOrAssign(term string) TermID {
	a.mu.RLock()
	id, ok := a.ids[term]
	a.mu.RUnlock()
	if ok {
		return id
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.ids[term]; ok {
		return id
	}
	id = TermID(len(a.terms))
	a.ids[term] = id
	a.terms = append(a.terms, term)
	return id
}

// Lookup returns the TermID for term without allocating.
func (a *IDAllocator) Lookup(term string) (TermID, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.ids[term]
	return id, ok
}

// Term returns the string mapped to id.
func (a *IDAllocator) Term(id TermID) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(id) >= len(a.terms) {
		return "", false
	}
	return a.terms[id], true
}

// Len returns the number of allocated IDs.
func (a *IDAllocator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.terms)
}

// Save writes the mapping as one "<id>\t<term>" line per entry, via a temp
// file renamed into place on success.
func (a *IDAllocator) Save(path string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating mapping file: %w", err)
	}
	w := bufio.NewWriter(f)
	for id, term := range a.terms {
		if _, err := fmt.Fprintf(w, "%d\t%s\n", id, term); err != nil {
			f.Close()
			return fmt.Errorf("writing mapping entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing mapping file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing mapping file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing mapping file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming mapping file: %w", err)
	}
	return nil
}

// LoadIDAllocator reads a mapping file written by Save. Entries must be dense
// and in ID order; anything else is a corruption error surfaced to the caller.
func LoadIDAllocator(path string) (*IDAllocator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping file: %w", err)
	}
	defer f.Close()

	a := NewIDAllocator()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		id, term, ok := strings.Cut(scanner.Text(), "\t")
		if !ok {
			return nil, fmt.Errorf("mapping line %d: missing separator", line)
		}
		parsed, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("mapping line %d: %w", line, err)
		}
		if TermID(parsed) != TermID(len(a.terms)) {
			return nil, fmt.Errorf("mapping line %d: non-dense id %d", line, parsed)
		}
		a.ids[term] = TermID(parsed)
		a.terms = append(a.terms, term)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}
	return a, nil
}
