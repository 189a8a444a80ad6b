package lexicon

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/searchforge/diskindex/internal/index"
	pkgerrors "github.com/searchforge/diskindex/pkg/errors"
)

// SaveDocLengths writes the DocID→token-count table as a binary file with a
// magic/version header, via a temp file renamed into place.
func SaveDocLengths(lengths map[index.DocID]uint32, path string) error {
	buf := make([]byte, 12, 12+8*len(lengths))
	binary.LittleEndian.PutUint32(buf[0:4], lengthsMagic)
	binary.LittleEndian.PutUint32(buf[4:8], formatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(lengths)))
	// Dense IDs: write in DocID order for deterministic output.
	var entry [8]byte
	for id := index.DocID(0); int(id) < len(lengths); id++ {
		n, ok := lengths[id]
		if !ok {
			return fmt.Errorf("doc-length table is not dense: missing doc %d", id)
		}
		binary.LittleEndian.PutUint32(entry[0:4], uint32(id))
		binary.LittleEndian.PutUint32(entry[4:8], n)
		buf = append(buf, entry[:]...)
	}

	if err := writeArtifact(path, buf); err != nil {
		return fmt.Errorf("writing doc-length table: %w", err)
	}
	return nil
}

// LoadDocLengths reads a doc-length table written by SaveDocLengths.
func LoadDocLengths(path string) (map[index.DocID]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading doc-length table: %w", err)
	}
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: doc-length table truncated", pkgerrors.ErrCorruptIndex)
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != lengthsMagic {
		return nil, fmt.Errorf("%w: bad doc-length magic %#x", pkgerrors.ErrCorruptIndex, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported doc-length version %d", pkgerrors.ErrCorruptIndex, version)
	}
	count := binary.LittleEndian.Uint32(data[8:12])
	if uint32(len(data)-12) != count*8 {
		return nil, fmt.Errorf("%w: doc-length table size mismatch", pkgerrors.ErrCorruptIndex)
	}
	lengths := make(map[index.DocID]uint32, count)
	for i := uint32(0); i < count; i++ {
		off := 12 + i*8
		id := index.DocID(binary.LittleEndian.Uint32(data[off : off+4]))
		lengths[id] = binary.LittleEndian.Uint32(data[off+4 : off+8])
	}
	return lengths, nil
}

// SaveDocIDMapping writes the DocID→document table as one
// "<id>\t<name>\t<category>" line per document, via a temp file renamed into
// place.
func SaveDocIDMapping(docs map[index.DocID]index.DocMeta, path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating docid mapping: %w", err)
	}
	w := bufio.NewWriter(f)
	for id := index.DocID(0); int(id) < len(docs); id++ {
		meta, ok := docs[id]
		if !ok {
			f.Close()
			return fmt.Errorf("docid mapping is not dense: missing doc %d", id)
		}
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\n", id, meta.Name, meta.Category); err != nil {
			f.Close()
			return fmt.Errorf("writing docid mapping entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing docid mapping: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing docid mapping: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing docid mapping: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming docid mapping: %w", err)
	}
	return nil
}

// LoadDocIDMapping reads a mapping written by SaveDocIDMapping.
func LoadDocIDMapping(path string) (map[index.DocID]index.DocMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening docid mapping: %w", err)
	}
	defer f.Close()

	docs := make(map[index.DocID]index.DocMeta)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.SplitN(scanner.Text(), "\t", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: docid mapping line %d malformed", pkgerrors.ErrCorruptIndex, line)
		}
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: docid mapping line %d: %v", pkgerrors.ErrCorruptIndex, line, err)
		}
		docs[index.DocID(id)] = index.DocMeta{Name: fields[1], Category: fields[2]}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading docid mapping: %w", err)
	}
	return docs, nil
}
