// Package postings converts a bounded-memory stream of documents into the
// on-disk postings structure. The build phase accumulates per-term posting
// lists in memory, spills TermID-sorted chunk files whenever the accumulator
// crosses its memory budget, and finally k-way-merges all chunks into one
// postings file while recording per-term locators into the lexicon.
package postings

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/searchforge/diskindex/internal/index"
	pkgerrors "github.com/searchforge/diskindex/pkg/errors"
)

const (
	chunkMagic    uint32 = 0x4443484B // "DCHK"
	postingsMagic uint32 = 0x44505354 // "DPST"
	formatVersion uint32 = 1

	chunkHeaderSize    = 12
	postingsHeaderSize = 16
	postingSize        = 8
)

// accumulator buffers per-term posting lists for one build worker. Each
// worker owns its own accumulator, so there is no shared mutable posting
// state on the hot path.
type accumulator struct {
	postings map[index.TermID]index.PostingList
	size     int64
}

func newAccumulator() *accumulator {
	return &accumulator{postings: make(map[index.TermID]index.PostingList)}
}

// add records one tokenized document's frequencies under its DocID.
func (a *accumulator) add(docID index.DocID, freqs map[index.TermID]uint32) {
	for termID, freq := range freqs {
		list, ok := a.postings[termID]
		if !ok {
			a.size += 16
		}
		a.postings[termID] = append(list, index.Posting{DocID: docID, Frequency: freq})
		a.size += postingSize
	}
}

func (a *accumulator) empty() bool {
	return len(a.postings) == 0
}

func (a *accumulator) reset() {
	a.postings = make(map[index.TermID]index.PostingList)
	a.size = 0
}

// chunkPath names the n-th chunk file inside dir.
func chunkPath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("chunk_%06d.dchk", n))
}

// writeChunk spills the accumulator to a chunk file, TermID-sorted, with
// postings within each term sorted by DocID. Chunks are self-sorted so the
// merge is a pure sequential k-way merge.
func writeChunk(a *accumulator, path string) error {
	termIDs := make([]index.TermID, 0, len(a.postings))
	for id := range a.postings {
		termIDs = append(termIDs, id)
	}
	sort.Slice(termIDs, func(i, j int) bool { return termIDs[i] < termIDs[j] })

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	w := bufio.NewWriter(f)

	var hdr [chunkHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], chunkMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], formatVersion)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(termIDs)))
	if _, err := w.Write(hdr[:]); err != nil {
		f.Close()
		return fmt.Errorf("writing chunk header: %w", err)
	}

	var buf [8]byte
	for _, termID := range termIDs {
		list := a.postings[termID]
		sort.Slice(list, func(i, j int) bool { return list[i].DocID < list[j].DocID })

		binary.LittleEndian.PutUint32(buf[0:4], uint32(termID))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(len(list)))
		if _, err := w.Write(buf[:]); err != nil {
			f.Close()
			return fmt.Errorf("writing chunk term header: %w", err)
		}
		for _, p := range list {
			binary.LittleEndian.PutUint32(buf[0:4], uint32(p.DocID))
			binary.LittleEndian.PutUint32(buf[4:8], p.Frequency)
			if _, err := w.Write(buf[:]); err != nil {
				f.Close()
				return fmt.Errorf("writing chunk posting: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing chunk file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing chunk file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing chunk file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming chunk file: %w", err)
	}
	return nil
}

// chunkEntry is one term's postings read from a chunk file.
type chunkEntry struct {
	termID index.TermID
	list   index.PostingList
}

// chunkReader streams term entries from one chunk file in TermID order.
type chunkReader struct {
	f         *os.File
	r         *bufio.Reader
	remaining uint32
}

func openChunkReader(path string) (*chunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening chunk file: %w", err)
	}
	r := bufio.NewReaderSize(f, 256*1024)
	var hdr [chunkHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: chunk header short read: %v", pkgerrors.ErrCorruptIndex, err)
	}
	if magic := binary.LittleEndian.Uint32(hdr[0:4]); magic != chunkMagic {
		f.Close()
		return nil, fmt.Errorf("%w: bad chunk magic %#x", pkgerrors.ErrCorruptIndex, magic)
	}
	if version := binary.LittleEndian.Uint32(hdr[4:8]); version != formatVersion {
		f.Close()
		return nil, fmt.Errorf("%w: unsupported chunk version %d", pkgerrors.ErrCorruptIndex, version)
	}
	return &chunkReader{
		f:         f,
		r:         r,
		remaining: binary.LittleEndian.Uint32(hdr[8:12]),
	}, nil
}

// next returns the next term entry, or io.EOF after the last one.
func (c *chunkReader) next() (chunkEntry, error) {
	if c.remaining == 0 {
		return chunkEntry{}, io.EOF
	}
	var buf [8]byte
	if _, err := io.ReadFull(c.r, buf[:]); err != nil {
		return chunkEntry{}, fmt.Errorf("%w: chunk term header: %v", pkgerrors.ErrCorruptIndex, err)
	}
	entry := chunkEntry{termID: index.TermID(binary.LittleEndian.Uint32(buf[0:4]))}
	count := binary.LittleEndian.Uint32(buf[4:8])
	entry.list = make(index.PostingList, 0, count)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(c.r, buf[:]); err != nil {
			return chunkEntry{}, fmt.Errorf("%w: chunk posting: %v", pkgerrors.ErrCorruptIndex, err)
		}
		entry.list = append(entry.list, index.Posting{
			DocID:     index.DocID(binary.LittleEndian.Uint32(buf[0:4])),
			Frequency: binary.LittleEndian.Uint32(buf[4:8]),
		})
	}
	c.remaining--
	return entry, nil
}

func (c *chunkReader) close() error {
	return c.f.Close()
}
