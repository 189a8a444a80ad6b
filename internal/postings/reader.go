package postings

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/searchforge/diskindex/internal/index"
	pkgerrors "github.com/searchforge/diskindex/pkg/errors"
)

// Reader fetches posting lists from a merged postings file by locator. It is
// safe for concurrent use: every fetch goes through ReadAt, so readers share
// no file offset.
type Reader struct {
	file      *os.File
	termCount uint32
	docCount  uint32
}

// OpenReader validates the postings file header and returns a Reader.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening postings file: %w", err)
	}
	var hdr [postingsHeaderSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: postings header short read: %v", pkgerrors.ErrCorruptIndex, err)
	}
	if magic := binary.LittleEndian.Uint32(hdr[0:4]); magic != postingsMagic {
		f.Close()
		return nil, fmt.Errorf("%w: bad postings magic %#x", pkgerrors.ErrCorruptIndex, magic)
	}
	if version := binary.LittleEndian.Uint32(hdr[4:8]); version != formatVersion {
		f.Close()
		return nil, fmt.Errorf("%w: unsupported postings version %d", pkgerrors.ErrCorruptIndex, version)
	}
	return &Reader{
		file:      f,
		termCount: binary.LittleEndian.Uint32(hdr[8:12]),
		docCount:  binary.LittleEndian.Uint32(hdr[12:16]),
	}, nil
}

// Fetch reads the posting list described by stats.
func (r *Reader) Fetch(stats index.TermStats) (index.PostingList, error) {
	buf := make([]byte, int64(stats.Count)*postingSize)
	if _, err := r.file.ReadAt(buf, stats.Offset); err != nil {
		return nil, fmt.Errorf("reading postings at offset %d: %w", stats.Offset, err)
	}
	list := make(index.PostingList, 0, stats.Count)
	for i := uint32(0); i < stats.Count; i++ {
		off := int64(i) * postingSize
		list = append(list, index.Posting{
			DocID:     index.DocID(binary.LittleEndian.Uint32(buf[off : off+4])),
			Frequency: binary.LittleEndian.Uint32(buf[off+4 : off+8]),
		})
	}
	return list, nil
}

// TermCount returns the number of terms in the postings file.
func (r *Reader) TermCount() uint32 {
	return r.termCount
}

// DocCount returns the number of documents recorded at merge time.
func (r *Reader) DocCount() uint32 {
	return r.docCount
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
