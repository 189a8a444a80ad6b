package postings

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/internal/lexicon"
)

// mergeHead is one chunk reader's current entry in the merge heap.
type mergeHead struct {
	entry  chunkEntry
	reader *chunkReader
}

type mergeHeap []mergeHead

func (h mergeHeap) Len() int           { return len(h) }
func (h mergeHeap) Less(i, j int) bool { return h[i].entry.termID < h[j].entry.termID }
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)        { *h = append(*h, x.(mergeHead)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	head := old[n-1]
	*h = old[:n-1]
	return head
}

// MergeChunks k-way-merges chunkCount chunk files by TermID into the final
// postings file, recording each term's document frequency and postings
// locator into lex. DocIDs are globally unique across chunks, so per-term
// lists are concatenated without deduplication and sorted by DocID. Chunk
// files are removed once the merge has been durably written.
func (b *Builder) MergeChunks(chunkCount int, lex *lexicon.Lexicon) error {
	readers := make([]*chunkReader, 0, chunkCount)
	defer func() {
		for _, r := range readers {
			r.close()
		}
	}()

	h := make(mergeHeap, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		r, err := openChunkReader(chunkPath(b.dir, i))
		if err != nil {
			return err
		}
		readers = append(readers, r)
		entry, err := r.next()
		if err == io.EOF {
			continue
		}
		if err != nil {
			return err
		}
		h = append(h, mergeHead{entry: entry, reader: r})
	}
	heap.Init(&h)

	path := filepath.Join(b.dir, lexicon.PostingsFile)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating postings file: %w", err)
	}
	w := bufio.NewWriterSize(f, 256*1024)

	var hdr [postingsHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], postingsMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], formatVersion)
	if _, err := w.Write(hdr[:]); err != nil {
		f.Close()
		return fmt.Errorf("writing postings header: %w", err)
	}

	offset := int64(postingsHeaderSize)
	termCount := uint32(0)
	var buf [8]byte
	for h.Len() > 0 {
		termID := h[0].entry.termID
		merged := index.PostingList(nil)
		for h.Len() > 0 && h[0].entry.termID == termID {
			head := heap.Pop(&h).(mergeHead)
			merged = append(merged, head.entry.list...)
			next, err := head.reader.next()
			if err == io.EOF {
				continue
			}
			if err != nil {
				f.Close()
				return err
			}
			heap.Push(&h, mergeHead{entry: next, reader: head.reader})
		}
		// A document lives in exactly one chunk, so the concatenation has
		// unique DocIDs; sorting keeps output deterministic under any
		// worker interleaving.
		sort.Slice(merged, func(i, j int) bool { return merged[i].DocID < merged[j].DocID })

		for _, p := range merged {
			binary.LittleEndian.PutUint32(buf[0:4], uint32(p.DocID))
			binary.LittleEndian.PutUint32(buf[4:8], p.Frequency)
			if _, err := w.Write(buf[:]); err != nil {
				f.Close()
				return fmt.Errorf("writing merged postings: %w", err)
			}
		}
		lex.SetTermStats(termID, index.TermStats{
			DocFrequency: uint32(len(merged)),
			Offset:       offset,
			Count:        uint32(len(merged)),
		})
		offset += int64(len(merged)) * postingSize
		termCount++
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing postings file: %w", err)
	}
	binary.LittleEndian.PutUint32(hdr[8:12], termCount)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(b.DocCount()))
	if _, err := f.WriteAt(hdr[:], 0); err != nil {
		f.Close()
		return fmt.Errorf("updating postings header: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing postings file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing postings file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming postings file: %w", err)
	}

	for i := 0; i < chunkCount; i++ {
		if err := os.Remove(chunkPath(b.dir, i)); err != nil {
			b.logger.Warn("removing merged chunk failed", "chunk", i, "error", err)
		}
	}
	b.logger.Info("chunk merge complete", "chunks", chunkCount, "terms", termCount)
	return nil
}
