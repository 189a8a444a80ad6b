// Package lexicon maintains the per-term statistics, per-document lengths and
// metadata, and corpus-wide aggregates for one index, and persists them to
// the index directory. The lexicon file is written last during a build and
// its presence is what marks an index as built.
package lexicon

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/searchforge/diskindex/internal/index"
	pkgerrors "github.com/searchforge/diskindex/pkg/errors"
)

// Artifact names inside an index directory. These are part of the external
// contract; other tools locate index state by these names.
const (
	LexiconFile       = "lexicon.bin"
	PostingsFile      = "postings.bin"
	TermIDMappingFile = "termid.mapping"
	DocIDMappingFile  = "docid.mapping"
	DocLengthsFile    = "docs.lengths"
)

const (
	lexiconMagic  uint32 = 0x444C4558 // "DLEX"
	lengthsMagic  uint32 = 0x444C454E // "DLEN"
	formatVersion uint32 = 1
)

// lexiconHdrSize is the fixed byte length of the lexicon file header.
const lexiconHdrSize = 16

// Lexicon holds per-term statistics, document lengths and metadata, and
// corpus aggregates. It is mutable during build and read-only afterwards;
// the query path may use it from any number of goroutines without locking.
type Lexicon struct {
	dir        string
	corpus     index.CorpusStats
	terms      map[index.TermID]index.TermStats
	docLengths map[index.DocID]uint32
	docs       map[index.DocID]index.DocMeta
}

// New creates an unloaded Lexicon rooted at dir.
func New(dir string) *Lexicon {
	return &Lexicon{
		dir:        dir,
		terms:      make(map[index.TermID]index.TermStats),
		docLengths: make(map[index.DocID]uint32),
		docs:       make(map[index.DocID]index.DocMeta),
	}
}

// Dir returns the index directory this lexicon belongs to.
func (l *Lexicon) Dir() string {
	return l.dir
}

// IsEmpty reports whether no built index exists at this location. It gates
// both rebuild attempts and whether a tokenizer attaches to an existing
// TermID space.
func (l *Lexicon) IsEmpty() bool {
	info, err := os.Stat(filepath.Join(l.dir, LexiconFile))
	if err != nil {
		return true
	}
	return info.Size() == 0
}

// ContainsTerm reports whether id has statistics in the lexicon.
func (l *Lexicon) ContainsTerm(id index.TermID) bool {
	_, ok := l.terms[id]
	return ok
}

// TermInfo returns the statistics for id.
func (l *Lexicon) TermInfo(id index.TermID) (index.TermStats, bool) {
	stats, ok := l.terms[id]
	return stats, ok
}

// TermCount returns the number of terms with statistics.
func (l *Lexicon) TermCount() int {
	return len(l.terms)
}

// DocLength returns the token count recorded for id.
func (l *Lexicon) DocLength(id index.DocID) uint32 {
	return l.docLengths[id]
}

// Doc returns the persisted metadata for id.
func (l *Lexicon) Doc(id index.DocID) (index.DocMeta, bool) {
	meta, ok := l.docs[id]
	return meta, ok
}

// Corpus returns the corpus-wide aggregates.
func (l *Lexicon) Corpus() index.CorpusStats {
	return l.corpus
}

// SetTermStats records statistics for one term. Called by the chunk merge as
// it assigns postings locators.
func (l *Lexicon) SetTermStats(id index.TermID, stats index.TermStats) {
	l.terms[id] = stats
}

// SetDocuments installs the document metadata and length tables and derives
// the corpus aggregates from them.
func (l *Lexicon) SetDocuments(docs map[index.DocID]index.DocMeta, lengths map[index.DocID]uint32) {
	l.docs = docs
	l.docLengths = lengths
	var total uint64
	for _, n := range lengths {
		total += uint64(n)
	}
	l.corpus = index.CorpusStats{
		NumDocs:     uint32(len(lengths)),
		TotalTokens: total,
	}
	if l.corpus.NumDocs > 0 {
		l.corpus.AvgDocLength = float64(total) / float64(l.corpus.NumDocs)
	}
}

// lexiconPayload is the JSON body of the lexicon file.
type lexiconPayload struct {
	Corpus index.CorpusStats                `json:"corpus"`
	Terms  map[index.TermID]index.TermStats `json:"terms"`
}

// Save writes the lexicon file. This is the final step of a build: once this
// file exists, the index is visible as built.
func (l *Lexicon) Save() error {
	payload, err := json.Marshal(lexiconPayload{
		Corpus: l.corpus,
		Terms:  l.terms,
	})
	if err != nil {
		return fmt.Errorf("marshaling lexicon: %w", err)
	}

	buf := make([]byte, lexiconHdrSize, lexiconHdrSize+len(payload)+4)
	binary.LittleEndian.PutUint32(buf[0:4], lexiconMagic)
	binary.LittleEndian.PutUint32(buf[4:8], formatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(payload)))
	buf = append(buf, payload...)
	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], crc32.ChecksumIEEE(payload))
	buf = append(buf, footer[:]...)

	if err := writeArtifact(filepath.Join(l.dir, LexiconFile), buf); err != nil {
		return fmt.Errorf("writing lexicon file: %w", err)
	}
	return nil
}

// writeArtifact writes data to path via a temp file, syncing before the
// rename so the rename never becomes durable ahead of the payload. The
// lexicon file is the built marker; a torn write here would wedge the
// location as neither openable nor rebuildable.
func writeArtifact(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads the lexicon file, the doc-length table, and the DocID mapping.
// Any structural problem in a persisted artifact is reported as a corruption
// error; the caller must discard the index and rebuild.
func (l *Lexicon) Load() error {
	if err := l.loadLexiconFile(); err != nil {
		return err
	}
	lengths, err := LoadDocLengths(filepath.Join(l.dir, DocLengthsFile))
	if err != nil {
		return err
	}
	l.docLengths = lengths
	docs, err := LoadDocIDMapping(filepath.Join(l.dir, DocIDMappingFile))
	if err != nil {
		return err
	}
	l.docs = docs
	if uint32(len(l.docLengths)) != l.corpus.NumDocs {
		return fmt.Errorf("%w: doc-length table has %d entries, corpus records %d docs",
			pkgerrors.ErrCorruptIndex, len(l.docLengths), l.corpus.NumDocs)
	}
	return nil
}

func (l *Lexicon) loadLexiconFile() error {
	path := filepath.Join(l.dir, LexiconFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading lexicon file: %w", err)
	}
	if len(data) < lexiconHdrSize+4 {
		return fmt.Errorf("%w: lexicon file truncated (%d bytes)", pkgerrors.ErrCorruptIndex, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != lexiconMagic {
		return fmt.Errorf("%w: bad lexicon magic %#x", pkgerrors.ErrCorruptIndex, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != formatVersion {
		return fmt.Errorf("%w: unsupported lexicon version %d", pkgerrors.ErrCorruptIndex, version)
	}
	size := binary.LittleEndian.Uint64(data[8:16])
	if uint64(len(data)) != lexiconHdrSize+size+4 {
		return fmt.Errorf("%w: lexicon payload size mismatch", pkgerrors.ErrCorruptIndex)
	}
	payload := data[lexiconHdrSize : lexiconHdrSize+size]
	checksum := binary.LittleEndian.Uint32(data[lexiconHdrSize+size:])
	if crc32.ChecksumIEEE(payload) != checksum {
		return fmt.Errorf("%w: lexicon checksum mismatch", pkgerrors.ErrCorruptIndex)
	}
	var body lexiconPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("%w: parsing lexicon payload: %v", pkgerrors.ErrCorruptIndex, err)
	}
	l.corpus = body.Corpus
	l.terms = body.Terms
	if l.terms == nil {
		l.terms = make(map[index.TermID]index.TermStats)
	}
	return nil
}
