// Package source provides the bounded document streams the build phase
// consumes: a directory walker, a Postgres table, and a Kafka topic drain.
// Every source yields documents until exhaustion and then reports io.EOF.
package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/pkg/config"
)

// DirSource walks a directory tree and yields one document per file with an
// allowed extension. The document name is the path relative to the root and
// the category is the file's parent directory, so corpora laid out as
// <root>/<category>/<file> carry their labels in their paths.
type DirSource struct {
	root  string
	paths []string
	pos   int
}

// NewDirSource collects the matching files under cfg.Root. The file list is
// gathered eagerly so the stream is bounded even if the tree changes
// mid-build.
func NewDirSource(cfg config.SourceConfig) (*DirSource, error) {
	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	var paths []string
	err := filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(exts) > 0 {
			if _, ok := exts[strings.ToLower(filepath.Ext(path))]; !ok {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking corpus root %s: %w", cfg.Root, err)
	}
	slog.Default().With("component", "dir-source").Info("corpus collected",
		"root", cfg.Root,
		"files", len(paths),
	)
	return &DirSource{root: cfg.Root, paths: paths}, nil
}

// Next reads the next file into a document.
func (s *DirSource) Next(ctx context.Context) (*index.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.pos]
	s.pos++
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus file %s: %w", path, err)
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		rel = path
	}
	return &index.Document{
		Name:     rel,
		Category: filepath.Base(filepath.Dir(path)),
		Text:     string(data),
	}, nil
}

// Close is a no-op; DirSource holds no resources between calls.
func (s *DirSource) Close() error {
	return nil
}
