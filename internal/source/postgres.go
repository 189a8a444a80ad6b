package source

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/searchforge/diskindex/internal/index"
	pkgerrors "github.com/searchforge/diskindex/pkg/errors"
	"github.com/searchforge/diskindex/pkg/postgres"
)

// PostgresSource streams documents from a table with (name, category,
// content) columns. The result set is a bounded snapshot: rows inserted
// after the query starts are not part of the build.
type PostgresSource struct {
	client *postgres.Client
	rows   *sql.Rows
}

// NewPostgresSource opens the cursor over the configured table.
func NewPostgresSource(ctx context.Context, client *postgres.Client, table string) (*PostgresSource, error) {
	query := fmt.Sprintf("SELECT name, category, content FROM %s ORDER BY name", table)
	rows, err := client.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: querying corpus table %s: %v", pkgerrors.ErrSourceUnavailable, table, err)
	}
	return &PostgresSource{client: client, rows: rows}, nil
}

// Next scans the next row into a document.
func (s *PostgresSource) Next(ctx context.Context) (*index.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, fmt.Errorf("iterating corpus rows: %w", err)
		}
		return nil, io.EOF
	}
	doc := &index.Document{}
	if err := s.rows.Scan(&doc.Name, &doc.Category, &doc.Text); err != nil {
		return nil, fmt.Errorf("scanning corpus row: %w", err)
	}
	return doc, nil
}

// Close releases the cursor.
func (s *PostgresSource) Close() error {
	return s.rows.Close()
}
