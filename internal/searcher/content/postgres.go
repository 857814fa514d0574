package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Schema creates the table Postgres reads page text from.
const Schema = `
CREATE TABLE IF NOT EXISTS page_contents (
	book     TEXT NOT NULL,
	doc_name TEXT NOT NULL,
	body     TEXT NOT NULL,
	PRIMARY KEY (book, doc_name)
)`

// Postgres reads page text from the page_contents table.
type Postgres struct {
	db   *sql.DB
	book string
}

func NewPostgres(db *sql.DB, book string) *Postgres {
	return &Postgres{db: db, book: book}
}

func (p *Postgres) Text(ctx context.Context, doc index.Document) (string, error) {
	var body string
	err := p.db.QueryRowContext(ctx,
		`SELECT body FROM page_contents WHERE book = $1 AND doc_name = $2`,
		p.book, doc.Name,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("page %q: %w", doc.Name, apperrors.ErrContentNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying page %q: %w", doc.Name, err)
	}
	return body, nil
}

// Put stores or replaces the text of a page.
func (p *Postgres) Put(ctx context.Context, docName, body string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO page_contents (book, doc_name, body) VALUES ($1, $2, $3)
		 ON CONFLICT (book, doc_name) DO UPDATE SET body = EXCLUDED.body`,
		p.book, docName, body,
	)
	if err != nil {
		return fmt.Errorf("storing page %q: %w", docName, err)
	}
	return nil
}
