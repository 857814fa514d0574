package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/content"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Install a new searchindex.js build for a configured book",
		ArgsUsage: "FILE",
		Description: "The build is validated, written atomically over the book's source file and\n" +
			"announced on Kafka when it is enabled. With --pages, page text from a Sphinx\n" +
			"output directory is stored in PostgreSQL for snippets.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "book", Aliases: []string{"b"}, Required: true, Usage: "book to publish"},
			&cli.StringFlag{Name: "pages", Usage: "Sphinx output directory holding _sources/*.txt"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("exactly one FILE is required")
			}
			payload, err := os.ReadFile(c.Args().First())
			if err != nil {
				return err
			}
			req := &ingestion.PublishRequest{Book: c.String("book"), Payload: payload}
			if dir := c.String("pages"); dir != "" {
				if req.Pages, err = readPages(c, payload, dir); err != nil {
					return err
				}
			}

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			a, err := newApp(c, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Publisher.Publish(c.Context, req)
			if err != nil {
				return err
			}
			return writeJSON(c.App.Writer, resp)
		},
	}
}

// readPages collects the page text of every document in payload from a
// Sphinx output directory. Documents without text are skipped.
func readPages(c *cli.Context, payload []byte, dir string) (map[string]string, error) {
	store, err := index.Load(payload)
	if err != nil {
		return nil, err
	}
	src := content.NewDir(dir)
	pages := make(map[string]string)
	for id := range store.NumDocuments() {
		doc, _ := store.Document(id)
		text, err := src.Text(c.Context, doc)
		if apperrors.Is(err, apperrors.ErrContentNotFound) {
			slog.Debug("no page text", "doc", doc.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
		pages[doc.Name] = text
	}
	return pages, nil
}
