package main

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/validator"
)

func bookFlag() cli.Flag {
	return &cli.StringFlag{Name: "book", Aliases: []string{"b"}, Usage: "book to use (default book when empty)"}
}

// currentStore loads the configured books and returns the store of the
// one named by --book.
func currentStore(c *cli.Context) (*index.Store, func(), error) {
	a, err := loadApp(c, false)
	if err != nil {
		return nil, nil, err
	}
	book, err := a.Catalog.Get(c.String("book"))
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	store, err := book.Engine.Current()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return store, func() { a.Close() }, nil
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Print index statistics and object types",
		Flags: []cli.Flag{
			bookFlag(),
			&cli.StringFlag{Name: "objects", Usage: "also list objects whose name starts with this prefix"},
			&cli.IntFlag{Name: "limit", Value: 25, Usage: "maximum objects listed"},
			&cli.BoolFlag{Name: "json", Usage: "print statistics as JSON"},
		},
		Action: func(c *cli.Context) error {
			store, done, err := currentStore(c)
			if err != nil {
				return err
			}
			defer done()

			stats := store.Stats()
			if c.Bool("json") {
				return writeJSON(c.App.Writer, stats)
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "generation\t%s\n", stats.Generation)
			fmt.Fprintf(tw, "documents\t%d\n", stats.Documents)
			fmt.Fprintf(tw, "terms\t%d\n", stats.Terms)
			fmt.Fprintf(tw, "title terms\t%d\n", stats.TitleTerms)
			fmt.Fprintf(tw, "objects\t%d\n", stats.Objects)
			if len(stats.EnvVersion) > 0 {
				fmt.Fprintf(tw, "env version\t%s\n", stats.EnvVersion)
			}
			tw.Flush()

			counts := make(map[int]int)
			for o := range store.Objects() {
				counts[o.TypeID]++
			}
			if len(counts) > 0 {
				fmt.Fprintln(c.App.Writer)
				tw = tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TYPE\tLABEL\tNAME\tPRIORITY\tOBJECTS")
				for _, id := range slices.Sorted(maps.Keys(counts)) {
					t, _ := store.ObjectType(id)
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", id, t.Label, t.DisplayName, t.SearchPriority, counts[id])
				}
				tw.Flush()
			}

			if prefix := c.String("objects"); prefix != "" {
				entries, truncated := store.PrefixObjects(prefix, c.Int("limit"))
				fmt.Fprintln(c.App.Writer)
				for _, o := range entries {
					doc, _ := store.Document(o.DocID)
					fmt.Fprintf(c.App.Writer, "%s\t%s#%s\n", o.Name, doc.Name, o.Anchor)
				}
				if truncated {
					fmt.Fprintln(c.App.Writer, "...")
				}
			}
			return nil
		},
	}
}

func termsCommand() *cli.Command {
	return &cli.Command{
		Name:      "terms",
		Usage:     "List index terms starting with a prefix and their document counts",
		ArgsUsage: "PREFIX",
		Flags: []cli.Flag{
			bookFlag(),
			&cli.BoolFlag{Name: "title", Usage: "list title terms instead of body terms"},
			&cli.IntFlag{Name: "limit", Value: 50, Usage: "maximum terms listed"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("exactly one PREFIX is required")
			}
			store, done, err := currentStore(c)
			if err != nil {
				return err
			}
			defer done()

			prefix := c.Args().First()
			scan, lookup := store.PrefixTerms, store.LookupTerm
			if c.Bool("title") {
				scan, lookup = store.PrefixTitleTerms, store.LookupTitleTerm
			}
			terms, truncated := scan(prefix, c.Int("limit"))
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			for _, t := range terms {
				fmt.Fprintf(tw, "%s\t%d\n", t, len(lookup(t)))
			}
			tw.Flush()
			if truncated {
				fmt.Fprintf(c.App.Writer, "(more than %d terms match %q)\n", c.Int("limit"), prefix)
			}
			return nil
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check that searchindex.js files load",
		ArgsUsage: "FILE...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("at least one FILE is required")
			}
			failed := 0
			for _, path := range c.Args().Slice() {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				store, err := validator.ValidatePublishRequest(&ingestion.PublishRequest{Book: filepath.Base(path), Payload: data})
				var verr *validator.ValidationError
				switch {
				case errors.As(err, &verr):
					failed++
					fmt.Fprintf(c.App.Writer, "FAIL %s: %s\n", path, verr.Fields["payload"])
				case err != nil:
					return err
				default:
					s := store.Stats()
					fmt.Fprintf(c.App.Writer, "ok   %s: %d documents, %d terms, %d objects, generation %s\n",
						path, s.Documents, s.Terms, s.Objects, s.Generation)
				}
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d files failed validation", failed, c.NArg()), 2)
			}
			return nil
		},
	}
}
