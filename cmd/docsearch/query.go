package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/service"
)

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Aliases:   []string{"q"},
		Usage:     "Run a search and print the ranked results",
		ArgsUsage: "QUERY...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "book", Aliases: []string{"b"}, Usage: "book to search (default book when empty)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "maximum results (configured default when 0)"},
			&cli.BoolFlag{Name: "json", Usage: "print the full result as JSON"},
			&cli.BoolFlag{Name: "timings", Usage: "print per-stage timings"},
		},
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("query is required")
			}
			a, err := loadApp(c, false)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Service.Search(c.Context, service.Request{
				Book:   c.String("book"),
				Query:  query,
				Limit:  c.Int("limit"),
				Source: "cli",
			})
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return writeJSON(c.App.Writer, resp)
			}
			printResults(c.App.Writer, resp, c.Bool("timings"))
			return nil
		},
	}
}

func printResults(w io.Writer, resp *service.Response, timings bool) {
	fmt.Fprintf(w, "%d results for %q in %s (generation %s)\n", resp.TotalHits, resp.Query, resp.Book, resp.Generation)
	if len(resp.Excluded) > 0 {
		fmt.Fprintf(w, "excluding: %s\n", strings.Join(resp.Excluded, ", "))
	}
	for _, ts := range resp.TermStats {
		if ts.Match != "exact" {
			fmt.Fprintf(w, "  term %q: %s match, %d documents", ts.Term, ts.Match, ts.DocFreq)
			if ts.Truncated {
				fmt.Fprint(w, " (prefix scan truncated)")
			}
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintln(w)
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%2d. %s  [%.1f]\n    %s\n", i+1, r.PlainTitle, r.Score, r.URL)
		for _, o := range r.Objects {
			fmt.Fprintf(w, "    %s %s\n", o.Type, o.Name)
		}
		if r.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", r.Snippet)
		}
	}
	if timings {
		fmt.Fprintln(w)
		for _, stage := range slices.Sorted(maps.Keys(resp.Timings)) {
			fmt.Fprintf(w, "%-18s %6dus\n", stage, resp.Timings[stage])
		}
	}
}
