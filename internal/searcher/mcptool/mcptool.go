// Package mcptool exposes documentation search as Model Context Protocol
// tools, so coding agents can query the same books as the HTTP API.
package mcptool

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/service"
)

type SearchArgs struct {
	Query string `json:"query" jsonschema:"search words; prefix a word with - to exclude it"`
	Book  string `json:"book,omitempty" jsonschema:"book to search; empty selects the default book"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results"`
}

type Hit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet,omitempty"`
	Object  string  `json:"object,omitempty"`
}

type SearchOutput struct {
	Book      string `json:"book"`
	Query     string `json:"query"`
	TotalHits int    `json:"total_hits"`
	Results   []Hit  `json:"results"`
}

type BooksOutput struct {
	Books []service.BookInfo `json:"books"`
}

// NewServer registers the search and list_books tools on a new server.
func NewServer(svc *service.Service, name, version string) *mcp.Server {
	if name == "" {
		name = "docsearch"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search",
		Description: "Search a documentation book and return ranked pages with links and snippets.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(args.Query) == "" {
			return nil, nil, fmt.Errorf("query is required")
		}
		resp, err := svc.Search(ctx, service.Request{
			Book:   args.Book,
			Query:  args.Query,
			Limit:  args.Limit,
			Source: "mcp",
		})
		if err != nil {
			return nil, nil, err
		}
		out := SearchOutput{
			Book:      resp.Book,
			Query:     resp.Query,
			TotalHits: resp.TotalHits,
			Results:   make([]Hit, 0, len(resp.Results)),
		}
		for _, r := range resp.Results {
			hit := Hit{Title: r.PlainTitle, URL: r.URL, Score: r.Score, Snippet: r.Snippet}
			if len(r.Objects) > 0 {
				hit.Object = r.Objects[0].Name
			}
			out.Results = append(out.Results, hit)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: render(out)}},
		}, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_books",
		Description: "List the searchable documentation books and whether their index is loaded.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		return nil, BooksOutput{Books: svc.Books()}, nil
	})
	return server
}

// HTTPHandler serves server over the streamable HTTP transport.
func HTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

// Serve runs server over stdio until the client disconnects or ctx ends.
func Serve(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// render lists results as markdown links, one per line.
func render(out SearchOutput) string {
	if len(out.Results) == 0 {
		return fmt.Sprintf("No results for %q in %s.", out.Query, out.Book)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d results for %q in %s:\n", len(out.Results), out.TotalHits, out.Query, out.Book)
	for _, h := range out.Results {
		fmt.Fprintf(&b, "- [%s](%s)", h.Title, h.URL)
		if h.Snippet != "" {
			fmt.Fprintf(&b, ": %s", h.Snippet)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
