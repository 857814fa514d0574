package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/app"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

func newHandler(t *testing.T) *Handler {
	t.Helper()
	cfg := config.Default()
	cfg.Books = []config.BookConfig{
		{Name: "handbook", Source: "../../internal/indexer/index/testdata/searchindex.js", Default: true, LinkSuffix: ".html"},
	}
	a, err := app.New(context.Background(), cfg, app.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	if err := a.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return NewHandler(a.Service)
}

func TestHandleSearch(t *testing.T) {
	h := newHandler(t)
	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodGet,
		Path:                  "/search",
		QueryStringParameters: map[string]string{"q": "app store", "limit": "1"},
		Headers:               map[string]string{"x-search-session": "tab-1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, resp.Body)
	}
	var body struct {
		TotalHits int   `json:"total_hits"`
		Results   []any `json:"results"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatal(err)
	}
	if body.TotalHits != 2 || len(body.Results) != 1 {
		t.Errorf("total_hits = %d, results = %d", body.TotalHits, len(body.Results))
	}
	if resp.Headers["Content-Type"] != "application/json" {
		t.Errorf("headers = %v", resp.Headers)
	}
}

func TestHandleErrors(t *testing.T) {
	h := newHandler(t)
	tests := []struct {
		name   string
		req    events.APIGatewayProxyRequest
		status int
	}{
		{"bad limit", events.APIGatewayProxyRequest{QueryStringParameters: map[string]string{"q": "x", "limit": "-1"}}, http.StatusBadRequest},
		{"unknown book", events.APIGatewayProxyRequest{QueryStringParameters: map[string]string{"q": "x", "book": "nope"}}, http.StatusNotFound},
		{"method", events.APIGatewayProxyRequest{HTTPMethod: http.MethodPost}, http.StatusMethodNotAllowed},
		{"books", events.APIGatewayProxyRequest{Path: "/books/"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.Handle(context.Background(), tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, tt.status, resp.Body)
			}
		})
	}
}

func TestHeaderLookup(t *testing.T) {
	h := map[string]string{"X-Search-Session": "a", "content-type": "b"}
	if header(h, "X-Search-Session") != "a" || header(h, "Content-Type") != "b" || header(h, "Missing") != "" {
		t.Error("header lookup should be case-insensitive")
	}
}
