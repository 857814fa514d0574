package handler

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

// Routes holds the optional pieces mounted next to the search API.
type Routes struct {
	AdminToken string
	// Analytics mounts GET /api/v1/analytics routes when set.
	Analytics func(mux *http.ServeMux)
	Live      http.HandlerFunc
	Ready     http.HandlerFunc
	// Publish accepts new index builds behind the admin token when set.
	Publish http.HandlerFunc
	// MCP is served at MCPPath when set.
	MCP     http.Handler
	MCPPath string
}

// Router builds the search service mux.
//
//	GET    /api/v1/search
//	GET    /api/v1/books
//	GET    /api/v1/sessions
//	GET    /api/v1/cache/stats
//	POST   /api/v1/cache/invalidate   (admin)
//	POST   /api/v1/index/reload       (admin)
//	POST   /api/v1/index/publish      (admin)
//	GET    /api/v1/analytics
//	GET    /health, /health/live, /health/ready
//	*      /mcp
func Router(h *Handler, rt Routes) *http.ServeMux {
	mux := http.NewServeMux()
	admin := middleware.AdminToken(rt.AdminToken)

	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/books", h.Books)
	mux.HandleFunc("GET /api/v1/sessions", h.Sessions)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", admin(http.HandlerFunc(h.CacheInvalidate)))
	mux.Handle("POST /api/v1/index/reload", admin(http.HandlerFunc(h.Reload)))

	if rt.Publish != nil {
		mux.Handle("POST /api/v1/index/publish", admin(rt.Publish))
	}
	if rt.Analytics != nil {
		rt.Analytics(mux)
	}
	if rt.Live != nil {
		mux.HandleFunc("GET /health", rt.Live)
		mux.HandleFunc("GET /health/live", rt.Live)
	}
	if rt.Ready != nil {
		mux.HandleFunc("GET /health/ready", rt.Ready)
	}
	if rt.MCP != nil {
		path := rt.MCPPath
		if path == "" {
			path = "/mcp"
		}
		mux.Handle(path, rt.MCP)
	}
	return mux
}
