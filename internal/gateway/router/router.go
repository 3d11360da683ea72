// Package router wires the gateway routes and middleware chain.
package router

import (
	"net/http"

	"github.com/openfts/openfts/internal/auth/apikey"
	"github.com/openfts/openfts/internal/auth/ratelimit"
	gwhandler "github.com/openfts/openfts/internal/gateway/handler"
	gwmw "github.com/openfts/openfts/internal/gateway/middleware"
	pkgmw "github.com/openfts/openfts/pkg/middleware"
)

// New builds the gateway HTTP handler.
//
// Route table:
//
//	POST   /api/v1/documents              → ingestion (proxy)
//	PUT    /api/v1/documents/{id}         → ingestion (proxy)
//	DELETE /api/v1/documents/{id}         → ingestion (proxy)
//	GET    /api/v1/documents              → list metadata (direct DB)
//	GET    /api/v1/documents/{id}         → get metadata  (direct DB)
//	GET    /api/v1/search                 → searcher (proxy)
//	GET    /api/v1/suggest                → searcher (proxy)
//	GET    /api/v1/analytics              → analytics (proxy)
//	GET    /api/v1/cache/stats            → searcher (proxy)
//	POST   /api/v1/cache/invalidate       → searcher (proxy)
//	GET    /api/v1/admin/index/stats      → searcher RPC
//	POST   /api/v1/admin/index/checkpoint → searcher RPC
//	POST   /api/v1/admin/index/rebuild    → searcher RPC
//	POST   /api/v1/admin/keys             → create API key
//	GET    /api/v1/admin/keys             → list API keys
//	DELETE /api/v1/admin/keys             → revoke API key
//	GET    /health                        → gateway health
//
// Middleware, outermost first: RequestID, Metrics, CORS, Auth, RateLimit.
func New(h *gwhandler.Handler, validator *apikey.Validator, limiter *ratelimit.Limiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/v1/documents", h.ProxyIngest)
	mux.HandleFunc("PUT /api/v1/documents/{id}", h.ProxyIngest)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.ProxyIngest)
	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)

	mux.HandleFunc("GET /api/v1/search", h.ProxySearch)
	mux.HandleFunc("GET /api/v1/suggest", h.ProxySuggest)

	mux.HandleFunc("GET /api/v1/analytics", h.ProxyAnalytics)
	mux.HandleFunc("GET /api/v1/analytics/history", h.ProxyAnalytics)

	mux.HandleFunc("GET /api/v1/cache/stats", h.ProxyCache)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.ProxyCache)

	mux.HandleFunc("GET /api/v1/admin/index/stats", h.IndexStats)
	mux.HandleFunc("POST /api/v1/admin/index/checkpoint", h.IndexCheckpoint)
	mux.HandleFunc("POST /api/v1/admin/index/rebuild", h.IndexRebuild)
	mux.HandleFunc("POST /api/v1/admin/keys", h.CreateAPIKey)
	mux.HandleFunc("GET /api/v1/admin/keys", h.ListAPIKeys)
	mux.HandleFunc("DELETE /api/v1/admin/keys", h.RevokeAPIKey)

	var chain http.Handler = mux
	chain = gwmw.RateLimit(limiter)(chain)
	chain = gwmw.Auth(validator)(chain)
	chain = gwmw.CORS(gwmw.DefaultCORSConfig())(chain)
	chain = pkgmw.Metrics()(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
