// Package httpapi exposes the gateway's HTTP surface: file upload/download,
// health checks, and the WebSocket chat upgrade endpoint.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/MrWong99/chatgw/internal/authlimit"
	"github.com/MrWong99/chatgw/internal/captoken"
	"github.com/MrWong99/chatgw/internal/gwsession"
	"github.com/MrWong99/chatgw/internal/mcp"
	"github.com/MrWong99/chatgw/internal/router"
	"github.com/MrWong99/chatgw/pkg/objectstore"
)

// Deps bundles every collaborator the routes need. All fields are required
// except Tier, Dispatcher, and Tokens.
type Deps struct {
	Router     *router.Router
	Store      objectstore.Store
	Tokens     *captoken.Issuer
	Dispatcher *gwsession.Dispatcher
	Host       mcp.Host
	Tier       mcp.BudgetTier
	Gate       authlimit.Gate

	// DownloadTTL bounds the lifetime of a capability token minted for a
	// file download. Zero uses the issuer's configured default.
	DownloadTTL time.Duration

	// DefaultAgentMaxSteps bounds an agent-mode turn when the client omits
	// agent_max_steps.
	DefaultAgentMaxSteps int
}

// Routes is the set of HTTP handlers the gateway serves, built from Deps.
type Routes struct {
	deps     Deps
	validate *validator.Validate
}

// NewRouter assembles the full chi router: health check, file upload/
// download, and the WebSocket chat endpoint, wrapped with request logging
// and per-identity rate limiting.
func NewRouter(deps Deps) http.Handler {
	routes := &Routes{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", routes.health)

	r.Route("/api", func(api chi.Router) {
		api.Use(deps.Gate.Identify)
		api.Use(deps.Gate.RateLimit)

		api.Post("/files", routes.uploadFile)
		api.Get("/files/download/*", routes.downloadFile)
	})

	r.Get("/ws/chat", routes.chatUpgrade)

	return r
}

func (routes *Routes) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	slog.Debug("httpapi: request rejected", "status", status, "message", message)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
