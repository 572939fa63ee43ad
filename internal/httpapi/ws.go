package httpapi

import (
	"net/http"

	"github.com/MrWong99/chatgw/internal/gwsession"
	"github.com/MrWong99/chatgw/internal/observe"
)

func (routes *Routes) chatUpgrade(w http.ResponseWriter, r *http.Request) {
	id, ok := routes.deps.Gate.Resolver.Resolve(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}
	if origin := r.Header.Get("Origin"); origin != "" && !routes.deps.Gate.AllowOrigin(origin) {
		writeJSONError(w, http.StatusForbidden, "origin not allowed")
		return
	}
	if routes.deps.Gate.Limiter != nil && !routes.deps.Gate.Limiter.Allow(id.Email) {
		observe.DefaultMetrics().RecordRateLimitRejection(r.Context(), "/ws/chat")
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	conn, err := gwsession.Accept(w, r, routes.deps.Gate.OriginPatterns)
	if err != nil {
		return
	}

	sess := gwsession.New(conn, id.Email, id.Groups, gwsession.Config{
		Router:               routes.deps.Router,
		Store:                routes.deps.Store,
		Tokens:               routes.deps.Tokens,
		Dispatcher:           routes.deps.Dispatcher,
		Host:                 routes.deps.Host,
		Tier:                 routes.deps.Tier,
		DownloadTTL:          routes.deps.DownloadTTL,
		DefaultAgentMaxSteps: routes.deps.DefaultAgentMaxSteps,
	})
	defer sess.Close()

	sess.Run(r.Context())
}
