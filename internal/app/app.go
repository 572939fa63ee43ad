// Package app wires all gateway subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts the HTTP/WebSocket server and blocks until the
// context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithObjectStore, WithMCPHost, etc.). When an option is not provided, New
// creates a real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/chatgw/internal/agentloop"
	"github.com/MrWong99/chatgw/internal/authlimit"
	"github.com/MrWong99/chatgw/internal/captoken"
	"github.com/MrWong99/chatgw/internal/config"
	"github.com/MrWong99/chatgw/internal/gwsession"
	"github.com/MrWong99/chatgw/internal/httpapi"
	"github.com/MrWong99/chatgw/internal/llmcaller"
	"github.com/MrWong99/chatgw/internal/mcp"
	"github.com/MrWong99/chatgw/internal/mcp/mcphost"
	"github.com/MrWong99/chatgw/internal/rag"
	"github.com/MrWong99/chatgw/internal/router"
	"github.com/MrWong99/chatgw/internal/toolexec"
	"github.com/MrWong99/chatgw/pkg/objectstore"
	"github.com/MrWong99/chatgw/pkg/objectstore/s3"
)

// App owns all subsystem lifetimes and orchestrates the chat gateway.
type App struct {
	cfg *config.Config

	mcpHost    mcp.Host
	store      objectstore.Store
	tokens     *captoken.Issuer
	dispatcher *gwsession.Dispatcher
	router     *router.Router
	gate       authlimit.Gate

	server *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithObjectStore injects a file store instead of creating one from config.
func WithObjectStore(s objectstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMCPHost injects an MCP host instead of creating one from config.
func WithMCPHost(h mcp.Host) Option {
	return func(a *App) { a.mcpHost = h }
}

// WithDispatcher injects a session event dispatcher instead of creating a
// fresh one.
func WithDispatcher(d *gwsession.Dispatcher) Option {
	return func(a *App) { a.dispatcher = d }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together: the model catalog
// and router, the MCP host and its configured servers, the object store, the
// capability-token issuer, the agent loop, and the HTTP/WebSocket surface.
// Use Option functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, dispatcher: gwsession.NewDispatcher()}
	for _, o := range opts {
		o(a)
	}

	if err := a.initObjectStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init object store: %w", err)
	}
	if err := a.initMCP(ctx); err != nil {
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}
	a.initCapabilityTokens()
	if err := a.initRouter(); err != nil {
		return nil, fmt.Errorf("app: init router: %w", err)
	}
	a.initGate()
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initObjectStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if a.cfg.ObjectStore.Bucket == "" {
		return fmt.Errorf("object_store.bucket is required when no store is injected")
	}
	store, err := s3.New(ctx, s3.Config{
		Bucket:   a.cfg.ObjectStore.Bucket,
		Region:   a.cfg.ObjectStore.Region,
		Endpoint: a.cfg.ObjectStore.Endpoint,
	})
	if err != nil {
		return err
	}
	a.store = store
	return nil
}

func (a *App) initMCP(ctx context.Context) error {
	if a.mcpHost == nil {
		a.mcpHost = mcphost.New()
	}
	a.closers = append(a.closers, a.mcpHost.Close)

	servers := a.cfg.MCP.Servers
	if a.cfg.MCPConfigPath != "" {
		fromFile, err := config.LoadMCPServers(a.cfg.MCPConfigPath)
		if err != nil {
			return fmt.Errorf("load mcp server table %q: %w", a.cfg.MCPConfigPath, err)
		}
		servers = append(servers, fromFile...)
	}

	for _, srv := range servers {
		if err := a.mcpHost.RegisterServer(ctx, srv.ToHostConfig()); err != nil {
			slog.Warn("skipping MCP server", "name", srv.Name, "err", err)
			continue
		}
		slog.Info("registered MCP server", "name", srv.Name)
	}

	if err := a.mcpHost.Calibrate(ctx); err != nil {
		slog.Warn("MCP calibration failed, using declared latencies", "err", err)
	}
	return nil
}

func (a *App) initCapabilityTokens() {
	if a.cfg.CapabilityToken.SigningKey == "" {
		slog.Warn("capability_token.signing_key not set — no download tokens will be issued and HTTP downloads are served without a token check")
		return
	}
	ttl := time.Duration(a.cfg.CapabilityToken.DefaultTTLSeconds) * time.Second
	a.tokens = captoken.NewIssuer([]byte(a.cfg.CapabilityToken.SigningKey), ttl)
}

func (a *App) initRouter() error {
	reg := llmcaller.NewCatalog()

	var ragClient *rag.Client
	if a.cfg.RAG.BaseURL != "" {
		ragClient = rag.New(rag.Config{
			BaseURL: a.cfg.RAG.BaseURL,
			APIKey:  a.cfg.RAG.APIKey,
			Timeout: time.Duration(a.cfg.RAG.TimeoutSeconds) * time.Second,
		})
	}

	caller := llmcaller.New(reg, a.cfg.Models, ragClient)
	executor := toolexec.New(a.mcpHost, a.store, a.tokens)
	loop := agentloop.New(caller, executor)

	a.router = router.New(caller, ragClient, executor, loop)
	return nil
}

// defaultAgentMaxSteps returns the configured agent-loop step bound, or a
// sensible built-in default when unset.
func (a *App) defaultAgentMaxSteps() int {
	if a.cfg.AgentLoop.MaxSteps > 0 {
		return a.cfg.AgentLoop.MaxSteps
	}
	return 10
}

func (a *App) initGate() {
	a.gate = authlimit.Gate{
		Resolver: authlimit.Resolver{},
		Limiter: authlimit.NewLimiter(authlimit.LimiterConfig{
			RequestsPerMinute: a.cfg.RateLimit.RequestsPerMinute,
			Burst:             a.cfg.RateLimit.Burst,
		}),
		AdminGroup: "admins",
	}
}

func (a *App) initServer() {
	downloadTTL := time.Duration(a.cfg.CapabilityToken.DefaultTTLSeconds) * time.Second

	handler := httpapi.NewRouter(httpapi.Deps{
		Router:               a.router,
		Store:                a.store,
		Tokens:               a.tokens,
		Dispatcher:           a.dispatcher,
		Host:                 a.mcpHost,
		Tier:                 mcp.BudgetStandard,
		Gate:                 a.gate,
		DownloadTTL:          downloadTTL,
		DefaultAgentMaxSteps: a.defaultAgentMaxSteps(),
	})

	a.server = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: handler,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// MCPHost returns the MCP host.
func (a *App) MCPHost() mcp.Host { return a.mcpHost }

// ObjectStore returns the file store.
func (a *App) ObjectStore() objectstore.Store { return a.store }

// Dispatcher returns the session event dispatcher, for registering
// listeners before Run starts serving connections.
func (a *App) Dispatcher() *gwsession.Dispatcher { return a.dispatcher }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the HTTP/WebSocket server and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", a.cfg.Server.ListenAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down the HTTP server, then all subsystems in the order
// their closers were registered. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
