// Package server assembles the agent console: authenticated connection API,
// agent chat proxy, auth callback, health probes, and the optional MCP tool
// surface for the agent process.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/oakline/agent-console/pkg/agents"
	"github.com/oakline/agent-console/pkg/connectapi"
	"github.com/oakline/agent-console/pkg/connecthub"
	"github.com/oakline/agent-console/pkg/health"
	"github.com/oakline/agent-console/pkg/identity"
	"github.com/oakline/agent-console/pkg/origin"
	"github.com/oakline/agent-console/pkg/session"
	"github.com/oakline/agent-console/pkg/tools"
)

// Build information, set at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Server is the assembled console.
type Server struct {
	cfg     *Config
	log     *slog.Logger
	httpSrv *http.Server
	checker *health.Checker
	store   *session.MemoryStore
	cookies *session.CookieManager

	exchanger *identity.Exchanger
	origins   *origin.Resolver
}

// New wires the console from configuration.
func New(cfg *Config, log *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	store := session.NewMemoryStore(cfg.Session.TTL)
	store.StartCleanupRoutine(cfg.Session.CleanupInterval)
	cookies := session.NewCookieManager(session.CookieManagerConfig{
		Store:  store,
		TTL:    cfg.Session.TTL,
		Secure: cfg.Session.SecureCookies,
	})

	verifier := identity.NewVerifier(identity.VerifierConfig{
		SigningSecret: cfg.Identity.SigningSecret,
		Issuer:        cfg.Identity.Issuer,
		Audience:      cfg.Identity.Audience,
	})
	exchanger := identity.NewExchanger(identity.ExchangerConfig{
		BaseURL: cfg.Identity.BaseURL,
		APIKey:  cfg.Identity.APIKey,
	})

	hub := connecthub.Init(connecthub.Config{
		BaseURL: cfg.ConnectHub.BaseURL,
		APIKey:  cfg.ConnectHub.APIKey,
		Logger:  log,
	})
	if !hub.Configured() {
		log.Warn("connecthub api key not configured; connection endpoints will report misconfiguration")
	}
	toolkitCache := connectapi.NewToolkitCache(hub, connectapi.ToolkitCacheConfig{
		Size: cfg.ToolkitCache.Size,
		TTL:  cfg.ToolkitCache.TTL,
	}, log)
	connectHandler := connectapi.NewHandler(connectapi.HandlerConfig{
		Hub:                hub,
		Toolkits:           toolkitCache,
		DefaultWaitTimeout: cfg.ConnectHub.WaitTimeout,
		Logger:             log,
	})

	catalogAgents := cfg.Agents.Catalog
	if len(catalogAgents) == 0 {
		catalogAgents = agents.BuiltinAgents(cfg.Agents.RuntimeURL)
	}
	catalog, err := agents.NewCatalog(catalogAgents, cfg.Agents.Default)
	if err != nil {
		return nil, fmt.Errorf("building agent catalog: %w", err)
	}
	agentsHandler := agents.NewHandler(agents.HandlerConfig{
		Catalog:  catalog,
		Sessions: store,
		Logger:   log,
	})

	checker := health.NewChecker(Version)

	s := &Server{
		cfg:       cfg,
		log:       log,
		checker:   checker,
		store:     store,
		cookies:   cookies,
		exchanger: exchanger,
		origins:   &origin.Resolver{SiteURL: cfg.Server.SiteURL},
	}

	mux := http.NewServeMux()

	requireUser := identity.RequireUser(cookies, verifier)
	for _, pattern := range []string{
		"/api/v1/connected-account/",
		"/api/v1/connected-accounts",
		"/api/v1/wait-for-connection",
	} {
		mux.Handle(pattern, requireUser(connectHandler))
	}
	mux.Handle("/api/v1/agents", requireUser(agentsHandler))
	mux.Handle("/api/v1/agents/", requireUser(agentsHandler))

	mux.HandleFunc("GET /auth/callback", s.authCallback)
	mux.HandleFunc("POST /auth/logout", s.authLogout)

	mux.HandleFunc("GET /healthz", checker.LivenessHandler())
	mux.HandleFunc("GET /readyz", checker.ReadinessHandler())

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer(&mcp.Implementation{Name: "agent-console", Version: Version}, nil)
		tools.NewToolkit(hub, log).RegisterTools(mcpServer)
		mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpServer }, nil)
		mux.Handle(cfg.MCP.Path, identity.RequireServiceKey(s.serviceKeys())(mcpHandler))
	}

	s.httpSrv = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}
	return s, nil
}

func (s *Server) serviceKeys() []identity.ServiceKey {
	keys := make([]identity.ServiceKey, 0, len(s.cfg.ServiceKeys))
	for _, key := range s.cfg.ServiceKeys {
		keys = append(keys, identity.ServiceKey{Name: key.Name, Hash: key.Hash})
	}
	return keys
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until the context is cancelled, then drains and shuts down
// within the configured grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("agent console listening",
			"address", s.cfg.Server.Address, "version", Version, "commit", Commit)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.checker.SetReady()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.checker.SetDraining()
	s.log.Info("shutting down", "grace", s.cfg.Server.ShutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownGrace)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return s.store.Close()
}
