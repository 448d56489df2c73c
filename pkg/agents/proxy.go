package agents

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oakline/agent-console/pkg/identity"
	"github.com/oakline/agent-console/pkg/session"
)

const defaultTurnTimeout = 5 * time.Minute

// stateLastAgent is the session state key recording the agent the user last
// chatted with, so a reloaded console reopens the same conversation target.
const stateLastAgent = "last_agent"

// Handler serves the agent catalog and proxies chat turns to the external
// agent runtime. Transport semantics (streaming framing, tool-call events)
// stay between the browser and the runtime; the proxy only attaches the
// caller's credential and pipes bytes.
type Handler struct {
	mux      *http.ServeMux
	catalog  *Catalog
	httpc    *http.Client
	sessions session.Store
	log      *slog.Logger
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Catalog    *Catalog
	HTTPClient *http.Client

	// Sessions, when set, persists the caller's selected agent across
	// requests.
	Sessions session.Store

	Logger *slog.Logger
}

// NewHandler creates the agents handler.
func NewHandler(cfg HandlerConfig) *Handler {
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultTurnTimeout}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		mux:      http.NewServeMux(),
		catalog:  cfg.Catalog,
		httpc:    httpc,
		sessions: cfg.Sessions,
		log:      log,
	}
	h.mux.HandleFunc("GET /api/v1/agents", h.listAgents)
	h.mux.HandleFunc("POST /api/v1/agents/{id}/chat", h.chatTurn)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"agents":  h.catalog.List(),
		"default": h.catalog.Default().ID,
	}
	if last := h.lastAgent(r); last != "" {
		resp["lastAgent"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

// lastAgent resolves the agent the caller last chatted with from session
// state. Empty when there is no session or nothing recorded yet.
func (h *Handler) lastAgent(r *http.Request) string {
	if h.sessions == nil {
		return ""
	}
	user := identity.UserFrom(r.Context())
	if user == nil || user.SessionID == "" {
		return ""
	}
	sess, err := h.sessions.Get(r.Context(), user.SessionID)
	if err != nil || sess == nil {
		return ""
	}
	last, _ := sess.State[stateLastAgent].(string)
	if _, ok := h.catalog.Lookup(last); !ok {
		// A stale selection from a removed catalog entry is dropped.
		return ""
	}
	return last
}

// chatTurn forwards the request body to the agent runtime with the caller's
// bearer attached and streams the response back unchanged.
func (h *Handler) chatTurn(w http.ResponseWriter, r *http.Request) {
	agent := h.catalog.Resolve(r.PathValue("id"))
	h.rememberAgent(r, agent)

	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodPost, agent.URL, r.Body)
	if err != nil {
		h.log.Error("agents: building turn request", "agent", agent.ID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": map[string]string{"code": "AGENT_UNAVAILABLE", "message": "The agent is unavailable."},
		})
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		upstream.Header.Set("Content-Type", ct)
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		upstream.Header.Set("Accept", accept)
	}
	if user := identity.UserFrom(r.Context()); user != nil && user.AccessToken != "" {
		upstream.Header.Set("Authorization", "Bearer "+user.AccessToken)
	}

	resp, err := h.httpc.Do(upstream)
	if err != nil {
		h.log.Error("agents: turn forward failed", "agent", agent.ID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": map[string]string{"code": "AGENT_UNAVAILABLE", "message": "The agent did not respond."},
		})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(newFlushWriter(w), resp.Body); err != nil {
		h.log.Warn("agents: turn stream interrupted", "agent", agent.ID, "error", err)
	}
}

// rememberAgent records the resolved agent in the caller's session state.
// Best effort: a write failure is logged and the turn proceeds.
func (h *Handler) rememberAgent(r *http.Request, agent Agent) {
	if h.sessions == nil {
		return
	}
	user := identity.UserFrom(r.Context())
	if user == nil || user.SessionID == "" {
		return
	}
	err := h.sessions.UpdateState(r.Context(), user.SessionID, map[string]any{stateLastAgent: agent.ID})
	if err != nil {
		h.log.Warn("agents: recording selected agent", "agent", agent.ID, "error", err)
	}
}

// flushWriter flushes after every write so streamed agent output reaches the
// browser as it is produced.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newFlushWriter(w http.ResponseWriter) io.Writer {
	f, _ := w.(http.Flusher)
	return &flushWriter{w: w, f: f}
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
