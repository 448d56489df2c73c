// Package tools exposes connection operations to the agent runtime as MCP
// tools, so an agent can inspect the caller's connected accounts mid-task.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/oakline/agent-console/pkg/connecthub"
)

// Toolkit registers the connection tools against an MCP server.
type Toolkit struct {
	hub *connecthub.Client
	log *slog.Logger
}

// NewToolkit creates a Toolkit. A nil hub falls back to the process-wide
// client handle at call time so tools report misconfiguration per call
// instead of failing registration.
func NewToolkit(hub *connecthub.Client, log *slog.Logger) *Toolkit {
	if log == nil {
		log = slog.Default()
	}
	return &Toolkit{hub: hub, log: log}
}

// RegisterTools registers all connection tools with the MCP server.
func (t *Toolkit) RegisterTools(server *mcp.Server) {
	t.registerListTool(server)
	t.registerGetTool(server)
}

func (t *Toolkit) client() *connecthub.Client {
	if t.hub != nil {
		return t.hub
	}
	return connecthub.Default()
}

// listInput filters the connected account listing.
type listInput struct {
	ToolkitSlug string `json:"toolkit_slug,omitempty" jsonschema:"filter accounts by toolkit slug"`
	UserID      string `json:"user_id,omitempty" jsonschema:"filter accounts by provider user id"`
	Status      string `json:"status,omitempty" jsonschema:"filter accounts by connection status"`
}

// accountEntry is the per-account summary returned to the agent.
type accountEntry struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	StatusLabel string `json:"status_label"`
	Toolkit     string `json:"toolkit,omitempty"`
	DisplayName string `json:"display_name"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type listOutput struct {
	Accounts []accountEntry `json:"accounts"`
	Count    int            `json:"count"`
}

func (t *Toolkit) registerListTool(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_connected_accounts",
		Description: "List the user's connected accounts, optionally filtered by toolkit slug, user id, or status.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input listInput) (*mcp.CallToolResult, any, error) {
		return t.handleList(ctx, input)
	})
}

func (t *Toolkit) handleList(ctx context.Context, input listInput) (*mcp.CallToolResult, any, error) {
	hub := t.client()
	if hub == nil {
		return toolError("The tool-connection provider is not configured."), nil, nil
	}

	filters := url.Values{}
	if slug := strings.TrimSpace(input.ToolkitSlug); slug != "" {
		filters.Set("toolkit_slug", slug)
	}
	if userID := strings.TrimSpace(input.UserID); userID != "" {
		filters.Set("user_id", userID)
	}
	if status := strings.TrimSpace(input.Status); status != "" {
		filters.Set("status", status)
	}

	list, err := hub.ListConnectedAccounts(ctx, filters)
	if err != nil {
		t.log.Warn("tools: list connected accounts failed", "error", err)
		return toolError("Unable to list connected accounts: " + err.Error()), nil, nil
	}

	entries := make([]accountEntry, 0, len(list.Items))
	for i := range list.Items {
		entries = append(entries, summarize(&list.Items[i]))
	}
	return toolJSON(listOutput{Accounts: entries, Count: len(entries)})
}

// getInput identifies the account to fetch.
type getInput struct {
	ConnectedAccountID string `json:"connected_account_id" jsonschema:"the connected account identifier"`
}

type getOutput struct {
	Account accountEntry `json:"account"`
	Found   bool         `json:"found"`
}

func (t *Toolkit) registerGetTool(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_connected_account",
		Description: "Fetch the current state of one connected account by id.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input getInput) (*mcp.CallToolResult, any, error) {
		return t.handleGet(ctx, input)
	})
}

func (t *Toolkit) handleGet(ctx context.Context, input getInput) (*mcp.CallToolResult, any, error) {
	hub := t.client()
	if hub == nil {
		return toolError("The tool-connection provider is not configured."), nil, nil
	}
	id := strings.TrimSpace(input.ConnectedAccountID)
	if id == "" {
		return toolError("connected_account_id is required."), nil, nil
	}

	account, err := hub.GetConnectedAccount(ctx, id)
	if err != nil {
		if errors.Is(err, connecthub.ErrNotFound) {
			return toolJSON(getOutput{Found: false})
		}
		t.log.Warn("tools: get connected account failed", "connected_account_id", id, "error", err)
		return toolError("Unable to fetch the connected account: " + err.Error()), nil, nil
	}
	return toolJSON(getOutput{Account: summarize(account), Found: true})
}

func summarize(account *connecthub.ConnectedAccount) accountEntry {
	entry := accountEntry{
		ID:          account.ID,
		Status:      account.Status,
		StatusLabel: connecthub.FormatStatus(account.Status),
		DisplayName: connecthub.DisplayName(account, ""),
	}
	if account.Toolkit != nil {
		entry.Toolkit = account.Toolkit.Slug
	}
	if ts := account.UpdatedAtValue(); !ts.IsZero() {
		entry.UpdatedAt = ts.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return entry
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Error: " + err.Error()), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
