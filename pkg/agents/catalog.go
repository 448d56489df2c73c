// Package agents holds the agent catalog and the chat turn proxy that
// forwards conversational turns to the external agent runtime.
package agents

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultAgentID is used when the client asks for an unknown agent.
const DefaultAgentID = "event-organizer"

// Agent describes one selectable agent in the console.
type Agent struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	InitialMessage string `json:"initialMessage,omitempty" yaml:"initial_message,omitempty"`
	Icon           string `json:"icon,omitempty" yaml:"icon,omitempty"`

	// URL is the external agent runtime endpoint turns are forwarded to.
	// Never serialized to clients.
	URL string `json:"-" yaml:"url"`
}

// Catalog is the ordered set of configured agents with a default fallback.
type Catalog struct {
	agents    map[string]Agent
	order     []string
	defaultID string
}

// NewCatalog builds a catalog. The default id must name one of the agents;
// when empty, the first agent is the default.
func NewCatalog(list []Agent, defaultID string) (*Catalog, error) {
	if len(list) == 0 {
		return nil, errors.New("agents: catalog requires at least one agent")
	}
	c := &Catalog{agents: make(map[string]Agent, len(list))}
	for _, agent := range list {
		id := strings.TrimSpace(agent.ID)
		if id == "" {
			return nil, errors.New("agents: agent id is required")
		}
		if _, dup := c.agents[id]; dup {
			return nil, fmt.Errorf("agents: duplicate agent id %q", id)
		}
		agent.ID = id
		c.agents[id] = agent
		c.order = append(c.order, id)
	}
	if defaultID == "" {
		defaultID = c.order[0]
	}
	if _, ok := c.agents[defaultID]; !ok {
		return nil, fmt.Errorf("agents: default agent %q is not in the catalog", defaultID)
	}
	c.defaultID = defaultID
	return c, nil
}

// Resolve returns the agent for the id, falling back to the default agent
// for unknown or empty ids so the chat surface always has somewhere to send
// a turn.
func (c *Catalog) Resolve(id string) Agent {
	if agent, ok := c.agents[strings.TrimSpace(id)]; ok {
		return agent
	}
	return c.agents[c.defaultID]
}

// Lookup returns the agent for the id without the default fallback.
func (c *Catalog) Lookup(id string) (Agent, bool) {
	agent, ok := c.agents[strings.TrimSpace(id)]
	return agent, ok
}

// Default returns the default agent.
func (c *Catalog) Default() Agent {
	return c.agents[c.defaultID]
}

// List returns the agents in configuration order.
func (c *Catalog) List() []Agent {
	out := make([]Agent, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.agents[id])
	}
	return out
}

// BuiltinAgents is the catalog shipped when no agents are configured.
func BuiltinAgents(runtimeURL string) []Agent {
	base := strings.TrimSuffix(runtimeURL, "/")
	return []Agent{
		{
			ID:             "event-organizer",
			Name:           "Event Organizer",
			Description:    "Plans events end to end: scheduling, invites, and follow-ups.",
			InitialMessage: "Hi! Tell me about the event you want to organize.",
			Icon:           "calendar",
			URL:            base + "/agents/event-organizer",
		},
		{
			ID:             "github-issues",
			Name:           "GitHub Issues",
			Description:    "Triages, files, and updates GitHub issues on your behalf.",
			InitialMessage: "Hi! Which repository are we working on today?",
			Icon:           "github",
			URL:            base + "/agents/github-issues",
		},
	}
}
