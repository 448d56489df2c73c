package reconcile

import "github.com/oakline/agent-console/pkg/connecthub"

// Primary action labels by phase.
const (
	LabelConnectVerify   = "Connect & Verify"
	LabelCheckConnection = "Check connection"
	LabelRefresh         = "Refresh connection"
	LabelVerifying       = "Verifying connection…"
	LabelRefreshing      = "Refreshing…"
)

// Snapshot is an immutable view of the card for rendering. Fields carry
// presentation decisions (labels, badge style, action availability) so the
// renderer stays free of phase logic.
type Snapshot struct {
	Phase        Phase
	ConnectionID string
	Status       string
	StatusLabel  string
	BadgeStyle   string
	DisplayName  string

	PrimaryLabel   string
	PrimaryEnabled bool
	CanCancel      bool
	CanDisconnect  bool

	Message      string
	ErrorMessage string
	Busy         bool
}

// Snapshot returns the current render state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Phase:        c.phase,
		ConnectionID: c.connectionID,
		Status:       c.status,
		StatusLabel:  connecthub.FormatStatus(c.status),
		BadgeStyle:   connecthub.BadgeStyle(c.status),
		Message:      c.message,
		ErrorMessage: c.errMessage,
		Busy:         c.busy,
	}
	if c.account != nil {
		s.DisplayName = connecthub.DisplayName(c.account, "")
	}

	switch c.phase {
	case PhaseNeedsAuth:
		if c.redirectURL != "" {
			s.PrimaryLabel = LabelConnectVerify
		} else {
			s.PrimaryLabel = LabelCheckConnection
		}
		s.PrimaryEnabled = !c.busy
	case PhaseAwaitingVerification:
		s.PrimaryLabel = LabelVerifying
		s.CanCancel = true
	case PhaseActive:
		if c.busy {
			s.PrimaryLabel = LabelRefreshing
		} else {
			s.PrimaryLabel = LabelRefresh
			s.PrimaryEnabled = true
		}
		s.CanDisconnect = !c.busy
	}
	return s
}
