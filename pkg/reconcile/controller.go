// Package reconcile converges the connection card UI with authoritative
// provider state. A Controller is driven by explicit events (tool result
// changed, primary action, refresh, disconnect, cancel) and exposes a
// Snapshot for rendering. It owns at most one in-flight wait and at most one
// authorization popup; any reset cancels both.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oakline/agent-console/pkg/connecthub"
)

// Phase is the discriminated state of a connection card.
type Phase string

const (
	// PhasePending means the tool call has not completed yet.
	PhasePending Phase = "pending"
	// PhaseError means the tool call failed or returned no usable payload.
	PhaseError Phase = "error"
	// PhaseNeedsAuth means a connection exists but has not been authorized.
	PhaseNeedsAuth Phase = "needs_auth"
	// PhaseAwaitingVerification means the popup is open and a wait is in
	// flight.
	PhaseAwaitingVerification Phase = "awaiting_verification"
	// PhaseActive means the connection is verified and usable.
	PhaseActive Phase = "active"
	// PhaseDisconnected means the account was deleted; nothing is actionable
	// until a new tool call produces a new connection id.
	PhaseDisconnected Phase = "disconnected"
)

// ContinueMessage is the synthetic chat message appended when a connection
// first becomes active, resuming the task that triggered the authorization.
const ContinueMessage = "Continue"

// User-facing messages for terminal wait and action outcomes.
const (
	MsgVerificationCancelled = "Verification cancelled."
	MsgWaitTimeout           = "Timed out waiting for the connection to become active. Try again."
	MsgNotFound              = "Connection not found. Ask the agent to start a new connection."
	MsgConnectionFailed      = "The connection attempt failed. Restart the authorization flow."
	MsgUnknownFailure        = "Something went wrong while verifying the connection."
	MsgPopupBlocked          = "Your browser blocked the authorization window. Allow popups for this site and try again."
	MsgConnectionVerified    = "Connection verified."
	MsgDisconnected          = "Disconnected. Ask the agent to reconnect when you need this tool again."
	MsgToolCallFailed        = "The connection request did not complete. Ask the agent to try again."
)

// ErrActionUnavailable is returned when an event is not valid in the current
// phase, for example a primary action while disconnected.
var ErrActionUnavailable = errors.New("reconcile: action unavailable in current phase")

// Provider is the subset of the connection provider client the controller
// drives.
type Provider interface {
	RefreshConnectedAccount(ctx context.Context, id string) (*connecthub.RefreshResponse, error)
	DeleteConnectedAccount(ctx context.Context, id string) (*connecthub.DeleteResponse, error)
	WaitForConnection(ctx context.Context, id string, timeout time.Duration) (*connecthub.ConnectedAccount, error)
}

var _ Provider = (*connecthub.Client)(nil)

// Continuer appends the auto-continuation message to the chat transcript when
// a connection first becomes active. Implementations must not call back into
// the controller.
type Continuer interface {
	AutoContinue(connectionID string)
}

// ToolResult is the observed state of the tool invocation backing a card.
type ToolResult struct {
	// Complete is false while the call is still streaming.
	Complete bool
	// Failed marks a call that completed with an error.
	Failed bool
	// Payload is the raw tool response body.
	Payload map[string]any
}

// Config configures a Controller. Provider is required; the rest default to
// inert implementations.
type Config struct {
	Provider    Provider
	Window      WindowManager
	Continuer   Continuer
	WaitTimeout time.Duration
	IDKeys      []string
	Logger      *slog.Logger
}

// Controller is the reconciliation engine for one connection card.
type Controller struct {
	provider    Provider
	window      WindowManager
	continuer   Continuer
	waitTimeout time.Duration
	idKeys      []string
	log         *slog.Logger

	mu           sync.Mutex
	phase        Phase
	connectionID string
	status       string
	redirectURL  string
	account      *connecthub.ConnectedAccount
	message      string
	errMessage   string
	busy         bool
	continued    map[string]bool
	wait         *waitSession

	done sync.WaitGroup
}

type waitSession struct {
	cancel context.CancelFunc
}

// NewController creates a controller in the pending phase.
func NewController(cfg Config) *Controller {
	window := cfg.Window
	if window == nil {
		window = noopWindow{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	keys := cfg.IDKeys
	if len(keys) == 0 {
		keys = connecthub.DefaultAccountIDKeys
	}
	return &Controller{
		provider:    cfg.Provider,
		window:      window,
		continuer:   cfg.Continuer,
		waitTimeout: cfg.WaitTimeout,
		idKeys:      keys,
		log:         log,
		phase:       PhasePending,
		continued:   make(map[string]bool),
	}
}

// SetToolResult reconciles the controller against a (possibly re-rendered)
// tool invocation result. A changed connection id resets everything: the
// in-flight wait is cancelled and the popup closed. Re-delivery of an
// unchanged result is a no-op for in-flight and terminal phases.
func (c *Controller) SetToolResult(res ToolResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := connecthub.AccountIDFromKeys(res.Payload, c.idKeys)
	if id != c.connectionID {
		c.resetLocked()
		c.connectionID = id
	}

	if !res.Complete {
		c.phase = PhasePending
		return
	}
	if res.Failed || len(res.Payload) == 0 {
		c.phase = PhaseError
		c.errMessage = MsgToolCallFailed
		return
	}
	if id == "" {
		c.phase = PhaseError
		c.errMessage = MsgToolCallFailed
		return
	}

	// Local terminal and in-flight phases shadow replayed results for the
	// same id until the user or the wait moves the card forward.
	if c.phase == PhaseDisconnected || c.phase == PhaseAwaitingVerification || c.phase == PhaseActive {
		return
	}

	if status := payloadString(res.Payload, "status"); status != "" {
		c.status = status
	}
	if redirect := payloadString(res.Payload, "redirect_url", "redirectUrl"); redirect != "" {
		c.redirectURL = redirect
	}

	switch c.status {
	case connecthub.StatusActive, connecthub.StatusSuccess:
		c.enterActiveLocked()
	default:
		c.phase = PhaseNeedsAuth
	}
}

// PrimaryAction runs the card's primary action for the current phase: open
// the popup and start waiting in needs-auth, refresh in active. Anything else
// returns ErrActionUnavailable.
func (c *Controller) PrimaryAction(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseNeedsAuth:
		defer c.mu.Unlock()
		if c.redirectURL != "" && !c.window.Open(c.redirectURL) {
			c.errMessage = MsgPopupBlocked
			return nil
		}
		c.startWaitLocked()
		return nil
	case PhaseActive:
		c.mu.Unlock()
		return c.Refresh(ctx)
	default:
		c.mu.Unlock()
		return ErrActionUnavailable
	}
}

// Refresh asks the provider to refresh the connection. A redirect URL in the
// response reopens the authorization popup and starts a new wait. Failures
// surface as a message and leave the prior phase intact.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.connectionID == "" || c.busy {
		c.mu.Unlock()
		return ErrActionUnavailable
	}
	id := c.connectionID
	c.busy = true
	c.errMessage = ""
	c.mu.Unlock()

	resp, err := c.provider.RefreshConnectedAccount(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if id != c.connectionID {
		return nil
	}
	if err != nil {
		c.log.Warn("reconcile: refresh failed", "connection_id", id, "error", err)
		c.errMessage = actionFailureMessage(err)
		return err
	}

	if resp.RedirectURL != "" {
		c.redirectURL = resp.RedirectURL
		if !c.window.Open(resp.RedirectURL) {
			c.phase = PhaseNeedsAuth
			c.errMessage = MsgPopupBlocked
			return nil
		}
		c.startWaitLocked()
		return nil
	}
	if resp.Status != "" {
		c.status = resp.Status
	}
	switch c.status {
	case connecthub.StatusActive, connecthub.StatusSuccess:
		c.enterActiveLocked()
		c.message = "Connection refreshed."
	default:
		c.phase = PhaseNeedsAuth
	}
	return nil
}

// Disconnect deletes the connected account. A not-found response counts as
// success so repeated deletes stay idempotent from the caller's view. On
// success the card moves to disconnected: metadata cleared, status inactive,
// no actions until a new connection id appears.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.connectionID == "" || c.busy || c.phase == PhaseDisconnected {
		c.mu.Unlock()
		return ErrActionUnavailable
	}
	id := c.connectionID
	c.busy = true
	c.errMessage = ""
	c.mu.Unlock()

	_, err := c.provider.DeleteConnectedAccount(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if id != c.connectionID {
		return nil
	}
	if err != nil && !errors.Is(err, connecthub.ErrNotFound) {
		c.log.Warn("reconcile: disconnect failed", "connection_id", id, "error", err)
		c.errMessage = actionFailureMessage(err)
		return err
	}

	c.cancelWaitLocked()
	c.window.Close()
	c.account = nil
	c.redirectURL = ""
	c.status = connecthub.StatusInactive
	c.phase = PhaseDisconnected
	c.message = MsgDisconnected
	return nil
}

// CancelWait aborts the in-flight wait, closes the popup, and resolves the
// card to a cancelled message, not a failure. No-op when nothing is waiting.
func (c *Controller) CancelWait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wait == nil {
		return
	}
	c.cancelWaitLocked()
	c.window.Close()
	c.phase = PhaseNeedsAuth
	c.message = MsgVerificationCancelled
	c.errMessage = ""
}

// Teardown cancels any in-flight wait and closes the popup. Call when the
// card leaves the screen; no background operation survives it.
func (c *Controller) Teardown() {
	c.mu.Lock()
	c.cancelWaitLocked()
	c.window.Close()
	c.mu.Unlock()
	c.done.Wait()
}

// startWaitLocked cancels any prior wait and starts a new one. At most one
// wait session is ever active.
func (c *Controller) startWaitLocked() {
	c.cancelWaitLocked()

	ctx, cancel := context.WithCancel(context.Background())
	session := &waitSession{cancel: cancel}
	c.wait = session
	c.phase = PhaseAwaitingVerification
	c.message = ""
	c.errMessage = ""

	id := c.connectionID
	timeout := c.waitTimeout
	c.done.Add(1)
	go func() {
		defer c.done.Done()
		defer cancel()
		account, err := c.provider.WaitForConnection(ctx, id, timeout)
		c.applyWaitResult(session, account, err)
	}()
}

func (c *Controller) cancelWaitLocked() {
	if c.wait != nil {
		c.wait.cancel()
		c.wait = nil
	}
}

// applyWaitResult folds a wait outcome into the card. Results from a
// superseded session are dropped; cancellation was already resolved at the
// cancel site.
func (c *Controller) applyWaitResult(session *waitSession, account *connecthub.ConnectedAccount, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wait != session {
		return
	}
	c.wait = nil
	c.window.Close()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.log.Warn("reconcile: wait resolved with error", "connection_id", c.connectionID, "error", err)
		c.phase = PhaseNeedsAuth
		c.errMessage = waitFailureMessage(err)
		return
	}
	if account == nil {
		c.log.Warn("reconcile: wait resolved without an account", "connection_id", c.connectionID)
		c.phase = PhaseNeedsAuth
		c.errMessage = MsgUnknownFailure
		return
	}

	c.account = account
	c.status = account.Status
	c.enterActiveLocked()
}

// enterActiveLocked moves the card to active and fires the auto-continuation
// at most once per connection id, re-renders included.
func (c *Controller) enterActiveLocked() {
	c.phase = PhaseActive
	c.status = connecthub.StatusActive
	c.message = MsgConnectionVerified
	c.errMessage = ""
	if c.continued[c.connectionID] {
		return
	}
	c.continued[c.connectionID] = true
	if c.continuer != nil {
		c.continuer.AutoContinue(c.connectionID)
	}
}

// resetLocked clears everything keyed to the previous connection id. The
// continuation ledger survives so a returning id cannot re-fire.
func (c *Controller) resetLocked() {
	c.cancelWaitLocked()
	c.window.Close()
	c.connectionID = ""
	c.status = ""
	c.redirectURL = ""
	c.account = nil
	c.message = ""
	c.errMessage = ""
	c.busy = false
	c.phase = PhasePending
}

func waitFailureMessage(err error) string {
	switch {
	case errors.Is(err, connecthub.ErrTimeout):
		return MsgWaitTimeout
	case errors.Is(err, connecthub.ErrNotFound):
		return MsgNotFound
	case errors.Is(err, connecthub.ErrConnectionFailed):
		return MsgConnectionFailed
	default:
		return MsgUnknownFailure
	}
}

func actionFailureMessage(err error) string {
	switch {
	case errors.Is(err, connecthub.ErrNotFound):
		return MsgNotFound
	case errors.Is(err, connecthub.ErrTimeout):
		return MsgWaitTimeout
	case errors.Is(err, connecthub.ErrConnectionFailed):
		return MsgConnectionFailed
	default:
		return MsgUnknownFailure
	}
}

func payloadString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key].(string); ok {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
