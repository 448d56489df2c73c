// Package connecthub provides a typed client for the upstream tool-connection
// provider API. It manages connected accounts (the stored link between an end
// user and an external service) and the toolkit metadata used to render them.
package connecthub

// Connection status values reported by the provider. The set is
// provider-defined; unknown values are passed through opaquely and callers
// fall back to the default badge style.
const (
	StatusActive       = "ACTIVE"
	StatusInactive     = "INACTIVE"
	StatusInitiated    = "INITIATED"
	StatusInitializing = "INITIALIZING"
	StatusPending      = "PENDING"
	StatusExpired      = "EXPIRED"
	StatusSuccess      = "SUCCESS"
	StatusFailed       = "FAILED"
)

// Badge style names for rendering a status. Values are presentation hints,
// not CSS; the web client maps them onto its own styles.
const (
	BadgePositive = "positive"
	BadgeNegative = "negative"
	BadgeWarning  = "warning"
	BadgePending  = "pending"
)

// StatusBadgeStyles maps known connection statuses to badge styles.
var StatusBadgeStyles = map[string]string{
	StatusSuccess:      BadgePositive,
	StatusActive:       BadgePositive,
	StatusFailed:       BadgeNegative,
	StatusExpired:      BadgeNegative,
	StatusInactive:     BadgeWarning,
	StatusInitiated:    BadgePending,
	StatusInitializing: BadgePending,
	StatusPending:      BadgePending,
}

// BadgeStyle returns the badge style for a status, falling back to
// BadgePending for unknown values.
func BadgeStyle(status string) string {
	if style, ok := StatusBadgeStyles[status]; ok {
		return style
	}
	return BadgePending
}

// ConnectedAccount is a stored link between the end user and an external
// third-party service, as reported by the provider.
type ConnectedAccount struct {
	ID           string        `json:"id"`
	Status       string        `json:"status"`
	StatusReason string        `json:"statusReason,omitempty"`
	UserID       string        `json:"userId,omitempty"`
	AuthConfig   *AuthConfig   `json:"authConfig,omitempty"`
	Toolkit      *ToolkitRef   `json:"toolkit,omitempty"`
	State        *AccountState `json:"state,omitempty"`
	CreatedAt    string        `json:"createdAt,omitempty"`
	UpdatedAt    string        `json:"updatedAt,omitempty"`

	// UpdatedAtLegacy carries the snake_case timestamp older provider
	// responses use. Prefer the UpdatedAtValue helper over reading either
	// field directly.
	UpdatedAtLegacy string `json:"updated_at,omitempty"`
}

// AuthConfig identifies the auth configuration an account was created from.
type AuthConfig struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// ToolkitRef is the toolkit reference embedded in account responses.
type ToolkitRef struct {
	Slug string `json:"slug"`
}

// AccountState holds the provider-side auth state for an account. Val is an
// opaque bag; the friendly-name extractor probes it for display candidates.
type AccountState struct {
	AuthScheme string         `json:"authScheme,omitempty"`
	Val        map[string]any `json:"val,omitempty"`
}

// Toolkit is the external service/integration type a connected account links
// to, with optional display metadata.
type Toolkit struct {
	Slug string       `json:"slug"`
	Name string       `json:"name"`
	Meta *ToolkitMeta `json:"meta,omitempty"`
}

// ToolkitMeta is display-only toolkit metadata.
type ToolkitMeta struct {
	Description string `json:"description,omitempty"`
	Logo        string `json:"logo,omitempty"`
}

// Logo returns the toolkit logo URL, or empty when metadata is absent.
func (t *Toolkit) LogoURL() string {
	if t == nil || t.Meta == nil {
		return ""
	}
	return t.Meta.Logo
}

// ConnectedAccountList is a page of connected accounts.
type ConnectedAccountList struct {
	Items      []ConnectedAccount `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
	TotalPages int                `json:"totalPages,omitempty"`
}

// RefreshResponse is returned by a refresh request. Status and RedirectURL
// are both optional: a refresh may complete silently or require the user to
// re-authorize through the redirect.
type RefreshResponse struct {
	ID          string `json:"id,omitempty"`
	Status      string `json:"status,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

// DeleteResponse is returned by a delete request.
type DeleteResponse struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}
