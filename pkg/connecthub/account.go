package connecthub

import (
	"strings"
	"time"
	"unicode"
)

// DefaultAccountIDKeys is the ordered list of payload keys probed for a
// connected account identifier. The set is provider-defined and has drifted
// across API revisions, so callers may supply their own list via
// AccountIDFromKeys when the provider schema changes again.
var DefaultAccountIDKeys = []string{
	"connected_account_id",
	"connectedAccountId",
	"connected_account",
	"connectedAccount",
	"connection_id",
	"connectionId",
	"id",
}

// AccountID extracts a connected account identifier from an arbitrary tool
// response payload using DefaultAccountIDKeys. It returns "" when no
// candidate matches; absence means "not yet actionable", never an error.
func AccountID(payload map[string]any) string {
	return AccountIDFromKeys(payload, DefaultAccountIDKeys)
}

// AccountIDFromKeys extracts an identifier probing keys in order. A string
// candidate wins directly; an object candidate is descended one level into
// its "id" field. The first non-empty trimmed string wins.
func AccountIDFromKeys(payload map[string]any, keys []string) string {
	if payload == nil {
		return ""
	}
	for _, key := range keys {
		value, ok := payload[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case map[string]any:
			if id, ok := v["id"].(string); ok {
				if trimmed := strings.TrimSpace(id); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}

// friendlyNameKeys are probed in order against the account state bag for a
// human-readable account label.
var friendlyNameKeys = []string{
	"account_email",
	"account_name",
	"account_username",
	"account_display_name",
	"email",
	"name",
	"username",
	"login",
	"user",
	"user_name",
}

// FriendlyName returns a human-readable label for the account holder, probing
// the provider state bag for email/name style fields. Returns "" when nothing
// usable is present.
func FriendlyName(account *ConnectedAccount) string {
	if account == nil || account.State == nil || account.State.Val == nil {
		return ""
	}
	for _, key := range friendlyNameKeys {
		if v, ok := account.State.Val[key].(string); ok {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// DisplayName resolves the best display label for an account: friendly name,
// then auth config name, then the supplied fallback, then shortened user or
// account identifiers.
func DisplayName(account *ConnectedAccount, fallback string) string {
	if name := FriendlyName(account); name != "" {
		return name
	}
	if account != nil && account.AuthConfig != nil {
		if name := strings.TrimSpace(account.AuthConfig.Name); name != "" {
			return name
		}
	}
	if trimmed := strings.TrimSpace(fallback); trimmed != "" {
		return trimmed
	}
	if account != nil {
		if id := strings.TrimSpace(account.UserID); id != "" {
			return "User " + ShortenID(id, 12)
		}
		if id := strings.TrimSpace(account.ID); id != "" {
			return "Account " + ShortenID(id, 12)
		}
	}
	return "Connected account"
}

// UpdatedAtValue returns the account's last-updated timestamp, preferring the
// current camelCase field and falling back to the legacy snake_case one.
// Returns the zero time when neither parses as RFC 3339.
func (a *ConnectedAccount) UpdatedAtValue() time.Time {
	if a == nil {
		return time.Time{}
	}
	for _, raw := range []string{a.UpdatedAt, a.UpdatedAtLegacy} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// FormatStatus renders a provider status constant for display:
// "INITIATED" becomes "Initiated", "AUTH_PENDING" becomes "Auth Pending".
func FormatStatus(status string) string {
	if status == "" {
		return ""
	}
	words := strings.Split(strings.ToLower(status), "_")
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

// ToolkitNameFromSlug derives a display name from a toolkit slug:
// "github-issues" becomes "Github Issues".
func ToolkitNameFromSlug(slug string) string {
	if slug == "" {
		return ""
	}
	segments := strings.FieldsFunc(slug, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, s := range segments {
		segments[i] = capitalize(s)
	}
	return strings.Join(segments, " ")
}

// ShortenID abbreviates long identifiers for display, keeping the head and
// tail around an ellipsis.
func ShortenID(value string, maxLength int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= maxLength {
		return trimmed
	}
	segment := (maxLength - 1) / 2
	if segment < 2 {
		segment = 2
	}
	return trimmed[:segment] + "…" + trimmed[len(trimmed)-segment:]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
