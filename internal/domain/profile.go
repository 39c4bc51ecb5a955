package domain

import "time"

// Identity is the authenticated user as reported by the identity provider.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Provider    string `json:"provider"`
	AccessToken string `json:"-"` // never serialized to JSON
}

// Credential is the provider token material returned alongside an identity.
type Credential struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Profile is the per-user document in the store. Only the identity fields
// and LastLoginAt are owned by the session layer; Repositories, Preferences
// and Stats belong to other parts of the system and must survive upserts.
type Profile struct {
	UID          string       `json:"uid"`
	Email        string       `json:"email"`
	DisplayName  string       `json:"display_name"`
	PhotoURL     string       `json:"photo_url,omitempty"`
	Repositories []string     `json:"repositories"`
	Preferences  Preferences  `json:"preferences"`
	Stats        ProfileStats `json:"stats"`
	LastLoginAt  time.Time    `json:"last_login_at"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Preferences holds user-editable settings.
type Preferences struct {
	Theme         string `json:"theme"`
	Notifications bool   `json:"notifications"`
	EmailUpdates  bool   `json:"email_updates"`
}

// ProfileStats holds aggregate dashboard counters.
type ProfileStats struct {
	TotalRepos   int       `json:"total_repos"`
	TotalDocs    int       `json:"total_docs"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// DefaultPreferences are applied when a profile is first created.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "light", Notifications: true, EmailUpdates: false}
}

// UserContext is the authenticated user context injected into request handlers.
type UserContext struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}
