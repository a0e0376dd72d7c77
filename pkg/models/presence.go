package models

// PresenceEntry is the ephemeral per-connection typing state. It is a
// projection of live connections and is never written to the store.
type PresenceEntry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Typing      bool   `json:"typing"`
	ExpiresTS   int64  `json:"expires_ts,omitempty"`
}
