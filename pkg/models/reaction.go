package models

// Reaction is identified by (MessageID, Emoji, UserID).
type Reaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"user_id"`
	CreatedTS int64  `json:"created_ts"`
}
