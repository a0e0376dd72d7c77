package models

// ContentKind distinguishes member messages from lifecycle announcements.
type ContentKind string

const (
	KindNormal ContentKind = "normal"
	KindSystem ContentKind = "system"
)

// Message is one row of a channel's history. All *TS fields are unix
// nanoseconds, zero meaning unset. DeletedTS is terminal once set.
type Message struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	SenderID  string      `json:"sender_id"`
	Content   string      `json:"content"`
	ImageRef  string      `json:"image_ref,omitempty"`
	Kind      ContentKind `json:"kind"`
	IsPinned  bool        `json:"is_pinned"`
	EditedTS  int64       `json:"edited_ts,omitempty"`
	DeletedTS int64       `json:"deleted_ts,omitempty"`
	DeletedBy string      `json:"deleted_by,omitempty"`
	ReplyToID string      `json:"reply_to_id,omitempty"`
	CreatedTS int64       `json:"created_ts"`
	// UpdatedTS moves on every store mutation and orders competing updates.
	UpdatedTS int64 `json:"updated_ts"`
}

func (m *Message) IsDeleted() bool { return m.DeletedTS != 0 }

func (m *Message) IsSystem() bool { return m.Kind == KindSystem }

// DeletedByModerator reports whether someone other than the sender removed it.
func (m *Message) DeletedByModerator() bool {
	return m.IsDeleted() && m.DeletedBy != "" && m.DeletedBy != m.SenderID
}

// Less orders messages by creation time, ties broken by id.
func (m *Message) Less(o *Message) bool {
	if m.CreatedTS != o.CreatedTS {
		return m.CreatedTS < o.CreatedTS
	}
	return m.ID < o.ID
}

// SendRequest is the body of a send call.
type SendRequest struct {
	Content   string `json:"content"`
	ImageRef  string `json:"image_ref,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

// EditRequest is the body of an edit call.
type EditRequest struct {
	Content string `json:"content"`
}
