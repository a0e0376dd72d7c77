package models

// Channel is a scoped conversation: a group's general channel or a
// per-event channel. Only Name changes after creation.
type Channel struct {
	ID        string `json:"id"`
	GroupID   string `json:"group_id"`
	EventID   string `json:"event_id,omitempty"`
	Name      string `json:"name"`
	CreatedTS int64  `json:"created_ts"`
}

// MemberRole is the role a member holds in the owning group.
type MemberRole string

const (
	RoleMember MemberRole = "member"
	RoleAdmin  MemberRole = "admin"
)

// Member is a roster entry derived from group membership.
type Member struct {
	ID          string     `json:"id"`
	GroupID     string     `json:"group_id"`
	DisplayName string     `json:"display_name"`
	AvatarRef   string     `json:"avatar_ref,omitempty"`
	Role        MemberRole `json:"role"`
	// LastReadTS is per channel; it is filled in when the roster is read for
	// a specific channel.
	LastReadTS int64 `json:"last_read_ts,omitempty"`
	Mute       *Mute `json:"mute,omitempty"`
}

func (m Member) IsAdmin() bool { return m.Role == RoleAdmin }
