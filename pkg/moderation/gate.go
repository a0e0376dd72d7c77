// Package moderation is the authorization check applied before every
// mutating chat action. It is pure: callers pass the acting member, the
// target and the current time, and get back nil or a *Rejection.
package moderation

import (
	"errors"
	"fmt"
	"time"

	"groupchat/pkg/models"
)

// Reason is the user-attributable cause of a rejection.
type Reason string

const (
	ReasonMuted         Reason = "muted"
	ReasonNotAuthorized Reason = "not_authorized"
	ReasonDeleted       Reason = "deleted"
	ReasonSystemMessage Reason = "system_message"
)

// Action names a gated operation.
type Action string

const (
	ActionSend   Action = "send"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionPin    Action = "pin"
	ActionUnpin  Action = "unpin"
	ActionReact  Action = "react"
	ActionReply  Action = "reply"
	ActionMute   Action = "mute"
	ActionUnmute Action = "unmute"
	ActionRename Action = "rename"
	ActionRead   Action = "read"
)

// Rejection is returned for every refused action.
type Rejection struct {
	Action  Action `json:"action"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s rejected: %s", r.Action, r.Message)
}

// Is matches any rejection with the same reason, so
// errors.Is(err, moderation.ErrMuted) works regardless of action.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	if !ok {
		return false
	}
	return t.Reason == r.Reason && (t.Action == "" || t.Action == r.Action)
}

var (
	ErrMuted         = &Rejection{Reason: ReasonMuted, Message: "you are muted in this group"}
	ErrNotAuthorized = &Rejection{Reason: ReasonNotAuthorized, Message: "not authorized"}
	ErrDeleted       = &Rejection{Reason: ReasonDeleted, Message: "message has been deleted"}
	ErrSystemMessage = &Rejection{Reason: ReasonSystemMessage, Message: "system messages cannot be changed"}
)

func reject(a Action, r Reason, msg string) *Rejection {
	return &Rejection{Action: a, Reason: r, Message: msg}
}

// AsRejection unwraps err into a *Rejection when it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// Actor is the member performing an action, as the caller currently knows it.
type Actor struct {
	UserID  string
	IsAdmin bool
	// Mute is the actor's mute in the channel's owning group, if any.
	Mute *models.Mute
}

// ActorFor builds an Actor from a roster entry.
func ActorFor(m models.Member, mute *models.Mute) Actor {
	return Actor{UserID: m.ID, IsAdmin: m.IsAdmin(), Mute: mute}
}

// CanSend rejects members with an active mute. An expired mute is treated as
// no mute at all.
func CanSend(a Actor, now time.Time) error {
	if a.Mute.ActiveAt(now) {
		if a.Mute.Permanent {
			return reject(ActionSend, ReasonMuted, "you are muted in this group")
		}
		until := time.Unix(0, a.Mute.UntilTS).UTC().Format(time.RFC3339)
		return reject(ActionSend, ReasonMuted, "you are muted in this group until "+until)
	}
	return nil
}

// CanReply checks that target may be replied to.
func CanReply(target *models.Message) error {
	if target.IsSystem() {
		return reject(ActionReply, ReasonSystemMessage, "system messages cannot be replied to")
	}
	return nil
}

// CanEdit allows only the original sender, never on system or deleted messages.
func CanEdit(a Actor, target *models.Message) error {
	if target.IsSystem() {
		return reject(ActionEdit, ReasonSystemMessage, "system messages cannot be edited")
	}
	if target.IsDeleted() {
		return reject(ActionEdit, ReasonDeleted, "message has been deleted")
	}
	if a.UserID == "" || a.UserID != target.SenderID {
		return reject(ActionEdit, ReasonNotAuthorized, "only the author can edit this message")
	}
	return nil
}

// CanDelete allows the sender or any admin. Deleting twice is rejected so
// deleted_by is never overwritten.
func CanDelete(a Actor, target *models.Message) error {
	if target.IsDeleted() {
		return reject(ActionDelete, ReasonDeleted, "message has already been deleted")
	}
	if a.UserID == "" {
		return reject(ActionDelete, ReasonNotAuthorized, "not authorized to delete this message")
	}
	if a.UserID != target.SenderID && !a.IsAdmin {
		return reject(ActionDelete, ReasonNotAuthorized, "only the author or an admin can delete this message")
	}
	return nil
}

// CanPin is admin-only. Unpinning a deleted message is allowed so a stale pin
// can always be cleared; pinning one is not.
func CanPin(a Actor, target *models.Message, pin bool) error {
	action := ActionPin
	if !pin {
		action = ActionUnpin
	}
	if !a.IsAdmin {
		return reject(action, ReasonNotAuthorized, "only admins can "+string(action)+" messages")
	}
	if pin && target.IsDeleted() {
		return reject(action, ReasonDeleted, "message has been deleted")
	}
	return nil
}

// CanReact rejects reactions on system and deleted messages.
func CanReact(a Actor, target *models.Message) error {
	if target.IsSystem() {
		return reject(ActionReact, ReasonSystemMessage, "system messages cannot be reacted to")
	}
	if target.IsDeleted() {
		return reject(ActionReact, ReasonDeleted, "message has been deleted")
	}
	if a.UserID == "" {
		return reject(ActionReact, ReasonNotAuthorized, "not authorized")
	}
	return nil
}

// CanMute is admin-only and an admin may not mute themself.
func CanMute(a Actor, targetUserID string) error {
	if !a.IsAdmin {
		return reject(ActionMute, ReasonNotAuthorized, "only admins can mute members")
	}
	if a.UserID == targetUserID {
		return reject(ActionMute, ReasonNotAuthorized, "admins cannot mute themselves")
	}
	return nil
}

// CanUnmute is admin-only.
func CanUnmute(a Actor) error {
	if !a.IsAdmin {
		return reject(ActionUnmute, ReasonNotAuthorized, "only admins can unmute members")
	}
	return nil
}

// CanRename is admin-only.
func CanRename(a Actor) error {
	if !a.IsAdmin {
		return reject(ActionRename, ReasonNotAuthorized, "only admins can rename channels")
	}
	return nil
}

// NotMember rejects an actor that is not on the owning group's roster.
func NotMember(a Action) *Rejection {
	return reject(a, ReasonNotAuthorized, "not a member of this group")
}
