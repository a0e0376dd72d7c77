package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind tags a broadcast frame.
type EventKind string

const (
	EventMessageInserted  EventKind = "message.inserted"
	EventMessageUpdated   EventKind = "message.updated"
	EventReactionInserted EventKind = "reaction.inserted"
	EventReactionRemoved  EventKind = "reaction.removed"
	EventPresenceChanged  EventKind = "presence.changed"
	EventMuteChanged      EventKind = "mute.changed"
)

// Event is one of the broadcast variants below. Values are always validated
// before they reach a consumer.
type Event interface {
	Kind() EventKind
	Channel() string
	validate() error
}

type MessageInserted struct {
	Message Message `json:"message"`
}

type MessageUpdated struct {
	Message Message `json:"message"`
}

type ReactionInserted struct {
	ChannelID string   `json:"channel_id"`
	Reaction  Reaction `json:"reaction"`
}

type ReactionRemoved struct {
	ChannelID string   `json:"channel_id"`
	Reaction  Reaction `json:"reaction"`
}

// MuteChanged announces a mute issued or lifted in the channel's group. A
// nil Mute means the member may send again.
type MuteChanged struct {
	ChannelID string `json:"channel_id"`
	GroupID   string `json:"group_id"`
	UserID    string `json:"user_id"`
	Mute      *Mute  `json:"mute,omitempty"`
}

// PresenceChanged carries the latest state of one member's presence. Left
// is set when the member's connection went away or expired.
type PresenceChanged struct {
	ChannelID string        `json:"channel_id"`
	Entry     PresenceEntry `json:"entry"`
	Left      bool          `json:"left,omitempty"`
}

func (MessageInserted) Kind() EventKind  { return EventMessageInserted }
func (MessageUpdated) Kind() EventKind   { return EventMessageUpdated }
func (ReactionInserted) Kind() EventKind { return EventReactionInserted }
func (ReactionRemoved) Kind() EventKind  { return EventReactionRemoved }
func (PresenceChanged) Kind() EventKind  { return EventPresenceChanged }
func (MuteChanged) Kind() EventKind      { return EventMuteChanged }

func (e MessageInserted) Channel() string  { return e.Message.ChannelID }
func (e MessageUpdated) Channel() string   { return e.Message.ChannelID }
func (e ReactionInserted) Channel() string { return e.ChannelID }
func (e ReactionRemoved) Channel() string  { return e.ChannelID }
func (e PresenceChanged) Channel() string  { return e.ChannelID }
func (e MuteChanged) Channel() string      { return e.ChannelID }

var ErrMalformedEvent = errors.New("malformed event")

func validateMessage(m Message) error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: message id missing", ErrMalformedEvent)
	case m.ChannelID == "":
		return fmt.Errorf("%w: message %s has no channel", ErrMalformedEvent, m.ID)
	case m.Kind != KindSystem && m.SenderID == "":
		return fmt.Errorf("%w: message %s has no sender", ErrMalformedEvent, m.ID)
	case m.CreatedTS <= 0:
		return fmt.Errorf("%w: message %s has no created_ts", ErrMalformedEvent, m.ID)
	case m.Kind != KindNormal && m.Kind != KindSystem:
		return fmt.Errorf("%w: message %s has kind %q", ErrMalformedEvent, m.ID, m.Kind)
	}
	return nil
}

func validateReaction(channelID string, r Reaction) error {
	if channelID == "" || r.MessageID == "" || r.Emoji == "" || r.UserID == "" {
		return fmt.Errorf("%w: reaction requires channel, message, emoji and user", ErrMalformedEvent)
	}
	return nil
}

func (e MessageInserted) validate() error  { return validateMessage(e.Message) }
func (e MessageUpdated) validate() error   { return validateMessage(e.Message) }
func (e ReactionInserted) validate() error { return validateReaction(e.ChannelID, e.Reaction) }
func (e ReactionRemoved) validate() error  { return validateReaction(e.ChannelID, e.Reaction) }

func (e MuteChanged) validate() error {
	if e.ChannelID == "" || e.GroupID == "" || e.UserID == "" {
		return fmt.Errorf("%w: mute change requires channel, group and user", ErrMalformedEvent)
	}
	if e.Mute != nil && (e.Mute.UserID != e.UserID || e.Mute.GroupID != e.GroupID) {
		return fmt.Errorf("%w: mute record does not match %s/%s", ErrMalformedEvent, e.GroupID, e.UserID)
	}
	return nil
}

func (e PresenceChanged) validate() error {
	if e.ChannelID == "" || e.Entry.UserID == "" {
		return fmt.Errorf("%w: presence requires channel and user", ErrMalformedEvent)
	}
	return nil
}

// Frame is the wire envelope. Seq increases per topic and is informational:
// consumers must not derive message order from it.
type Frame struct {
	Type      EventKind       `json:"type"`
	ChannelID string          `json:"channel_id"`
	Seq       uint64          `json:"seq"`
	Data      json.RawMessage `json:"data"`
}

// NewFrame validates ev and wraps it for the wire.
func NewFrame(ev Event, seq uint64) (Frame, error) {
	if err := ev.validate(); err != nil {
		return Frame{}, err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: ev.Kind(), ChannelID: ev.Channel(), Seq: seq, Data: data}, nil
}

// DecodeEvent parses a wire frame into its tagged variant and validates it.
func DecodeEvent(b []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return f.Event()
}

// Event decodes the frame payload.
func (f Frame) Event() (Event, error) {
	var ev Event
	var err error
	switch f.Type {
	case EventMessageInserted:
		var e MessageInserted
		err = json.Unmarshal(f.Data, &e)
		ev = e
	case EventMessageUpdated:
		var e MessageUpdated
		err = json.Unmarshal(f.Data, &e)
		ev = e
	case EventReactionInserted:
		var e ReactionInserted
		err = json.Unmarshal(f.Data, &e)
		ev = e
	case EventReactionRemoved:
		var e ReactionRemoved
		err = json.Unmarshal(f.Data, &e)
		ev = e
	case EventPresenceChanged:
		var e PresenceChanged
		err = json.Unmarshal(f.Data, &e)
		ev = e
	case EventMuteChanged:
		var e MuteChanged
		err = json.Unmarshal(f.Data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, f.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	if f.ChannelID != "" && ev.Channel() != f.ChannelID {
		return nil, fmt.Errorf("%w: frame channel %s does not match payload channel %s", ErrMalformedEvent, f.ChannelID, ev.Channel())
	}
	return ev, nil
}
