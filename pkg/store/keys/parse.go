package keys

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type ChannelMessageIdxParts struct {
	ChannelID string
	CreatedTS int64
	MsgID     string
}

type ReactionKeyParts struct {
	MsgID  string
	Emoji  string
	UserID string
}

type MuteKeyParts struct {
	GroupID string
	UserID  string
}

func parsePaddedInt(s string, width int) (int64, error) {
	if len(s) == 0 || len(s) > width {
		return 0, fmt.Errorf("length invalid: %s", s)
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return 0, nil
	}
	return strconv.ParseInt(trimmed, 10, 64)
}

func ParseChannelMessageIdx(key string) (*ChannelMessageIdxParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[0] != "c" || parts[2] != "m" {
		return nil, fmt.Errorf("invalid channel message index: %q", key)
	}
	ts, err := parsePaddedInt(parts[3], TSPadWidth)
	if err != nil {
		return nil, fmt.Errorf("invalid channel message index %q: %w", key, err)
	}
	return &ChannelMessageIdxParts{ChannelID: parts[1], CreatedTS: ts, MsgID: parts[4]}, nil
}

func ParseReactionKey(key string) (*ReactionKeyParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "r" {
		return nil, fmt.Errorf("invalid reaction key: %q", key)
	}
	emoji, err := url.QueryUnescape(parts[2])
	if err != nil {
		return nil, fmt.Errorf("invalid reaction key %q: %w", key, err)
	}
	return &ReactionKeyParts{MsgID: parts[1], Emoji: emoji, UserID: parts[3]}, nil
}

func ParseMuteKey(key string) (*MuteKeyParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "mute" {
		return nil, fmt.Errorf("invalid mute key: %q", key)
	}
	return &MuteKeyParts{GroupID: parts[1], UserID: parts[2]}, nil
}
