package models

import (
	"fmt"
	"time"
)

// MuteDuration is the closed set of durations a mute can be issued for.
type MuteDuration string

const (
	MuteOneHour   MuteDuration = "1h"
	MuteOneDay    MuteDuration = "24h"
	MuteOneWeek   MuteDuration = "7d"
	MutePermanent MuteDuration = "permanent"
)

// ParseMuteDuration validates a duration enum value.
func ParseMuteDuration(s string) (MuteDuration, error) {
	switch d := MuteDuration(s); d {
	case MuteOneHour, MuteOneDay, MuteOneWeek, MutePermanent:
		return d, nil
	}
	return "", fmt.Errorf("invalid mute duration %q: want 1h, 24h, 7d or permanent", s)
}

// Length returns the wall-clock length; permanent reports ok=false.
func (d MuteDuration) Length() (time.Duration, bool) {
	switch d {
	case MuteOneHour:
		return time.Hour, true
	case MuteOneDay:
		return 24 * time.Hour, true
	case MuteOneWeek:
		return 7 * 24 * time.Hour, true
	}
	return 0, false
}

// Mute is a per (group, user) send ban. Permanent is the indefinite sentinel;
// otherwise UntilTS is the expiry.
type Mute struct {
	GroupID   string `json:"group_id"`
	UserID    string `json:"user_id"`
	UntilTS   int64  `json:"until_ts,omitempty"`
	Permanent bool   `json:"permanent,omitempty"`
	IssuedBy  string `json:"issued_by"`
	IssuedTS  int64  `json:"issued_ts"`
}

// NewMute builds a mute issued at now for the given duration.
func NewMute(groupID, userID, issuedBy string, d MuteDuration, now time.Time) Mute {
	m := Mute{GroupID: groupID, UserID: userID, IssuedBy: issuedBy, IssuedTS: now.UnixNano()}
	if length, ok := d.Length(); ok {
		m.UntilTS = now.Add(length).UnixNano()
	} else {
		m.Permanent = true
	}
	return m
}

// ActiveAt reports whether the mute still blocks sends at now. A nil mute
// or one whose expiry has passed is inactive.
func (m *Mute) ActiveAt(now time.Time) bool {
	if m == nil {
		return false
	}
	if m.Permanent {
		return true
	}
	return m.UntilTS > now.UnixNano()
}
