package keys

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

var (
	// conservative ID validation: letters, digits, dot, underscore, dash
	// and a reasonable upper bound to protect DB key shapes.
	idRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]{1,256}$`)

	channelMessageIdxRegexp = regexp.MustCompile(`^c:([A-Za-z0-9._-]{1,256}):m:([0-9]{20}):([A-Za-z0-9._-]{1,256})$`)
	reactionKeyRegexp       = regexp.MustCompile(`^r:([A-Za-z0-9._-]{1,256}):([^:]{1,256}):([A-Za-z0-9._-]{1,256})$`)
)

// MaxEmojiRunes bounds a reaction emoji; sequences with modifiers and ZWJ
// joins stay well under it.
const MaxEmojiRunes = 16

// ValidateID checks a channel, group, user or message id.
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s id empty", kind)
	}
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid %s id: %q", kind, id)
	}
	return nil
}

func ValidateEmoji(emoji string) error {
	if emoji == "" {
		return errors.New("emoji empty")
	}
	if !utf8.ValidString(emoji) || utf8.RuneCountInString(emoji) > MaxEmojiRunes {
		return fmt.Errorf("invalid emoji: %q", emoji)
	}
	return nil
}

func ValidateChannelMessageIdx(key string) error {
	if !channelMessageIdxRegexp.MatchString(key) {
		return fmt.Errorf("invalid channel message index format: %q", key)
	}
	return nil
}

func ValidateReactionKey(key string) error {
	if !reactionKeyRegexp.MatchString(key) {
		return fmt.Errorf("invalid reaction key format: %q", key)
	}
	return nil
}
