package keys

import (
	"fmt"
	"net/url"
)

// PadTS renders a timestamp at TSPadWidth so keys sort numerically.
func PadTS(ts int64) string {
	return fmt.Sprintf("%0*d", TSPadWidth, ts)
}

func GenChannelKey(channelID string) string {
	return fmt.Sprintf(ChannelKey, channelID)
}

func GenChannelMessageIdx(channelID string, createdTS int64, msgID string) string {
	return fmt.Sprintf(ChannelMessageIdx, channelID, PadTS(createdTS), msgID)
}

func GenChannelMessagePrefix(channelID string) string {
	return fmt.Sprintf(ChannelMessagePfx, channelID)
}

// GenChannelMessageCursor is the first index key at createdTS; seeking below
// it yields messages strictly older than createdTS.
func GenChannelMessageCursor(channelID string, createdTS int64) string {
	return fmt.Sprintf(ChannelMessagePfx, channelID) + PadTS(createdTS)
}

func GenChannelLastTS(channelID string) string {
	return fmt.Sprintf(ChannelLastTS, channelID)
}

func GenMessageKey(msgID string) string {
	return fmt.Sprintf(MessageKey, msgID)
}

func GenReactionKey(msgID, emoji, userID string) string {
	return fmt.Sprintf(ReactionKey, msgID, url.QueryEscape(emoji), userID)
}

func GenReactionPrefix(msgID string) string {
	return fmt.Sprintf(ReactionPfx, msgID)
}

func GenMemberKey(groupID, userID string) string {
	return fmt.Sprintf(MemberKey, groupID, userID)
}

func GenMemberPrefix(groupID string) string {
	return fmt.Sprintf(MemberPfx, groupID)
}

func GenGroupChannelKey(groupID, channelID string) string {
	return fmt.Sprintf(GroupChannelKey, groupID, channelID)
}

func GenGroupChannelPrefix(groupID string) string {
	return fmt.Sprintf(GroupChannelPfx, groupID)
}

func GenMuteKey(groupID, userID string) string {
	return fmt.Sprintf(MuteKey, groupID, userID)
}

func GenAuditMessageKey(msgID string) string {
	return fmt.Sprintf(AuditMessageKey, msgID)
}

func GenReadKey(channelID, userID string) string {
	return fmt.Sprintf(ReadKey, channelID, userID)
}

// UpperBound returns the smallest key greater than every key with prefix.
func UpperBound(prefix string) []byte {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return b[:i+1]
		}
	}
	return nil
}
