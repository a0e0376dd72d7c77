package keys

const (
	// notation dictionary for key formats:
	// c    = channel
	// m    = message
	// r    = reaction
	// g    = group
	// u    = user
	// mute = mute record
	// read = last read mark
	// audit = moderation audit copy
	// All segments are separated by ":"; ids never contain ":" (see validate.go)
	// and emoji are query-escaped.

	ChannelKey        = "c:%s"         // c:<channel_id>
	ChannelMessageIdx = "c:%s:m:%s:%s" // c:<channel_id>:m:<created_ts>:<msg_id>
	ChannelMessagePfx = "c:%s:m:"      // c:<channel_id>:m:
	ChannelLastTS     = "c:%s:lc"      // c:<channel_id>:lc (last created_ts)
	MessageKey        = "m:%s"         // m:<msg_id>
	ReactionKey       = "r:%s:%s:%s"   // r:<msg_id>:<emoji>:<user_id>
	ReactionPfx       = "r:%s:"        // r:<msg_id>:
	MemberKey         = "g:%s:u:%s"    // g:<group_id>:u:<user_id>
	MemberPfx         = "g:%s:u:"      // g:<group_id>:u:
	GroupChannelKey   = "g:%s:c:%s"    // g:<group_id>:c:<channel_id>
	GroupChannelPfx   = "g:%s:c:"      // g:<group_id>:c:
	MuteKey           = "mute:%s:%s"   // mute:<group_id>:<user_id>
	MutePfx           = "mute:"        // all mutes
	ReadKey           = "read:%s:%s"   // read:<channel_id>:<user_id>
	AuditMessageKey   = "audit:m:%s"   // audit:m:<msg_id> (row as it was before deletion)

	// padding width (fixed for lexicographic ordering)
	TSPadWidth = 20 // e.g. %020d
)
