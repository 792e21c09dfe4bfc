package handlers

const (
	// GuildJoinedTopic carries GuildJoinedPayload.
	GuildJoinedTopic = "guild.joined"
	// GuildLeftTopic carries GuildLeftPayload.
	GuildLeftTopic = "guild.left"
)

// GuildJoinedPayload is published when the gateway reports a guild the bot
// is a member of, including every guild replayed after a reconnect.
type GuildJoinedPayload struct {
	GuildID   string `json:"guild_id"`
	GuildName string `json:"guild_name"`
	OwnerID   string `json:"owner_id"`
}

// GuildLeftPayload is published when the bot is removed from a guild.
// Unavailable is set when the guild only went dark during an outage.
type GuildLeftPayload struct {
	GuildID     string `json:"guild_id"`
	Unavailable bool   `json:"unavailable"`
}
