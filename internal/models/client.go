package models

// Client platform names
const (
	PlatformTwitter  = "twitter"
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

// TwitterCredentials are the login credentials for a Twitter client
type TwitterCredentials struct {
	Username string `json:"username" bson:"username"`
	Password string `json:"password" bson:"password"`
	Email    string `json:"email" bson:"email"`
}

// DiscordCredentials configure a Discord bot client
type DiscordCredentials struct {
	ApplicationID  string  `json:"discord_application_id" bson:"applicationId"`
	APIToken       string  `json:"discord_api_token" bson:"apiToken"`
	VoiceChannelID *string `json:"discord_voice_channel_id,omitempty" bson:"voiceChannelId,omitempty"`
}

// TelegramCredentials configure a Telegram bot client
type TelegramCredentials struct {
	BotToken string `json:"telegram_bot_token" bson:"botToken"`
}

// ClientConfig holds the validated credentials for each configured platform
type ClientConfig struct {
	Twitter  *TwitterCredentials  `json:"twitter" bson:"twitter,omitempty"`
	Discord  *DiscordCredentials  `json:"discord" bson:"discord,omitempty"`
	Telegram *TelegramCredentials `json:"telegram" bson:"telegram,omitempty"`
}

// Platforms lists the platforms that have credentials, in a fixed order
func (c *ClientConfig) Platforms() []string {
	platforms := []string{}
	if c == nil {
		return platforms
	}
	if c.Twitter != nil {
		platforms = append(platforms, PlatformTwitter)
	}
	if c.Discord != nil {
		platforms = append(platforms, PlatformDiscord)
	}
	if c.Telegram != nil {
		platforms = append(platforms, PlatformTelegram)
	}
	return platforms
}

// IsEmpty reports whether no platform is configured
func (c *ClientConfig) IsEmpty() bool {
	return c == nil || (c.Twitter == nil && c.Discord == nil && c.Telegram == nil)
}
