package models

// Attachment is one image candidate extracted from a chat message: a direct
// upload, an embed/sticker URL or a bare URL found in the message body.
// Width, Height and Size are authoritative only when the platform supplied
// them; for bare URLs they stay zero until the bytes are fetched.
type Attachment struct {
	URL        string `json:"url"`
	Filename   string `json:"filename"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Size       int64  `json:"size"`
	GuildID    string `json:"guild_id"`
	ChannelID  string `json:"channel_id"`
	MessageID  string `json:"message_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`

	// AuthorRoles are the author's role IDs on the platform, used for the
	// tenant's bypass-role exemption.
	AuthorRoles []string `json:"author_roles,omitempty"`
}
