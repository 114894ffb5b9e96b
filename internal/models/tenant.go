package models

import "strings"

// GuildConfig represents one tenant's row in the 'guild_config' table.
type GuildConfig struct {
	GuildID             string  `db:"guild_id"`
	LogChannel          *string `db:"log_channel"`
	EmbedTitle          string  `db:"embed_title"`
	EmbedBody           string  `db:"embed_body"`
	PremiumTitle        string  `db:"premium_title"`
	PremiumBody         string  `db:"premium_body"`
	PremiumSubscription string  `db:"premium_subscription"`
	NotificationsOff    bool    `db:"notifications_off"`
	CallsThisMonth      int     `db:"calls_this_month"`
	CallsLimit          int     `db:"calls_limit"`
	ObjectsThisMonth    int     `db:"objects_this_month"`
	ObjectLimit         int     `db:"object_limit"`
	BasicSuggestive     bool    `db:"basic_nsfw_suggestive"`
	BasicPorn           bool    `db:"basic_nsfw_porn"`
	BasicDrawing        bool    `db:"basic_nsfw_drawing"`
	BasicHentai         bool    `db:"basic_nsfw_hentai"`
}

// Premium reports whether the tenant has an active premium subscription.
func (g *GuildConfig) Premium() bool {
	return g != nil && g.PremiumSubscription != ""
}

// Pattern is one tenant rule from the 'guild_patterns' table. A leading '!'
// marks a label/object rule rather than an OCR text rule; a second '!'
// inverts the label clause (label must be absent).
type Pattern struct {
	GuildID string `db:"guild_id"`
	Pattern string `db:"pattern"`
}

// IsLabelRule reports whether the pattern targets detected object labels.
func (p Pattern) IsLabelRule() bool {
	return strings.HasPrefix(p.Pattern, "!")
}

// LabelClause strips the rule markers: it returns the bare label and
// whether the clause is negative (label must not appear).
func (p Pattern) LabelClause() (label string, negated bool) {
	s := strings.TrimSuffix(strings.TrimPrefix(p.Pattern, "!"), "\r")
	if strings.HasPrefix(s, "!") {
		return strings.TrimPrefix(s, "!"), true
	}
	return s, false
}

// PremiumFilter is one tenant premium rule from the 'premium_filters'
// table: a dotted category path into the merged classification result plus
// an optional trigger score.
type PremiumFilter struct {
	GuildID  string   `db:"guild_id"`
	Category string   `db:"pattern"`
	Score    *float64 `db:"score"`
}

// Threshold returns the rule's trigger score, defaulting to 0.8.
func (f PremiumFilter) Threshold() float64 {
	if f.Score != nil {
		return *f.Score
	}
	return 0.8
}

// Model returns the model family the rule's category belongs to: the first
// element of the dotted path.
func (f PremiumFilter) Model() string {
	if i := strings.IndexByte(f.Category, '.'); i >= 0 {
		return f.Category[:i]
	}
	return f.Category
}

// PremiumFilterModel maps a category to its model family and a human
// readable description, from the 'premium_filter_model' table.
type PremiumFilterModel struct {
	Category    string `db:"category"`
	Model       string `db:"model"`
	Description string `db:"description"`
}
