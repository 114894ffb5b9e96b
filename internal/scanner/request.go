package scanner

import (
	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/imageproc"
	"github.com/brainboxdotcc/beholder/internal/models"
)

// Request is the shared context one scan threads through every pipeline
// stage: the admitted attachment, its resident bytes and fingerprint, the
// tenant's rules, and the memoised flatten state so an animated GIF is
// flattened at most once no matter how many stages need a still frame.
type Request struct {
	Attachment models.Attachment
	Content    []byte
	Hash       string

	// Config is nil when the tenant has no configuration row; stages
	// treat that as "no rules" and fall back to their defaults.
	Config   *models.GuildConfig
	Patterns []models.Pattern

	Flattened bool
	Logger    *zap.Logger
}

// FlattenOnce replaces Content with a single-frame rendition on first call
// and is a no-op afterwards.
func (r *Request) FlattenOnce(f *imageproc.Flattener) {
	if r.Flattened {
		return
	}
	r.Content = f.Flatten(r.Attachment.Filename, r.Content)
	r.Flattened = true
}

// TextPatterns returns the tenant's OCR text rules (patterns without the
// '!' label marker).
func (r *Request) TextPatterns() []models.Pattern {
	var out []models.Pattern
	for _, p := range r.Patterns {
		if !p.IsLabelRule() {
			out = append(out, p)
		}
	}
	return out
}

// LabelPatterns returns the tenant's label/object rules.
func (r *Request) LabelPatterns() []models.Pattern {
	var out []models.Pattern
	for _, p := range r.Patterns {
		if p.IsLabelRule() {
			out = append(out, p)
		}
	}
	return out
}

// Outcome is the ephemeral result of one pipeline run.
type Outcome struct {
	Matched bool    `json:"matched"`
	Stage   string  `json:"stage,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Score   float64 `json:"score,omitempty"`
	// Threshold is the trigger value the score was compared against,
	// reported for operator transparency on premium matches.
	Threshold float64 `json:"threshold,omitempty"`
	// Model and Category identify the premium rule that fired; they feed
	// the feedback controls on the moderation-log post.
	Model    string `json:"model,omitempty"`
	Category string `json:"category,omitempty"`
}

// NotMatched is the pass outcome stages return when nothing fired.
func NotMatched() *Outcome { return &Outcome{} }
