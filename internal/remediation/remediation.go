// Package remediation performs the delete-and-notify action after a scan
// match. Deletion, channel notification and moderation-log posting are
// attempted independently: a missing permission on one step never
// suppresses the others.
package remediation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/gateway"
	"github.com/brainboxdotcc/beholder/internal/models"
	"github.com/brainboxdotcc/beholder/internal/repository"
	"github.com/brainboxdotcc/beholder/internal/scanner"
)

// FeedbackSender reports moderator verdicts back to the premium provider.
type FeedbackSender interface {
	Feedback(ctx context.Context, modelName, class string, correct bool) error
}

// Remediator drives the chat-platform side effects of a match.
type Remediator struct {
	chat     gateway.Chat
	tenants  repository.TenantRepository
	feedback FeedbackSender
	// minFeedback is the confidence floor above which premium matches get
	// provider feedback controls on the log post.
	minFeedback float64
	logger      *zap.Logger
}

func New(chat gateway.Chat, tenants repository.TenantRepository, feedback FeedbackSender, minFeedback float64, logger *zap.Logger) *Remediator {
	return &Remediator{chat: chat, tenants: tenants, feedback: feedback, minFeedback: minFeedback, logger: logger}
}

// Remediate deletes the offending message, notifies the channel and posts
// the structured moderation-log entry. Every step is attempted; failures
// are surfaced but never abort the remaining steps.
func (r *Remediator) Remediate(ctx context.Context, att models.Attachment, outcome *scanner.Outcome, cfg *models.GuildConfig, hash string, content []byte) {
	if err := r.chat.DeleteMessage(ctx, att.ChannelID, att.MessageID); err != nil {
		r.logger.Warn("Failed to delete message",
			zap.String("message_id", att.MessageID), zap.Error(err))
		// Surface the failure where moderators can see it rather than
		// dropping it silently.
		notice := gateway.Message{Content: "Failed to delete this message! Please check bot permissions."}
		if err := r.chat.CreateMessage(ctx, att.ChannelID, notice); err != nil {
			r.logger.Warn("Failed to post delete-failure notice", zap.Error(err))
		}
	}

	r.notifyChannel(ctx, att, outcome, cfg)
	r.postLog(ctx, att, outcome, cfg, hash, content)
}

func (r *Remediator) notifyChannel(ctx context.Context, att models.Attachment, outcome *scanner.Outcome, cfg *models.GuildConfig) {
	if cfg == nil || cfg.NotificationsOff {
		return
	}
	title, body := cfg.EmbedTitle, cfg.EmbedBody
	if outcome.Stage == "premium" {
		title, body = cfg.PremiumTitle, cfg.PremiumBody
	}
	if title == "" {
		title = "Image Removed"
	}
	if body == "" {
		body = "An image posted by @user matched this community's content rules and was removed."
	}
	body = strings.ReplaceAll(body, "@user", mention(att.AuthorID))

	msg := gateway.Message{Embed: &gateway.Embed{Title: title, Description: body}}
	if err := r.chat.CreateMessage(ctx, att.ChannelID, msg); err != nil {
		r.logger.Warn("Failed to post channel notification", zap.Error(err))
	}
}

func (r *Remediator) postLog(ctx context.Context, att models.Attachment, outcome *scanner.Outcome, cfg *models.GuildConfig, hash string, content []byte) {
	if cfg == nil || cfg.LogChannel == nil || *cfg.LogChannel == "" {
		// No log channel configured; nothing to do.
		return
	}

	desc := fmt.Sprintf(
		"Attachment: `%s`\nSent by: `%s` %s\nMatched: `%s`\n[Image link](%s)",
		att.Filename, att.AuthorName, mention(att.AuthorID), outcome.Reason, att.URL,
	)
	if outcome.Stage == "premium" {
		desc += fmt.Sprintf("\nScore: `%.4f` (threshold `%.2f`)", outcome.Score, outcome.Threshold)
	}

	msg := gateway.Message{
		Embed: &gateway.Embed{
			Title:       "Bad Image Deleted",
			Description: desc,
			ImageURL:    "attachment://" + att.Filename,
			Good:        true,
		},
		Buttons:      r.logButtons(outcome, hash),
		PreviewName:  att.Filename,
		PreviewBytes: content,
	}
	if err := r.chat.CreateMessage(ctx, *cfg.LogChannel, msg); err != nil {
		r.logger.Warn("Failed to post moderation log entry", zap.Error(err))
	}
}

// logButtons builds the actionable controls: block-list toggling always,
// provider feedback only for borderline-or-better premium matches.
func (r *Remediator) logButtons(outcome *scanner.Outcome, hash string) []gateway.Button {
	buttons := []gateway.Button{
		{Label: "Block", CustomID: "BL;*;" + hash, Danger: true},
	}
	if outcome.Stage == "premium" && outcome.Score >= r.minFeedback {
		buttons = append(buttons,
			gateway.Button{Label: "False positive", CustomID: feedbackID(outcome, false)},
			gateway.Button{Label: "Good match", CustomID: feedbackID(outcome, true)},
		)
	}
	return buttons
}

func feedbackID(outcome *scanner.Outcome, correct bool) string {
	return fmt.Sprintf("FB;%s;%s;%t", outcome.Model, outcome.Category, correct)
}

func mention(authorID string) string {
	return "<@" + authorID + ">"
}

// HandleControl services one moderation-log button press, identified by
// the CustomID minted in logButtons. "BL;*;<hash>" toggles block-list
// membership for the guild; "UB;*;<hash>" removes it; "FB;<model>;<class>;<bool>"
// round-trips a verdict to the classification provider.
func (r *Remediator) HandleControl(ctx context.Context, guildID, customID string) error {
	parts := strings.Split(customID, ";")
	if len(parts) < 3 {
		return fmt.Errorf("malformed control id %q", customID)
	}
	switch parts[0] {
	case "BL":
		return r.tenants.AddBlock(ctx, guildID, parts[2])
	case "UB":
		return r.tenants.RemoveBlock(ctx, guildID, parts[2])
	case "FB":
		if len(parts) != 4 {
			return fmt.Errorf("malformed feedback id %q", customID)
		}
		correct, err := strconv.ParseBool(parts[3])
		if err != nil {
			return fmt.Errorf("malformed feedback verdict %q: %w", parts[3], err)
		}
		return r.feedback.Feedback(ctx, parts[1], parts[2], correct)
	}
	return fmt.Errorf("unknown control id %q", customID)
}
