package gateway

import (
	"context"

	"go.uber.org/zap"
)

// loggingChat is the fallback Chat used when no platform gateway is
// attached: every action is recorded in the service log instead of being
// delivered, so the pipeline stays runnable end to end in isolation.
type loggingChat struct {
	logger *zap.Logger
}

func NewLoggingChat(logger *zap.Logger) Chat {
	return &loggingChat{logger: logger}
}

func (l *loggingChat) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	l.logger.Info("Would delete message",
		zap.String("channel_id", channelID), zap.String("message_id", messageID))
	return nil
}

func (l *loggingChat) CreateMessage(ctx context.Context, channelID string, msg Message) error {
	fields := []zap.Field{zap.String("channel_id", channelID)}
	if msg.Content != "" {
		fields = append(fields, zap.String("content", msg.Content))
	}
	if msg.Embed != nil {
		fields = append(fields, zap.String("embed_title", msg.Embed.Title))
	}
	if len(msg.Buttons) > 0 {
		ids := make([]string, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			ids = append(ids, b.CustomID)
		}
		fields = append(fields, zap.Strings("buttons", ids))
	}
	l.logger.Info("Would post message", fields...)
	return nil
}
