// Package gateway defines the contract to the chat platform. The actual
// gateway (event dispatch, slash commands, UI) lives outside this service;
// remediation only needs to delete a message and post rich notifications,
// so only that surface is specified here.
package gateway

import "context"

// Button is one actionable control attached to a moderation-log post,
// e.g. block-list toggles and premium feedback controls. CustomID is the
// identifier the platform echoes back when the control is used.
type Button struct {
	Label    string
	CustomID string
	Danger   bool
}

// Embed is a rich notification payload.
type Embed struct {
	Title       string
	Description string
	ImageURL    string
	Good        bool
}

// Message is an outbound chat post.
type Message struct {
	Content string
	Embed   *Embed
	Buttons []Button

	// Preview attaches the offending image to a moderation-log post.
	PreviewName  string
	PreviewBytes []byte
}

// Chat is the platform collaborator surface used by remediation and the
// interactive scan path.
type Chat interface {
	// DeleteMessage removes the offending message.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	// CreateMessage posts to a channel.
	CreateMessage(ctx context.Context, channelID string, msg Message) error
}
