package transport

import "context"

// ChatTarget identifies the chat that receives a message.
type ChatTarget struct {
	ChatID int64
}

// MessageRef identifies a sent message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string // "HTML" or "" for plain text
	DisablePreview bool
}

// CommandFunc handles an inbound bot command and returns the reply text.
type CommandFunc func(ctx context.Context) (reply string, err error)

// Adapter is the messaging backend. Handle must be called before Start.
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	Handle(command string, fn CommandFunc)
}
