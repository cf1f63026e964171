package messaging

import "context"

// OutboundMessage is a single message to deliver to a user over an async
// channel.
type OutboundMessage struct {
	To             string
	From           string
	Body           string
	ConversationID string
	Metadata       map[string]string
}

// Messenger delivers outbound messages through a channel provider.
type Messenger interface {
	Send(ctx context.Context, msg OutboundMessage) error
}
