package bot

import "context"

type EventKind string

const (
	EventCommand EventKind = "command"
	EventButton  EventKind = "button"
	EventText    EventKind = "text"
)

// Event is one inbound user interaction, already stripped of transport
// details.
type Event struct {
	UserID int64
	Kind   EventKind
	// Data is the command name, the button action id or the message text.
	Data string
	// ReplyToText is the text of the bot message the user replied to, if any.
	ReplyToText string
}

type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of inline buttons, one slice per row.
type Keyboard [][]Button

type Message struct {
	Text     string
	Keyboard Keyboard
}

// Responder delivers bot messages back to the user that sent the event.
type Responder interface {
	Reply(ctx context.Context, msg Message) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, msg Message) error

func (f ResponderFunc) Reply(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
