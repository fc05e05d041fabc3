package bus

import "time"

// InboundMessage is a message script posted to the host.
type InboundMessage struct {
	Origin  string    `json:"origin"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// OutboundMessage is a message queued for delivery to script.
type OutboundMessage struct {
	Content string `json:"content"`
	// Source names who queued the message, e.g. "console".
	Source string `json:"source,omitempty"`
}
