package transport

import (
	"github.com/mamalluca/mamalluca-go/pkg/interaction"
)

// Notifier sends JSON-RPC notifications that expect no reply.
// Implemented by Session.
type Notifier interface {
	SendAsync(method string, params any) error
}

// EventSource delivers session lifecycle and notification events.
// Implemented by Session.
type EventSource interface {
	Events() <-chan Event
}

// RPC is the full client-side surface of a session.
// Implemented by Session.
type RPC interface {
	interaction.Caller
	Notifier
	EventSource
}

// Compile-time interface satisfaction checks.
var (
	_ interaction.Caller = (*Session)(nil)
	_ RPC                = (*Session)(nil)
)
