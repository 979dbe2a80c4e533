// Package channel holds the outbound-messaging adapters. A Channel hides the
// provider behind a small surface: send a text, acknowledge a message, and
// declare how long a message may be. The dispatch pipeline treats MarkRead as
// fire-and-forget; Send failures are logged by the caller, never retried here.
package channel

import (
	"context"
	"unicode/utf8"
)

// Channel is one delivery medium for outbound messages.
type Channel interface {
	// Name returns the channel identifier ("web", "whatsapp").
	Name() string
	// MaxMessageRunes is the hard per-message length limit.
	MaxMessageRunes() int
	// Send delivers body to the channel-level recipient id.
	Send(ctx context.Context, to, body string) error
	// MarkRead acknowledges an inbound provider message id.
	MarkRead(ctx context.Context, messageID string) error
}

const ellipsis = "…"

// Truncate cuts body to at most max runes, replacing the tail with an
// ellipsis when it does. The cut is rune-based so multibyte text never splits
// mid-character, and deterministic: equal input always yields equal output.
func Truncate(body string, max int) string {
	if max <= 0 || utf8.RuneCountInString(body) <= max {
		return body
	}
	if max == 1 {
		return ellipsis
	}
	runes := []rune(body)
	return string(runes[:max-1]) + ellipsis
}
