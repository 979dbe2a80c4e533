package channel

import (
	"context"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

// webMaxRunes keeps widget replies renderable in one bubble.
const webMaxRunes = 4000

// Web is the widget adapter. Delivery is in-process: the reply rides the HTTP
// response of the send-message call, so Send has nothing to transmit and
// MarkRead has no provider to acknowledge to.
type Web struct{}

// NewWeb constructs the adapter.
func NewWeb() *Web { return &Web{} }

// Name implements Channel.
func (*Web) Name() string { return domain.ChannelWeb }

// MaxMessageRunes implements Channel.
func (*Web) MaxMessageRunes() int { return webMaxRunes }

// Send implements Channel.
func (*Web) Send(context.Context, string, string) error { return nil }

// MarkRead implements Channel.
func (*Web) MarkRead(context.Context, string) error { return nil }
