package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"

	"hostbridge/pkg/dispatch"
	"hostbridge/pkg/logger"
	"hostbridge/pkg/webview"
)

// ErrHandlerRejected is returned when the engine refuses the script message handler.
var ErrHandlerRejected = errors.New("script message handler rejected")

// Channel sends host messages to script. Delivery is not acknowledged.
type Channel struct {
	view       webview.WebView
	dispatcher dispatch.Dispatcher
	log        *slog.Logger
}

func NewChannel(view webview.WebView, dispatcher dispatch.Dispatcher, log *slog.Logger) *Channel {
	return &Channel{
		view:       view,
		dispatcher: dispatcher,
		log:        logger.Component(log, "messaging.channel"),
	}
}

// Send posts message for evaluation on the UI loop. It only fails when the
// loop no longer accepts work; evaluation failures are logged.
func (c *Channel) Send(message string) error {
	script := DispatchScript(message)

	err := c.dispatcher.Dispatch(func() {
		c.view.EvaluateScript(script, func(evalErr error) {
			if evalErr != nil {
				c.log.Warn("Failed to deliver message to script", "bytes", len(message), "error", evalErr)
			}
		})
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

// InboundMessage is a message posted by script.
type InboundMessage struct {
	Origin  *url.URL
	Content string
}

// Listener forwards script messages to host logic.
type Listener struct {
	ucm    webview.UserContentManager
	reg    webview.Registration
	closed atomic.Bool
}

// Listen subscribes handler to ChannelName. The signal is connected before
// the engine handler is registered so no early message is missed. Messages
// are delivered in the order script posted them, tagged with origin.
func Listen(ucm webview.UserContentManager, origin *url.URL, handler func(InboundMessage)) (*Listener, error) {
	listener := &Listener{ucm: ucm}

	listener.reg = ucm.ConnectScriptMessageReceived(ChannelName, func(message string) {
		if listener.closed.Load() {
			return
		}

		inbound := InboundMessage{Content: message}
		if origin != nil {
			clone := *origin
			inbound.Origin = &clone
		}
		handler(inbound)
	})

	if !ucm.RegisterScriptMessageHandler(ChannelName) {
		listener.closed.Store(true)
		listener.reg.Detach()
		return nil, fmt.Errorf("register script message handler %q: %w", ChannelName, ErrHandlerRejected)
	}

	return listener, nil
}

// Close unregisters the handler. No message is delivered after Close
// returns, even if the engine keeps emitting the signal.
func (l *Listener) Close() {
	if l == nil || l.closed.Swap(true) {
		return
	}

	l.ucm.UnregisterScriptMessageHandler(ChannelName)
	l.reg.Detach()
}
