// Package messaging carries string messages between host logic and script
// running in the widget.
package messaging

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"hostbridge/pkg/webview"
)

// ChannelName is the script message handler the glue script posts to.
const ChannelName = "webview"

// DispatchFunction fans host messages out to script receivers.
const DispatchFunction = "__dispatchMessageCallback"

// GlueScript installs window.external.sendMessage and receiveMessage.
// Receivers run in registration order.
const GlueScript = `window.__receiveMessageCallbacks = [];

window.__dispatchMessageCallback = function(message) {
	window.__receiveMessageCallbacks.forEach(function(callback) { callback(message); });
};

window.external = {
	sendMessage: function(message) {
		window.webkit.messageHandlers.` + ChannelName + `.postMessage(message);
	},
	receiveMessage: function(callback) {
		window.__receiveMessageCallbacks.push(callback);
	}
};
`

// Install injects GlueScript at document start in every frame, so reloads
// and subframes keep messaging.
func Install(ucm webview.UserContentManager) {
	ucm.AddScript(webview.UserScript{
		Source: GlueScript,
		Frames: webview.FramesAll,
		Time:   webview.InjectAtDocumentStart,
	})
}

// DispatchScript returns the expression that delivers message to script receivers.
func DispatchScript(message string) string {
	return DispatchFunction + "(" + EncodeScriptString(message) + ")"
}

// EncodeScriptString returns message as a double-quoted script string
// literal. Markup-significant characters and line terminators are escaped so
// the literal is safe inside inline script, and the result is also valid JSON.
// message is expected to be UTF-8: each invalid byte is encoded as U+FFFD, so
// such strings do not round-trip.
func EncodeScriptString(message string) string {
	var b strings.Builder
	b.Grow(len(message) + 2)
	b.WriteByte('"')

	for i := 0; i < len(message); {
		r, size := utf8.DecodeRuneInString(message[i:])
		i += size

		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '<', '>', '&', '\'', '\u0085', '\u2028', '\u2029':
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
				continue
			}
			// Invalid UTF-8 decodes to utf8.RuneError and is written as U+FFFD.
			b.WriteRune(r)
		}
	}

	b.WriteByte('"')
	return b.String()
}
