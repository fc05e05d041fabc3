package devhost

import (
	"bytes"
	"encoding/json"
	"strings"

	"hostbridge/pkg/webview"
)

const (
	SocketPath    = "/__bridge/ws"
	BootstrapPath = "/__bridge/bootstrap.js"
)

// bootstrapTag is placed at the top of every served HTML document so the
// shim and user scripts run before any page script.
const bootstrapTag = `<script src="` + BootstrapPath + `"></script>`

// shimScript connects the page to the host and stands in for the engine's
// script message handlers. %HANDLERS% is replaced by a JSON array of names.
const shimScript = `(function() {
	var pending = [];
	var scheme = location.protocol === "https:" ? "wss://" : "ws://";
	var socket = new WebSocket(scheme + location.host + "` + SocketPath + `");

	function send(frame) {
		var data = JSON.stringify(frame);
		if (socket.readyState === 1) {
			socket.send(data);
		} else {
			pending.push(data);
		}
	}

	socket.onopen = function() {
		pending.splice(0).forEach(function(data) { socket.send(data); });
	};

	socket.onmessage = function(event) {
		var frame = JSON.parse(event.data);
		if (frame.type === "` + FrameEval + `") {
			(0, eval)(frame.script);
		} else if (frame.type === "` + FrameNavigate + `") {
			location.assign(frame.url);
		}
	};

	window.webkit = window.webkit || {};
	window.webkit.messageHandlers = window.webkit.messageHandlers || {};
	%HANDLERS%.forEach(function(name) {
		window.webkit.messageHandlers[name] = {
			postMessage: function(body) {
				send({type: "` + FrameMessage + `", name: name, body: String(body)});
			}
		};
	});

	document.addEventListener("click", function(event) {
		var link = event.target && event.target.closest ? event.target.closest("a[href]") : null;
		if (!link || event.defaultPrevented) {
			return;
		}
		event.preventDefault();
		send({type: "` + FrameNavigation + `", uri: link.href, popup: link.target === "_blank", user_gesture: true});
	}, true);
})();
`

// bootstrapScript renders the shim followed by the injected user scripts,
// document-start scripts first.
func bootstrapScript(handlers []string, scripts []webview.UserScript) string {
	names, err := json.Marshal(handlers)
	if err != nil || handlers == nil {
		names = []byte("[]")
	}

	var b strings.Builder
	b.WriteString(strings.Replace(shimScript, "%HANDLERS%", string(names), 1))

	for _, at := range []webview.InjectionTime{webview.InjectAtDocumentStart, webview.InjectAtDocumentEnd} {
		for _, script := range scripts {
			if script.Time != at {
				continue
			}
			if script.Frames == webview.FramesTop {
				b.WriteString("if (window === window.top) {\n")
				b.WriteString(script.Source)
				b.WriteString("\n}\n")
				continue
			}
			b.WriteString(script.Source)
			b.WriteString("\n")
		}
	}

	return b.String()
}

// injectBootstrap inserts bootstrapTag right after the opening head tag, or
// at the start of the document when there is none.
func injectBootstrap(document []byte) []byte {
	index := headTagIndex(bytes.ToLower(document))
	if index >= 0 {
		if end := bytes.IndexByte(document[index:], '>'); end >= 0 {
			at := index + end + 1
			out := make([]byte, 0, len(document)+len(bootstrapTag))
			out = append(out, document[:at]...)
			out = append(out, bootstrapTag...)
			return append(out, document[at:]...)
		}
	}

	return append([]byte(bootstrapTag), document...)
}

// headTagIndex finds the opening head tag in a lowercased document, skipping
// longer names such as <header>.
func headTagIndex(lower []byte) int {
	const tag = "<head"

	offset := 0
	for {
		i := bytes.Index(lower[offset:], []byte(tag))
		if i < 0 {
			return -1
		}

		at := offset + i
		next := at + len(tag)
		if next < len(lower) {
			switch lower[next] {
			case '>', '/', ' ', '\t', '\n', '\r', '\f':
				return at
			}
		}
		offset = next
	}
}
