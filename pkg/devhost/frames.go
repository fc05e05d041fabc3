package devhost

// Frame types exchanged with the page over the bridge socket.
const (
	FrameMessage    = "message"
	FrameNavigation = "navigation"
	FrameEval       = "eval"
	FrameNavigate   = "navigate"
)

// pageFrame is sent by the page.
type pageFrame struct {
	Type string `json:"type"`

	// message
	Name string `json:"name,omitempty"`
	Body string `json:"body,omitempty"`

	// navigation
	URI         string `json:"uri,omitempty"`
	Popup       bool   `json:"popup,omitempty"`
	UserGesture bool   `json:"user_gesture,omitempty"`
}

// hostFrame is sent to the page.
type hostFrame struct {
	Type   string `json:"type"`
	Script string `json:"script,omitempty"`
	URL    string `json:"url,omitempty"`
}
