package devhost

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"hostbridge/pkg/bus"
)

const maxFrameBytes = 16 << 20

// page is one connected document.
type page struct {
	id    string
	host  string
	conn  *websocket.Conn
	queue chan hostFrame
	done  chan struct{}
}

// enqueue never blocks. It reports false when the page is gone or its queue
// is full.
func (p *page) enqueue(frame hostFrame) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.queue <- frame:
		return true
	default:
		return false
	}
}

func (p *page) writeLoop(ctx context.Context, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-p.queue:
			if err := wsjson.Write(ctx, p.conn, frame); err != nil {
				log.Debug("Page write failed", "page", p.id, "error", err)
				return
			}
		}
	}
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Error("Failed to accept page socket", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	p := &page{
		id:    uuid.NewString(),
		host:  r.Host,
		conn:  conn,
		queue: make(chan hostFrame, pageQueueSize),
		done:  make(chan struct{}),
	}
	s.view.addPage(p)
	s.publishPages(bus.EventPageConnected, p.id)
	defer func() {
		close(p.done)
		s.view.removePage(p.id)
		s.publishPages(bus.EventPageDisconnected, p.id)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	go p.writeLoop(ctx, s.log)
	s.log.Info("Page connected", "page", p.id, "remote", r.RemoteAddr)

	for {
		var frame pageFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				s.log.Info("Page disconnected", "page", p.id)
			} else {
				s.log.Warn("Page socket closed", "page", p.id, "error", err)
			}
			return
		}

		s.view.handleFrame(p, frame)
	}
}
