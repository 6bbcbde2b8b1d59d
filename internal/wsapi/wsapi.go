// Package wsapi adapts internal/session.Session to a real network
// connection via gorilla/websocket, following
// segfal-realtime_whiteboard/go-server/websocket/client.go's
// readPump/writePump pair and ping/pong deadlines, generalized to spec.md
// §5's 25s ping / 60s pong read-deadline timing and to this protocol's JSON
// frames instead of the teacher's ad hoc {type,data} envelope.
package wsapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collabtext/realtime-docs/internal/auth"
	"github.com/collabtext/realtime-docs/internal/logging"
	"github.com/collabtext/realtime-docs/internal/session"
)

// Options carries the websocket timing knobs of config.Config so the
// handler isn't hardcoded to one set of defaults.
type Options struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	OutboundBuffer int
}

// RoomManager is the narrow dependency passed through to each Session.
type RoomManager = session.RoomManager

// Handler upgrades HTTP connections to websockets and pumps frames between
// the peer and a session.Session.
type Handler struct {
	mgr      RoomManager
	verifier *auth.Verifier
	log      *logging.Logger
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(mgr RoomManager, verifier *auth.Verifier, log *logging.Logger, opts Options) *Handler {
	return &Handler{
		mgr:      mgr,
		verifier: verifier,
		log:      log,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket and runs the connection
// until the peer disconnects. The caller (internal/httpapi) is expected to
// have already routed /ws/{documentID} here and passes in the id to give the
// new session; the document itself is chosen later by join_document.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request, sessionID string) {
	token := r.URL.Query().Get("token")
	username := r.URL.Query().Get("username")

	userID, err := h.verifier.VerifyCredential(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if username == "" {
		username = userID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorw("websocket upgrade failed", "error", err)
		return
	}

	sess := session.New(sessionID, userID, username, h.mgr, h.log, h.opts.OutboundBuffer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go h.writePump(ctx, conn, sess, done)
	h.readPump(ctx, cancel, conn, sess)
	<-done
}

func (h *Handler) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *session.Session) {
	defer func() {
		sess.Close(ctx)
		cancel()
		conn.Close()
	}()

	readTimeout := h.opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warnw("websocket read error", "session", sess.UserID(), "error", err)
			}
			return
		}
		if err := sess.HandleRaw(ctx, message); err != nil {
			h.log.Debugw("session handle error", "session", sess.UserID(), "error", err)
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, sess *session.Session, done chan struct{}) {
	defer close(done)

	pingInterval := h.opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = 25 * time.Second
	}
	writeTimeout := h.opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sess.Outbound():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
