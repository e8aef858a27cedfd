package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	contributiondomain "github.com/smallbiznis/condopay/internal/contribution/domain"
	"github.com/smallbiznis/condopay/internal/livesync"
	"go.uber.org/zap"
)

const (
	streamHeartbeat = 15 * time.Second
	wsWriteTimeout  = 10 * time.Second
	wsPongTimeout   = 60 * time.Second
	wsPingInterval  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin is enforced by the gateway that sets the actor headers.
	CheckOrigin: func(*http.Request) bool { return true },
}

// liveUpdate is one message of the SSE and websocket streams.
type liveUpdate struct {
	Generation uint64                       `json:"generation"`
	Stale      bool                         `json:"stale"`
	Error      string                       `json:"error,omitempty"`
	Snapshot   *contributiondomain.Snapshot `json:"snapshot,omitempty"`
}

func newLiveUpdate(u livesync.Update) liveUpdate {
	msg := liveUpdate{Generation: u.Generation, Stale: u.Snapshot.Stale}
	if u.Err != nil {
		msg.Error = errorCode(u.Err)
	}
	if !u.Snapshot.GeneratedAt.IsZero() {
		snap := u.Snapshot
		msg.Snapshot = &snap
	}
	return msg
}

// errorCode exposes the sentinel code only, never the wrapped cause.
func errorCode(err error) string {
	_, payload := mapError(err)
	return payload.Type
}

// StreamContributions pushes the report over server-sent events every time
// the live session recomputes it.
func (s *Server) StreamContributions(c *gin.Context) {
	session, release, ok := s.acquireSession(c)
	if !ok {
		return
	}
	defer release()
	defer s.httpMetrics.StreamOpened("sse")()

	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				_, _ = io.WriteString(writer, "event: closed\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			if err := writeSSEUpdate(writer, update); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEUpdate(w io.Writer, update livesync.Update) error {
	data, err := json.Marshal(newLiveUpdate(update))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", update.Generation, data)
	return err
}

type wsClientMessage struct {
	Type string `json:"type"`
}

// ContributionsWebsocket streams the report like StreamContributions and
// also accepts {"type":"refresh"} to force a recompute.
func (s *Server) ContributionsWebsocket(c *gin.Context) {
	session, release, ok := s.acquireSession(c)
	if !ok {
		return
	}
	defer release()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	defer s.httpMetrics.StreamOpened("websocket")()

	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	readDone := make(chan struct{})
	go s.readWebsocket(conn, session, readDone)

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-readDone:
			return
		case update, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := conn.WriteJSON(newLiveUpdate(update)); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readWebsocket(conn *websocket.Conn, session *livesync.Session, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read", zap.Error(err))
			}
			return
		}
		if strings.EqualFold(strings.TrimSpace(msg.Type), "refresh") {
			_ = session.Refresh()
		}
	}
}

func (s *Server) acquireSession(c *gin.Context) (*livesync.Session, func(), bool) {
	condominiumID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return nil, nil, false
	}
	year, err := parseYear(c, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return nil, nil, false
	}

	session, release, err := s.sessions.Acquire(c.Request.Context(), condominiumID, year)
	if err != nil {
		AbortWithError(c, err)
		return nil, nil, false
	}
	return session, release, true
}
