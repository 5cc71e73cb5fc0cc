package server

import (
	"bufio"
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // operator API; bind to a trusted interface
	},
}

const wsWriteWait = 10 * time.Second

// handleLogsWebSocket streams a sandbox's log, one text frame per line,
// until the client disconnects or the sandbox stops.
func (s *Server) handleLogsWebSocket(w http.ResponseWriter, r *http.Request) {
	tail, err := tailParam(r)
	if err != nil {
		writeSandboxError(w, err)
		return
	}
	id, err := s.findSandbox(r)
	if err != nil {
		writeSandboxError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Cancelled on client disconnect
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	rc, err := s.mgr.FollowLogs(ctx, id, tail)
	if err != nil {
		wsClose(conn, websocket.CloseInternalServerErr, err.Error())
		return
	}
	defer rc.Close()
	go func() {
		<-ctx.Done()
		rc.Close()
	}()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, scanner.Bytes()); err != nil {
			s.log.Debug().Err(err).Str("container_id", id).Msg("websocket write failed")
			return
		}
	}
	if ctx.Err() == nil {
		wsClose(conn, websocket.CloseNormalClosure, "log stream ended")
	}
}

func wsClose(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
