package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// A session is one websocket connection with its verified identity. All
// writes to the connection go through the send channel so only the write
// pump touches the socket.
type session struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

func newSession(id, userID string, conn *websocket.Conn) *session {
	return &session{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
}

// writePump drains the send channel to the socket and keeps the connection
// alive with pings. It exits when the send channel is closed or a write
// fails, closing the socket so the read loop unblocks.
func (s *session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
