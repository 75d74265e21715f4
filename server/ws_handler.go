package server

import (
	"net/http"
	"time"

	"openhowl/core/hub"
	"openhowl/logger"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 4096
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler GET /ws. Every text frame a peer sends is published to
// all peers, the sender included.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	sub := s.hub.Subscribe()
	if s.metrics != nil {
		s.metrics.WSPeers.Add(r.Context(), 1)
		defer s.metrics.WSPeers.Add(r.Context(), -1)
	}
	logger.Debug("[WS] peer connected", logger.String("remote", r.RemoteAddr))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(conn, sub)
	}()

	s.readPump(conn)

	s.hub.Unsubscribe(sub)
	<-writerDone
	conn.Close()
	logger.Debug("[WS] peer disconnected", logger.String("remote", r.RemoteAddr))
}

// readPump 读取消息循环
func (s *Server) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err))
			}
			return
		}
		if msgType == websocket.TextMessage {
			s.hub.Publish(message)
		}
	}
}

// writePump 写入消息循环，订阅关闭或写失败时退出
func (s *Server) writePump(conn *websocket.Conn, sub *hub.Subscriber) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				// 关闭连接使读循环退出
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
