package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Tutortoise/mask-stream/logging"
	"github.com/Tutortoise/mask-stream/stream"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 << 10,
}

// handleWS pushes annotated frames as binary messages and events as JSON text messages.
func (s *AppState) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("ws upgrade failed", "error", err)
		return
	}

	sub := s.Hub.Subscribe()
	log := logging.With("client", sub.ID, "remote", r.RemoteAddr)
	log.Info("websocket client connected")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer func() {
			cancel()
			s.Hub.Unsubscribe(sub)
			log.Info("websocket client disconnected")
		}()
		readPump(conn)
	}()

	go writePump(ctx, conn, sub)
}

// readPump discards client messages and returns when the connection drops.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, sub *stream.Subscriber) {
	defer conn.Close()

	frames := make(chan *stream.Rendered)
	go func() {
		defer close(frames)
		for {
			f, ok := sub.Frames.Next(ctx)
			if !ok {
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := writeFrame(conn, f); err != nil {
				return
			}

		case e := <-sub.Events:
			if err := writeEvent(conn, e); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f *stream.Rendered) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.BinaryMessage, f.JPEG); err != nil {
		return err
	}
	return writeEvent(conn, f.PredictionEvent())
}

func writeEvent(conn *websocket.Conn, e stream.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
