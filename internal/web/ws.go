package web

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The daemon serves a LAN; any page may watch the stream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// navStreamHandler pushes the current NavState on connect and then every
// record the hub publishes. Client messages are read and discarded so
// close frames are noticed.
func navStreamHandler(nav NavSource, hub *NavHub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web ws upgrade failed remote=%s: %v", r.RemoteAddr, err)
			return
		}
		defer func() {
			if err := conn.Close(); err != nil {
				log.Printf("web ws close failed remote=%s: %v", r.RemoteAddr, err)
			}
		}()

		id, updates := hub.Subscribe(4)
		defer hub.Unsubscribe(id)

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if nav != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(nav.Snapshot()); err != nil {
				return
			}
		}

		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case st, ok := <-updates:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(st); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	})
}
