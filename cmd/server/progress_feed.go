package main

import (
	"log"
	"net/http"

	"lockstep/internal/realtime"

	"github.com/gorilla/websocket"
)

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// progressFeedHandler upgrades clients onto the saga progress feed. The read
// loop exists only to notice disconnects.
func progressFeedHandler(hub *realtime.Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := progressUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("progress feed upgrade: %v", err)
			return
		}
		hub.Register <- conn

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					hub.Unregister <- conn
					return
				}
			}
		}()
	})
}
