package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Feed pushes resolved ticks to websocket subscribers so browser
// clients don't have to poll /v1/ticks.
type Feed struct {
	errlog   *log.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func newFeed(errlog *log.Logger) *Feed {
	return &Feed{
		errlog: errlog,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]bool),
	}
}

func (f *Feed) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.conns[conn] = true
	f.mu.Unlock()

	// Reader loop only notices disconnects; subscribers never send.
	go func() {
		defer f.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (f *Feed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	delete(f.conns, conn)
	f.mu.Unlock()
	conn.Close()
}

func (f *Feed) broadcast(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		f.errlog.Printf("feed marshal: %v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(f.conns, conn)
			conn.Close()
		}
	}
}
