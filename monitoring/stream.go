package monitoring

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// streamClock pushes the status to a websocket client whenever it changes.
func (m *Monitor) streamClock(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})

	go func() {
		defer close(closed)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("Error reading message: %v", err)
				}

				return
			}
		}
	}()

	ticker := time.NewTicker(m.streamInterval)
	defer ticker.Stop()

	var last Status

	first := true

	for {
		status := m.Status()
		if first || status != last {
			if err := conn.WriteJSON(status); err != nil {
				return
			}

			first = false
			last = status
		}

		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
