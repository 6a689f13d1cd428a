package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/flowopsai/orchestrator/internal/tail"
)

// writeWait is the time allowed to write one feed message
const writeWait = 10 * time.Second

// wsRunHandler upgrades the connection and relays the run's event feed
// until the subscriber disconnects. The tailer owns the cursor and the
// poll loop; this handler only moves messages onto the socket.
func (s *Server) wsRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := strings.TrimPrefix(r.URL.Path, "/ws/runs/")
		if runID == "" || strings.Contains(runID, "/") {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// The connection is hijacked after the upgrade, so client
		// disconnects surface as read errors, not context
		// cancellation. The read pump exists only to observe them.
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(msg tail.Message) error {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteJSON(msg)
		}

		if err := s.tailer.Tail(ctx, runID, send); err != nil {
			log.Printf("ws feed for run %s: %v", runID, err)
		}
	}
}
