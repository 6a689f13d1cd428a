package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/flowopsai/orchestrator/internal/tail"
)

// ConnectFeed dials a run's websocket feed and relays its messages as
// tea messages. The returned channel closes when the feed ends; the
// last message before close reports the reason.
func ConnectFeed(ctx context.Context, wsURL string) (<-chan tea.Msg, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	ch := make(chan tea.Msg, 16)
	go func() {
		defer close(ch)
		defer conn.Close()

		for {
			var msg tail.Message
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					ch <- FeedErrMsg{Err: err}
				}
				return
			}
			if msg.Type == tail.TypeHeartbeat {
				continue
			}
			select {
			case ch <- FeedMsg(msg):
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}
