package ws

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const clientWriteDeadline = 10 * time.Second

// Client adapts one websocket connection to the hub's Subscriber interface.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, logger: logger}
}

// Send pushes one text frame. A failed write closes the connection and
// returns the error, which makes the hub drop this subscriber.
func (c *Client) Send(payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteDeadline))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn("websocket write failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close shuts the underlying connection down.
func (c *Client) Close() {
	_ = c.conn.Close()
}
