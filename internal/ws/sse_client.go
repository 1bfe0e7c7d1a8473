package ws

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SSEClient adapts a streaming HTTP response to the hub's Subscriber
// interface using Server-Sent Events framing.
type SSEClient struct {
	mu       sync.Mutex
	w        io.Writer
	flush    http.Flusher
	logger   *slog.Logger
	closed   bool
	lastSeen time.Time
}

func NewSSEClient(w io.Writer, flush http.Flusher, logger *slog.Logger) *SSEClient {
	return &SSEClient{w: w, flush: flush, logger: logger, lastSeen: time.Now().UTC()}
}

// Send writes one data frame and flushes it to the client.
func (c *SSEClient) Send(payload []byte) error {
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	return c.write(frame, "sse write failed")
}

// Heartbeat emits a comment frame so intermediaries keep the stream open.
func (c *SSEClient) Heartbeat() error {
	return c.write([]byte(": keepalive\n\n"), "sse heartbeat failed")
}

func (c *SSEClient) write(frame []byte, failMsg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if _, err := c.w.Write(frame); err != nil {
		c.closed = true
		c.logger.Warn(failMsg, "error", err)
		return err
	}
	c.flush.Flush()
	c.lastSeen = time.Now().UTC()
	return nil
}

// Close marks the stream closed; subsequent writes report io.EOF.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// LastActivity reports when the last frame was written successfully.
func (c *SSEClient) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}
