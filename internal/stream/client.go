package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arshansani/ISS-Tracker/internal/metrics"
)

// writeDeadline bounds each individual SSE write. A stalled client trips
// it instead of holding the connection open forever.
const writeDeadline = 30 * time.Second

// client serializes writes to one SSE connection.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger
}

// write arms the per-write deadline, writes p, and flushes it to the peer.
func (c *client) write(p []byte) (int, error) {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	c.flusher.Flush()
	return n, nil
}

// sendJSON marshals v and sends it as one SSE data message.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.sendRaw(data)
}

// sendRaw frames pre-marshaled JSON as "data: {json}\n\n".
func (c *client) sendRaw(data []byte) error {
	n, err := c.write(fmt.Appendf(nil, "data: %s\n\n", data))
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(n))
	return nil
}

// sendKeepalive sends the comment frame (":") that clients ignore.
func (c *client) sendKeepalive() error {
	n, err := c.write([]byte(":\n\n"))
	if err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}
	metrics.AddStreamBytes(int64(n))
	return nil
}
