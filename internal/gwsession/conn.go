package gwsession

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Conn abstracts the wire transport a Session speaks over so the pipeline
// logic can be exercised without a real network socket.
type Conn interface {
	// ReadJSON blocks for the next text message and unmarshals it into v.
	ReadJSON(ctx context.Context, v any) error

	// WriteJSON marshals v and writes it as a single text message.
	WriteJSON(ctx context.Context, v any) error

	// Close closes the connection with the given status code and reason.
	Close(code int, reason string) error
}

// wsConn adapts a *websocket.Conn accepted from an HTTP upgrade to Conn.
type wsConn struct {
	c *websocket.Conn
}

// Accept upgrades an HTTP request to a WebSocket and wraps it as a Conn.
// originPatterns, if non-empty, restricts which Origin headers are accepted.
func Accept(w http.ResponseWriter, r *http.Request, originPatterns []string) (Conn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("gwsession: accept: %w", err)
	}
	return &wsConn{c: conn}, nil
}

func (w *wsConn) ReadJSON(ctx context.Context, v any) error {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (w *wsConn) WriteJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gwsession: marshal: %w", err)
	}
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close(code int, reason string) error {
	return w.c.Close(websocket.StatusCode(code), reason)
}
