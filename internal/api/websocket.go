package api

import (
	"encoding/base64"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/MadBale/Mewsage-project/internal/myaudio"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the browser client runs on a different origin than the API
		return true
	},
}

// wsError is sent when one frame fails; the connection stays open.
type wsError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// RealtimeWebSocket classifies base64-encoded audio frames as they
// arrive. Each frame is a complete audio container, processed one at a
// time per connection. Results are not persisted.
func (c *Controller) RealtimeWebSocket(ctx echo.Context) error {
	ws, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader has already written the handshake error response
		c.logger.Error("websocket upgrade failed", "error", err, "ip", ctx.RealIP())
		return nil
	}
	defer ws.Close()

	c.logger.Debug("websocket client connected", "ip", ctx.RealIP())

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", "error", err)
			}
			return nil
		}

		if err := c.handleRealtimeFrame(ctx, ws, message); err != nil {
			// write failure means the connection is gone
			return nil
		}
	}
}

func (c *Controller) handleRealtimeFrame(ctx echo.Context, ws *websocket.Conn, message []byte) error {
	audioBytes, err := base64.StdEncoding.DecodeString(string(message))
	if err != nil {
		return ws.WriteJSON(&wsError{Error: "invalid base64 payload"})
	}

	reqCtx := ctx.Request().Context()
	tensor, err := c.extractFeatures(reqCtx, c.Extractor, func() ([]float32, error) {
		return myaudio.DecodeFile(audioBytes, "frame.wav")
	})
	if err != nil {
		return ws.WriteJSON(&wsError{Error: err.Error()})
	}

	result, err := c.runCascade(reqCtx, tensor)
	if err != nil {
		return ws.WriteJSON(&wsError{Error: err.Error()})
	}

	return ws.WriteJSON(realtimeResponse(result))
}
