package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/astrotv/astrotv-server/internal/core"
	"github.com/astrotv/astrotv-server/internal/metrics"
	"github.com/astrotv/astrotv-server/internal/utils"
)

const writeTimeout = 5 * time.Second

var errSessionClosed = errors.New("session closed")

// WSHandler upgrades HTTP connections and bridges them to a core session.
type WSHandler struct {
	hub       *core.Hub
	metrics   *metrics.Metrics
	readLimit int64
	queueSize int
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, m *metrics.Metrics, readLimit int64, queueSize int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, metrics: m, readLimit: readLimit, queueSize: queueSize, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	client := core.NewClient(utils.NewID(), h.queueSize)
	session := h.hub.NewSession(client)
	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel()
	<-errCh

	// Both loops are done, so the session is no longer driven concurrently.
	session.Close()

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, errSessionClosed):
		reason = errSessionClosed.Error()
	default:
		if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
			break
		}
		status = websocket.StatusInternalError
		reason = "internal error"
		h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
	}

	_ = conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		session.HandleRaw(ctx, data)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case data := <-client.Outbound():
			if err := h.write(ctx, conn, data); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws frame")
				return err
			}
		case <-client.Done():
			// Frames queued before the close are still delivered.
			for {
				select {
				case data := <-client.Outbound():
					if err := h.write(ctx, conn, data); err != nil {
						return err
					}
				default:
					return errSessionClosed
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
