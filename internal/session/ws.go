package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"navsync/internal/playback"

	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxReportSize = 4096
)

// Serve pumps messages between the session and one page connection until
// either side closes, ctx ends or a newer connection takes over. It closes
// conn before returning.
func (r *Remote) Serve(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gen, err := r.attach(cancel)
	if err != nil {
		conn.Close()
		return err
	}
	defer r.detach(gen)
	r.log.Info("page connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		r.writePump(ctx, conn, gen)
	}()

	err = r.readPump(conn)
	cancel()
	<-writerDone
	r.log.Info("page disconnected")

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

// readPump decodes page reports until the connection fails.
func (r *Remote) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxReportSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var rep Report
		if err := json.Unmarshal(data, &rep); err != nil {
			r.log.Debug("invalid report", slog.String("error", err.Error()))
			continue
		}
		if err := r.Dispatch(rep); err != nil {
			if errors.Is(err, playback.ErrLoopStopped) {
				return ErrSessionEnded
			}
			r.log.Debug("report rejected", slog.String("error", err.Error()))
		}
	}
}

// writePump sends queued messages and keepalive pings for connection gen.
// Messages queued while no page was connected are sent first. It closes conn
// on exit, which unblocks readPump.
func (r *Remote) writePump(ctx context.Context, conn *websocket.Conn, gen uint64) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	if msgs, ok := r.take(gen); ok {
		if err := r.write(conn, msgs); err != nil {
			r.log.Debug("page write failed", slog.String("error", err.Error()))
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			if r.isClosed() {
				if msgs, ok := r.take(gen); ok {
					_ = r.write(conn, msgs)
				}
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case <-r.out.ready():
			msgs, ok := r.take(gen)
			if !ok {
				// Superseded: the wake belongs to the newer connection.
				r.out.signal()
				return
			}
			if err := r.write(conn, msgs); err != nil {
				r.log.Debug("page write failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (r *Remote) write(conn *websocket.Conn, msgs []Message) error {
	for _, m := range msgs {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(m); err != nil {
			return err
		}
	}
	return nil
}
