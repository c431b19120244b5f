// Package websocket carries sessions over gorilla/websocket.
// Frames are JSON text messages shaped as {"type": ..., "data": ...}.
package websocket

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var _ contract.Connection = (*Conn)(nil)

// Conn is the sending half of a websocket connection.
// Outbound events are queued on a bounded buffer drained by a single write pump.
// A consumer unable to take an event within the delivery timeout is disconnected.
type Conn struct {
	id              string
	ws              *websocket.Conn
	send            chan []byte
	done            chan struct{}
	closeOnce       sync.Once
	deliveryTimeout time.Duration
	pingInterval    time.Duration
	log             *slog.Logger
}

func newConn(ws *websocket.Conn, options Options, log *slog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:              id,
		ws:              ws,
		send:            make(chan []byte, options.BufferSize),
		done:            make(chan struct{}),
		deliveryTimeout: options.DeliveryTimeout,
		pingInterval:    options.ReadTimeout * 9 / 10,
		log:             log.With("connection", id),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(ctx context.Context, e event.Outbound) error {
	bytes, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.Type, err)
	}

	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}

	timer := time.NewTimer(c.deliveryTimeout)
	defer timer.Stop()

	select {
	case c.send <- bytes:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		c.log.Warn("Slow consumer, closing connection", "type", e.Type, "buffer", cap(c.send))
		_ = c.Close()
		return errors.ErrSlowConsumer
	}
}

// Close asks the write pump to flush what is queued and hang up. It never blocks.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case bytes := <-c.send:
			if err := c.write(bytes); err != nil {
				c.log.Debug("Write failed", "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug("Ping failed", "error", err)
				_ = c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes the events queued before Close, such as a session_replaced notice.
func (c *Conn) flush() {
	for {
		select {
		case bytes := <-c.send:
			if err := c.write(bytes); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(bytes []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, bytes)
}
