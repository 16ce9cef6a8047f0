package presenter

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mlvisuals/internal/model"
)

const writeWait = 10 * time.Second

// WebSocket streams events to one connected client.
type WebSocket struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	batchID string
}

func NewWebSocket(conn *websocket.Conn, batchID string) *WebSocket {
	return &WebSocket{conn: conn, batchID: batchID}
}

func (p *WebSocket) PresentStep(ctx context.Context, point model.CurvePoint) error {
	return p.Send(ctx, StepEvent(p.batchID, point))
}

func (p *WebSocket) PresentGeometry(ctx context.Context, g model.Geometry) error {
	return p.Send(ctx, GeometryEvent(p.batchID, g))
}

func (p *WebSocket) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteJSON(ev)
}
