// Package presenter turns scheduler output into something a person or a
// program can consume. Presenters only ever see finished numbers.
package presenter

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"mlvisuals/internal/model"
)

const (
	EventStep     = "step"
	EventGeometry = "geometry"
	EventDone     = "done"
)

// Event is the wire form shared by the JSON lines and websocket presenters.
type Event struct {
	Type     string            `json:"type"`
	BatchID  string            `json:"batch_id,omitempty"`
	Step     *model.CurvePoint `json:"step,omitempty"`
	Geometry *model.Geometry   `json:"geometry,omitempty"`
	Complete *bool             `json:"complete,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func StepEvent(batchID string, point model.CurvePoint) Event {
	return Event{Type: EventStep, BatchID: batchID, Step: &point}
}

func GeometryEvent(batchID string, g model.Geometry) Event {
	return Event{Type: EventGeometry, BatchID: batchID, Geometry: &g}
}

func DoneEvent(batchID string, complete bool, err error) Event {
	ev := Event{Type: EventDone, BatchID: batchID, Complete: &complete}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// JSONLines writes one Event per line.
type JSONLines struct {
	mu      sync.Mutex
	enc     *json.Encoder
	batchID string
}

func NewJSONLines(w io.Writer, batchID string) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w), batchID: batchID}
}

func (p *JSONLines) PresentStep(_ context.Context, point model.CurvePoint) error {
	return p.write(StepEvent(p.batchID, point))
}

func (p *JSONLines) PresentGeometry(_ context.Context, g model.Geometry) error {
	return p.write(GeometryEvent(p.batchID, g))
}

func (p *JSONLines) Done(complete bool, err error) error {
	return p.write(DoneEvent(p.batchID, complete, err))
}

func (p *JSONLines) write(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(ev)
}
