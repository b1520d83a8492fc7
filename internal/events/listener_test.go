package events

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/messaging/inproc"
)

func TestDecodeWorkflowCompleted(t *testing.T) {
	now := time.Unix(500, 0)
	payload := map[string]any{
		"type":      "workflow_completed",
		"data":      map[string]any{"workflow_id": "visual_workflow_7", "success": false},
		"timestamp": "2024-05-01T10:11:12.345678",
	}
	evt, err := Decode(payload, now)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Type != domain.SystemEventWorkflowCompleted || evt.WorkflowID != "visual_workflow_7" {
		t.Fatalf("event=%+v", evt)
	}
	if evt.Success == nil || *evt.Success {
		t.Fatalf("success=%v", evt.Success)
	}
	if evt.Timestamp.Year() != 2024 || evt.Timestamp.Minute() != 11 {
		t.Fatalf("timestamp=%s", evt.Timestamp)
	}
	msg, ok := Describe(evt)
	if !ok || msg != "Workflow visual_workflow_7 failed" {
		t.Fatalf("describe=%q,%v", msg, ok)
	}
}

func TestDecodeFallsBackToNow(t *testing.T) {
	now := time.Unix(900, 0)
	evt, err := Decode(map[string]any{"type": "home_update", "data": map[string]any{"device": "lights"}}, now)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !evt.Timestamp.Equal(now) || evt.WorkflowID != "" || evt.Success != nil {
		t.Fatalf("event=%+v", evt)
	}
	if _, ok := Describe(evt); ok {
		t.Fatalf("non-workflow events should not be described")
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	for name, payload := range map[string]any{
		"no type": map[string]any{"data": map[string]any{}},
		"string":  "workflow_started",
		"bad data": map[string]any{"type": "x", "data": []any{1, 2}},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(payload, time.Now()); !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("err=%v want=%v", err, ErrMalformedEvent)
			}
		})
	}
}

func TestHandlePublishesToBus(t *testing.T) {
	bus := inproc.New(2)
	ch := bus.Register("test")
	l, err := NewListener(Config{URL: "http://localhost:5000/api", Logger: log.New(io.Discard, "", 0)}, bus)
	if err != nil {
		t.Fatalf("new listener: %v", err)
	}
	if l.baseURL != "http://localhost:5000" || l.path != "/socket.io/" {
		t.Fatalf("listener base=%s path=%s", l.baseURL, l.path)
	}

	l.handle(map[string]any{"type": "workflow_started", "data": map[string]any{"workflow_id": "wf"}})
	l.handle("garbage")

	select {
	case evt := <-ch:
		if evt.Type != domain.SystemEventWorkflowStarted || evt.WorkflowID != "wf" {
			t.Fatalf("event=%+v", evt)
		}
	default:
		t.Fatalf("no event published")
	}
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event=%+v", evt)
	default:
	}
}

func TestNewListenerValidatesURL(t *testing.T) {
	if _, err := NewListener(Config{URL: "localhost"}, inproc.New(1)); err == nil {
		t.Fatalf("expected error for URL without scheme")
	}
	if _, err := NewListener(Config{URL: "http://localhost:5000"}, nil); err == nil {
		t.Fatalf("expected error for nil publisher")
	}
}
