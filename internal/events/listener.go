package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"sphere_canvas/internal/domain"
)

const UpdateEvent = "system_update"

var ErrMalformedEvent = errors.New("malformed system event")

// Publisher receives decoded events. The in-process bus satisfies it.
type Publisher interface {
	Publish(evt domain.SystemEvent) error
}

type Config struct {
	URL    string
	Path   string
	Logger *log.Logger
	Now    func() time.Time
}

// Listener follows the execution server's socket.io stream and republishes every system_update
// payload as a SystemEvent.
type Listener struct {
	baseURL   string
	path      string
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
}

func NewListener(cfg Config, publisher Publisher) (*Listener, error) {
	parsed, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("parse events URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse events URL: %q has no scheme or host", cfg.URL)
	}
	if publisher == nil {
		return nil, fmt.Errorf("events publisher is required")
	}
	path := cfg.Path
	if path == "" {
		path = "/socket.io/"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Listener{
		baseURL:   fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host),
		path:      path,
		publisher: publisher,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// Run connects and blocks until ctx is done. Reconnects are left to the socket.io manager.
func (l *Listener) Run(ctx context.Context) error {
	opts := socket.DefaultOptions()
	opts.SetPath(l.path)
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(l.baseURL, opts)
	io := manager.Socket("/", opts)
	defer func() {
		io.Disconnect()
		l.logger.Printf("events disconnected url=%s", l.baseURL)
	}()

	io.On(types.EventName("connect"), func(...any) {
		l.logger.Printf("events connected url=%s sid=%s", l.baseURL, io.Id())
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			l.logger.Printf("events connect failed url=%s err=%v", l.baseURL, errs[0])
		}
	})
	io.On(types.EventName(UpdateEvent), func(data ...any) {
		if len(data) == 0 {
			return
		}
		l.handle(data[0])
	})

	io.Connect()
	<-ctx.Done()
	return ctx.Err()
}

func (l *Listener) handle(payload any) {
	evt, err := Decode(payload, l.now())
	if err != nil {
		l.logger.Printf("events decode failed err=%v", err)
		return
	}
	if err := l.publisher.Publish(evt); err != nil {
		l.logger.Printf("events publish failed type=%s err=%v", evt.Type, err)
	}
}

type updateWire struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// Decode converts one system_update payload. The payload arrives as decoded JSON (usually a map).
// A missing or unparsable timestamp is replaced by now.
func Decode(payload any, now time.Time) (domain.SystemEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.SystemEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	var wire updateWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.SystemEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(wire.Type) == "" {
		return domain.SystemEvent{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	evt := domain.SystemEvent{
		Type:      domain.SystemEventType(wire.Type),
		Data:      wire.Data,
		Timestamp: now,
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, wire.Timestamp); err == nil {
			evt.Timestamp = ts
			break
		}
	}
	if id, ok := wire.Data["workflow_id"].(string); ok {
		evt.WorkflowID = id
	}
	if success, ok := wire.Data["success"].(bool); ok {
		evt.Success = &success
	}
	return evt, nil
}

// Describe renders a workflow event as a one-line message; ok is false for other event types.
func Describe(evt domain.SystemEvent) (string, bool) {
	switch evt.Type {
	case domain.SystemEventWorkflowCreated:
		return fmt.Sprintf("Workflow %s created on server", evt.WorkflowID), true
	case domain.SystemEventWorkflowStarted:
		return fmt.Sprintf("Workflow %s started", evt.WorkflowID), true
	case domain.SystemEventWorkflowCompleted:
		if evt.Success != nil && !*evt.Success {
			return fmt.Sprintf("Workflow %s failed", evt.WorkflowID), true
		}
		return fmt.Sprintf("Workflow %s completed", evt.WorkflowID), true
	default:
		return "", false
	}
}
