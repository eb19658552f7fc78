// Package notification specifies the customer-notification collaborator at
// its interface boundary. Sends are fire-and-forget from the saga's point of
// view: a failed notification is logged, never compensation-triggering.
package notification

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Result struct {
	NotificationID string `json:"notification_id"`
	Status         string `json:"status"`
}

type Provider interface {
	Send(ctx context.Context, recipient, template string, data map[string]any) (Result, error)
}

// LogProvider writes the would-be notification to the log. Stands in for a
// real delivery channel in dev mode.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	return &LogProvider{log: log}
}

func (p *LogProvider) Send(ctx context.Context, recipient, template string, data map[string]any) (Result, error) {
	id := uuid.NewString()
	p.log.Info("notification emitted",
		zap.String("notification_id", id),
		zap.String("recipient", recipient),
		zap.String("template", template),
		zap.Any("data", data))
	return Result{NotificationID: id, Status: "SENT"}, nil
}

// Stub records sends for test assertions and can be scripted to fail.
type Stub struct {
	mu    sync.Mutex
	fail  error
	Sends []StubSend
}

type StubSend struct {
	Recipient string
	Template  string
	Data      map[string]any
}

func NewStub() *Stub {
	return &Stub{}
}

func (s *Stub) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *Stub) Send(ctx context.Context, recipient, template string, data map[string]any) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return Result{}, s.fail
	}
	s.Sends = append(s.Sends, StubSend{Recipient: recipient, Template: template, Data: data})
	return Result{NotificationID: uuid.NewString(), Status: "SENT"}, nil
}

func (s *Stub) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sends)
}
