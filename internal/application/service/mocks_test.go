package service

import (
	"context"
	"sync"

	"github.com/garyjia/demande-workflow/internal/domain/event"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type sentMessage struct {
	openID  string
	content string
}

type mockMessageSender struct {
	mu           sync.Mutex
	sent         []sentMessage
	sendTextFunc func(ctx context.Context, openID string, content string) error
}

func (m *mockMessageSender) SendText(ctx context.Context, openID string, content string) error {
	if m.sendTextFunc != nil {
		if err := m.sendTextFunc(ctx, openID, content); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{openID: openID, content: content})
	return nil
}

func (m *mockMessageSender) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.openID
	}
	return out
}

type mockPublisher struct {
	mu          sync.Mutex
	published   []*event.Event
	publishFunc func(ctx context.Context, evt *event.Event) error
}

func (m *mockPublisher) Publish(ctx context.Context, evt *event.Event) error {
	if m.publishFunc != nil {
		return m.publishFunc(ctx, evt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, evt)
	return nil
}
