package email

import (
	"context"
	"fmt"
	"sync"
)

// MockSender is a Sender test double that records every message.
type MockSender struct {
	mu   sync.Mutex
	Sent []*Email

	// SendFunc overrides the default record-and-succeed behavior.
	SendFunc func(ctx context.Context, email *Email) (string, error)
}

var _ Sender = (*MockSender)(nil)

func (m *MockSender) Send(ctx context.Context, email *Email) (string, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, email)
	return fmt.Sprintf("mock-%d", len(m.Sent)), nil
}

// Messages returns a copy of the recorded messages.
func (m *MockSender) Messages() []*Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Email, len(m.Sent))
	copy(out, m.Sent)
	return out
}
