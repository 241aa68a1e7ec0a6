package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// SMSProvider delivers a text message to a phone number
type SMSProvider interface {
	Send(ctx context.Context, n *Notification) error
	Name() string
}

// LogProvider writes messages to the process log instead of a gateway.
// It is the default until an SMS gateway is configured.
type LogProvider struct{}

// NewLogProvider creates a logging SMS provider
func NewLogProvider() *LogProvider {
	return &LogProvider{}
}

// Send logs the message
func (p *LogProvider) Send(ctx context.Context, n *Notification) error {
	if n.Phone == "" {
		return fmt.Errorf("no phone number provided")
	}
	log.Printf("[SMS %s] to=%s complaint=%s: %s", n.SenderID, maskPhone(n.Phone), n.ComplaintID, n.Body)
	return nil
}

// Name identifies the provider
func (p *LogProvider) Name() string { return "log" }

// MockSMSProvider records messages for tests
type MockSMSProvider struct {
	mu         sync.Mutex
	sent       []*Notification
	failures   int
	deliveries chan struct{}
}

// NewMockSMSProvider creates a new mock SMS provider
func NewMockSMSProvider() *MockSMSProvider {
	return &MockSMSProvider{deliveries: make(chan struct{}, 100)}
}

// Send records the message, or fails while failures remain
func (p *MockSMSProvider) Send(ctx context.Context, n *Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failures > 0 {
		p.failures--
		return fmt.Errorf("mock send failure")
	}
	if n.Phone == "" {
		return fmt.Errorf("no phone number provided")
	}

	copied := *n
	p.sent = append(p.sent, &copied)
	select {
	case p.deliveries <- struct{}{}:
	default:
	}
	return nil
}

// Name identifies the provider
func (p *MockSMSProvider) Name() string { return "mock" }

// FailNext makes the next n sends fail
func (p *MockSMSProvider) FailNext(n int) {
	p.mu.Lock()
	p.failures = n
	p.mu.Unlock()
}

// Sent returns the messages delivered so far
func (p *MockSMSProvider) Sent() []*Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Notification(nil), p.sent...)
}

// Deliveries signals once per delivered message
func (p *MockSMSProvider) Deliveries() <-chan struct{} {
	return p.deliveries
}

// maskPhone keeps the last four digits
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	masked := make([]byte, len(phone))
	for i := range masked {
		masked[i] = 'x'
	}
	copy(masked[len(phone)-4:], phone[len(phone)-4:])
	return string(masked)
}
