// Package notification sends citizens SMS updates about their complaints.
// Messages are built from complaint lifecycle events and delivered by a
// small worker pool with retries.
package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service is the notification service
type Service struct {
	sms      SMSProvider
	senderID string

	mu      sync.Mutex
	stats   Stats
	started bool
	// stopped is final; stopCh is closed once and never reopened
	stopped bool

	notifCh chan *Notification
	stopCh  chan struct{}
	wg      sync.WaitGroup

	config ServiceConfig
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Workers       int
	BufferSize    int
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultServiceConfig returns default configuration
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Workers:       2,
		BufferSize:    500,
		RetryAttempts: 3,
		RetryDelay:    30 * time.Second,
	}
}

// NewService creates a new notification service
func NewService(sms SMSProvider, senderID string, config ServiceConfig) *Service {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Service{
		sms:      sms,
		senderID: senderID,
		stats:    Stats{ByEventType: make(map[string]int64)},
		notifCh:  make(chan *Notification, config.BufferSize),
		stopCh:   make(chan struct{}),
		config:   config,
	}
}

// Start starts the delivery workers. A stopped service cannot be restarted.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("service stopped, create a new one")
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("service already started")
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	return nil
}

// Stop stops the workers. Queued messages are dropped.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("service not started")
	}
	s.started = false
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	return nil
}

// Enqueue queues a notification for delivery
func (s *Service) Enqueue(n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Channel == "" {
		n.Channel = ChannelSMS
	}
	if n.SenderID == "" {
		n.SenderID = s.senderID
	}
	n.Status = StatusPending

	select {
	case s.notifCh <- n:
		return nil
	default:
		return fmt.Errorf("notification buffer full")
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case n := <-s.notifCh:
			s.deliver(ctx, n)
		}
	}
}

func (s *Service) deliver(ctx context.Context, n *Notification) {
	err := s.sms.Send(ctx, n)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		now := time.Now()
		n.SentAt = &now
		n.Status = StatusSent
		s.record(n, true)
		return
	}

	n.ErrorMessage = err.Error()
	n.RetryCount++
	if n.RetryCount >= s.config.RetryAttempts {
		n.Status = StatusFailed
		s.record(n, false)
		log.Printf("Notification %s for complaint %s failed after %d attempts: %v",
			n.ID, n.ComplaintID, n.RetryCount, err)
		return
	}

	go s.requeue(n)
}

func (s *Service) requeue(n *Notification) {
	timer := time.NewTimer(s.config.RetryDelay)
	defer timer.Stop()

	select {
	case <-s.stopCh:
	case <-timer.C:
		select {
		case s.notifCh <- n:
		default:
			log.Printf("Notification %s dropped on retry: buffer full", n.ID)
		}
	}
}

// record must be called with s.mu held
func (s *Service) record(n *Notification, success bool) {
	if success {
		s.stats.TotalSent++
	} else {
		s.stats.TotalFailed++
	}
	s.stats.ByEventType[n.EventType]++

	if total := s.stats.TotalSent + s.stats.TotalFailed; total > 0 {
		s.stats.DeliveryRate = float64(s.stats.TotalSent) / float64(total)
	}
}

// GetStats returns a snapshot of delivery statistics
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.ByEventType = make(map[string]int64, len(s.stats.ByEventType))
	for k, v := range s.stats.ByEventType {
		out.ByEventType[k] = v
	}
	return out
}
