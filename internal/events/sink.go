// Package events decouples security event emission from the code paths
// that produce them. Emitters never block on downstream consumers; a
// buffered channel absorbs bursts and a single drain goroutine preserves
// emission order per identifier.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelsec/authguard/internal/models"
)

// Handler consumes drained events. Handlers run on the drain goroutine,
// so events for the same identifier are always delivered in order.
type Handler func(event models.SecurityEvent)

// Sink is a non-blocking fan-in for security events. When the buffer is
// full the event is dropped and counted rather than stalling the
// authentication path.
type Sink struct {
	ch       chan models.SecurityEvent
	handlers []Handler
	logger   *slog.Logger

	mu      sync.Mutex
	dropped uint64

	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

// NewSink creates a sink with the given buffer size and starts its
// drain goroutine. The slog handler is always attached as the first
// consumer.
func NewSink(bufferSize int, logger *slog.Logger, handlers ...Handler) *Sink {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	s := &Sink{
		ch:     make(chan models.SecurityEvent, bufferSize),
		logger: logger,
		stopCh: make(chan struct{}),
	}
	s.handlers = append([]Handler{s.logEvent}, handlers...)

	s.wg.Add(1)
	go s.drain()

	return s
}

// Emit enqueues an event without blocking. Returns false when the
// buffer is full and the event was dropped.
func (s *Sink) Emit(event models.SecurityEvent) bool {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case s.ch <- event:
		return true
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return false
	}
}

// Dropped reports how many events were discarded due to a full buffer.
func (s *Sink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops the drain goroutine after flushing buffered events. The
// context bounds how long the flush may take.
func (s *Sink) Close(ctx context.Context) error {
	s.once.Do(func() {
		close(s.stopCh)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) drain() {
	defer s.wg.Done()

	for {
		select {
		case event := <-s.ch:
			s.dispatch(event)
		case <-s.stopCh:
			// Flush whatever is still buffered before exiting.
			for {
				select {
				case event := <-s.ch:
					s.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) dispatch(event models.SecurityEvent) {
	for _, h := range s.handlers {
		h(event)
	}
}

func (s *Sink) logEvent(event models.SecurityEvent) {
	level := slog.LevelInfo
	switch event.Type {
	case models.EventAuthFailure, models.EventAuthLocked, models.EventOTPFailed:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.PrincipalID != "" {
		attrs = append(attrs, slog.String("principal_id", event.PrincipalID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Channel != "" {
		attrs = append(attrs, slog.String("channel", string(event.Channel)))
	}
	if event.MaskedDestination != "" {
		attrs = append(attrs, slog.String("destination", event.MaskedDestination))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	s.logger.LogAttrs(context.Background(), level, "security event", attrs...)
}
