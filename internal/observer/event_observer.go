package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// GenerationEvent represents a step in a session's description workflow
type GenerationEvent struct {
	EventType    EventType              `json:"event_type"`
	Timestamp    time.Time              `json:"timestamp"`
	SessionID    string                 `json:"session_id"`
	Duration     time.Duration          `json:"duration"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of workflow event
type EventType string

const (
	GenerationStarted   EventType = "generation_started"
	GenerationCompleted EventType = "generation_completed"
	GenerationFailed    EventType = "generation_failed"
	// GenerationRejected is a generate attempt refused before any network call
	GenerationRejected EventType = "generation_rejected"
	ImageSelected      EventType = "image_selected"
	ImageRemoved       EventType = "image_removed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event GenerationEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event GenerationEvent)
}

// LoggingObserver logs workflow events
type LoggingObserver struct {
	logger *logrus.Logger
}

func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

func (o *LoggingObserver) OnEvent(ctx context.Context, event GenerationEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"session_id": event.SessionID,
		"success":    event.Success,
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case GenerationStarted:
		entry.Info("Description generation started")
	case GenerationCompleted:
		entry.Info("Description generation completed")
	case GenerationFailed:
		entry.Error("Description generation failed")
	case GenerationRejected:
		entry.Warn("Description generation rejected")
	case ImageSelected, ImageRemoved:
		entry.Debug("Product image changed")
	default:
		entry.Info("Workflow event occurred")
	}
}

func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver counts workflow events
type MetricsObserver struct {
	mu                    sync.RWMutex
	totalGenerations      int64
	successfulGenerations int64
	failedGenerations     int64
	rejectedGenerations   int64
	imagesSelected        int64
	totalDuration         time.Duration
}

// NewMetricsObserver returns the concrete type so callers can read Snapshot
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

func (o *MetricsObserver) OnEvent(ctx context.Context, event GenerationEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case GenerationStarted:
		o.totalGenerations++
	case GenerationCompleted:
		o.successfulGenerations++
		o.totalDuration += event.Duration
	case GenerationFailed:
		o.failedGenerations++
		o.totalDuration += event.Duration
	case GenerationRejected:
		o.rejectedGenerations++
	case ImageSelected:
		o.imagesSelected++
	}
}

func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// Snapshot returns current counters
func (o *MetricsObserver) Snapshot() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	finished := o.successfulGenerations + o.failedGenerations
	avg := time.Duration(0)
	if finished > 0 {
		avg = o.totalDuration / time.Duration(finished)
	}

	return map[string]interface{}{
		"total_generations":      o.totalGenerations,
		"successful_generations": o.successfulGenerations,
		"failed_generations":     o.failedGenerations,
		"rejected_generations":   o.rejectedGenerations,
		"images_selected":        o.imagesSelected,
		"avg_generation_ms":      avg.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	wg        sync.WaitGroup
}

func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes the first observer with a matching name
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers fans the event out to every observer concurrently
func (p *EventPublisher) NotifyObservers(ctx context.Context, event GenerationEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		p.wg.Add(1)
		go func(obs Observer) {
			defer p.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}

// Wait blocks until every dispatched notification has been handled
func (p *EventPublisher) Wait() {
	p.wg.Wait()
}
