package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/unclebandit/reviewleopard-backend/internal/logger"
)

// Topics used by the pipeline.
const (
	TopicTelemetry       = "telemetry_events"
	TopicReviewCompleted = "review_completed"
)

// Handler processes one message body. Returning an error asks for redelivery.
type Handler func(body []byte) error

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue delivers JSON-encoded payloads to in-process subscribers with retry.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
	wg         sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log logger.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
		log:        log,
	}
}

// Publish sends a message to all subscribers. Publishing to a topic nobody listens
// on is not an error; the message is dropped.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.process(topic, handler, body)
	}
	return nil
}

// process handles retries and errors
func (q *InMemoryQueue) process(topic string, handler Handler, body []byte) {
	defer q.wg.Done()

	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		err := handler(body)
		if err == nil {
			return
		}
		q.log.Warn("Queue handler failed",
			logger.String("topic", topic),
			logger.Int("attempt", attempt+1),
			logger.Error(err),
		)
		if attempt < q.maxRetries {
			time.Sleep(time.Duration(attempt+1) * q.backoff)
		}
	}
	q.log.Error("Queue message permanently failed", logger.String("topic", topic))
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight deliveries.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
