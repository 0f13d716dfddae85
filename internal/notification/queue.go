package notification

import (
	"context"
	"sync"

	"github.com/classbill/classbill/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const queueCapacity = 256

// Queue buffers messages and delivers them on a background worker.
type Queue struct {
	log      *zap.Logger
	provider email.Provider

	ch   chan Message
	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

func NewQueue(log *zap.Logger, provider email.Provider) *Queue {
	return &Queue{
		log:      log.Named("notification.queue"),
		provider: provider,
		ch:       make(chan Message, queueCapacity),
		done:     make(chan struct{}),
	}
}

// Enqueue queues a message for delivery without blocking. Returns the
// assigned message id, or empty when the queue is full.
func (q *Queue) Enqueue(to string, tmpl Template, data map[string]any) string {
	msg := NewMessage(to, tmpl, data)
	select {
	case q.ch <- msg:
		return msg.ID
	default:
		q.mu.Lock()
		q.dropped++
		q.mu.Unlock()
		q.log.Warn("notification dropped, queue full",
			zap.String("template", string(tmpl)),
			zap.String("to", to),
		)
		return ""
	}
}

// Dropped reports how many messages were discarded due to a full queue.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Start launches the delivery worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Stop drains remaining messages and blocks until the worker exits.
func (q *Queue) Stop() {
	close(q.done)
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case msg := <-q.ch:
			q.deliver(msg)
		case <-q.done:
			for {
				select {
				case msg := <-q.ch:
					q.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(msg Message) {
	subject, body, err := Render(msg)
	if err != nil {
		q.log.Error("rendering notification",
			zap.String("message_id", msg.ID),
			zap.String("template", string(msg.Template)),
			zap.Error(err),
		)
		return
	}
	if err := q.provider.Send(context.Background(), []string{msg.To}, subject, body); err != nil {
		q.log.Error("sending notification",
			zap.String("message_id", msg.ID),
			zap.String("template", string(msg.Template)),
			zap.Error(err),
		)
		return
	}
	q.log.Debug("notification delivered",
		zap.String("message_id", msg.ID),
		zap.String("template", string(msg.Template)),
	)
}

var Module = fx.Module("notification",
	fx.Provide(NewQueue),
	fx.Invoke(registerHooks),
)

func registerHooks(lc fx.Lifecycle, q *Queue) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			q.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			q.Stop()
			return nil
		},
	})
}
