package kafka

import (
	"context"
	"encoding/json"
	"github.com/katoapp/agrimarket/internal/events"
	"github.com/katoapp/agrimarket/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"strconv"
	"time"
)

type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     *zap.Logger
}

func NewProducer(brokers []string, topic string, buf int, log *zap.Logger) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log,
	}
}

// Start runs the write loop until the inbox is closed or ctx ends; pending
// messages are flushed before the writer closes.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		defer func() {
			if err := p.w.Close(); err != nil {
				p.log.Warn("kafka writer close", zap.Error(err))
			}
		}()
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case m, ok := <-p.inbox:
				if !ok {
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) drain() {
	for {
		select {
		case m, ok := <-p.inbox:
			if !ok {
				return
			}
			p.write(m)
		default:
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	eventType := headerValue(m.Headers, "x-event-type")
	if err := p.w.WriteMessages(ctx, m); err != nil {
		metrics.EventsPublished.WithLabelValues(eventType, "failed").Inc()
		p.log.Error("kafka publish failed",
			zap.String("topic", p.w.Topic),
			zap.String("event_type", eventType),
			zap.ByteString("key", m.Key),
			zap.Error(err),
		)
		return
	}
	metrics.EventsPublished.WithLabelValues(eventType, "written").Inc()
}

// Publish enqueues a message without blocking; when the buffer is full the
// message is dropped and logged.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}
	select {
	case p.inbox <- m:
	default:
		eventType := headerValue(headers, "x-event-type")
		metrics.EventsPublished.WithLabelValues(eventType, "dropped").Inc()
		p.log.Warn("kafka inbox full, event dropped", zap.String("event_type", eventType), zap.ByteString("key", key))
	}
}

// Close stops accepting messages; the loop flushes what is queued.
func (p *Producer) Close() { close(p.inbox) }

func (p *Producer) WaitClosed() { <-p.closeCh }

func headerValue(hs []kafka.Header, key string) string {
	for _, h := range hs {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Sink publishes domain events keyed by correlation id, so every event of
// one order lands on the same partition in order.
type Sink struct {
	P *Producer
}

var _ events.Sink = (*Sink)(nil)

func (s *Sink) Publish(_ context.Context, e events.Envelope) {
	s.P.Publish([]byte(e.CorrelationID), MustMarshal(e),
		kafka.Header{Key: "x-event-type", Value: []byte(e.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(e.EventVersion))},
	)
}

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
