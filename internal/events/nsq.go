package events

import (
	"context"
	"fmt"

	"github.com/nsqio/go-nsq"
)

type NSQPublisher struct {
	producer *nsq.Producer
	topic    string
}

// NewNSQPublisher connects to nsqd at addr and pings it before returning.
func NewNSQPublisher(addr, topic string) (*NSQPublisher, error) {
	p, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create nsq producer: %w", err)
	}
	if err := p.Ping(); err != nil {
		p.Stop()
		return nil, fmt.Errorf("ping nsqd: %w", err)
	}
	p.SetLoggerLevel(nsq.LogLevelWarning)
	return &NSQPublisher{producer: p, topic: topic}, nil
}

func (n *NSQPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := e.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.producer.Publish(n.topic, b); err != nil {
		return fmt.Errorf("publish to %s: %w", n.topic, err)
	}
	return nil
}

func (n *NSQPublisher) Close() error {
	n.producer.Stop()
	return nil
}
