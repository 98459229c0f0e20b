// Package events announces lookup state changes on a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/example/aerofindr/internal/logging"
	"github.com/example/aerofindr/internal/usecase"
)

// StateEvent is the message body published for every state change.
type StateEvent struct {
	SessionID string        `json:"session_id"`
	State     usecase.State `json:"state"`
}

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher implements usecase.Observer.
type AMQPPublisher struct {
	ch       Channel
	exchange string
	logger   *zap.Logger
}

// NewAMQPPublisher wraps an open channel.
func NewAMQPPublisher(ch Channel, exchange string, logger *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, logger: logger.Named("state_events")}
}

// DialAMQP connects to the broker, declares the topic exchange and returns a
// publisher together with a function that closes the connection.
func DialAMQP(url, exchange string, logger *zap.Logger) (*AMQPPublisher, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, logging.NewOperationError("events.dial", "", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, logging.NewOperationError("events.open_channel", "", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, logging.NewOperationError("events.declare_exchange", "", err)
	}
	return NewAMQPPublisher(ch, exchange, logger), conn.Close, nil
}

// RoutingKey is the key a session's state changes are published under.
func RoutingKey(sessionID string) string {
	return fmt.Sprintf("lookup.state.%s", sessionID)
}

// Publish sends the state as a JSON StateEvent.
func (p *AMQPPublisher) Publish(ctx context.Context, sessionID string, state usecase.State) error {
	body, err := json.Marshal(StateEvent{SessionID: sessionID, State: state})
	if err != nil {
		return logging.NewOperationError("events.encode", sessionID, err)
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(sessionID), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   fmt.Sprintf("%s-%d-%t", sessionID, state.Generation, state.IsLoading),
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
	if err != nil {
		wrapped := logging.NewOperationError("events.publish", sessionID, err)
		p.logger.Error("failed to publish state event", zap.Error(wrapped))
		return wrapped
	}
	return nil
}
