package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"
)

// AMQPGateway publishes push messages to a RabbitMQ exchange for an external
// push worker. The connection is re-established on demand.
type AMQPGateway struct {
	mu         sync.Mutex
	amqpURL    string
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

func NewAMQPGateway(amqpURL, exchange, routingKey string) (*AMQPGateway, error) {
	g := &AMQPGateway{
		amqpURL:    amqpURL,
		exchange:   exchange,
		routingKey: routingKey,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.connectLocked(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *AMQPGateway) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil || g.conn.IsClosed() || g.channel == nil {
		g.closeLocked()
		if err := g.connectLocked(); err != nil {
			return err
		}
	}

	err = g.channel.Publish(g.exchange, g.routingKey, false, false, publishing)
	if err != nil && isConnClosedErr(err) {
		g.closeLocked()
		if connErr := g.connectLocked(); connErr != nil {
			return fmt.Errorf("failed to publish message: %w (reconnect failed: %v)", err, connErr)
		}
		err = g.channel.Publish(g.exchange, g.routingKey, false, false, publishing)
	}
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return ctx.Err()
}

func (g *AMQPGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var err error
	if g.channel != nil {
		if channelErr := g.channel.Close(); channelErr != nil {
			log.Warnf("Failed to close channel: %v", channelErr)
			err = channelErr
		}
		g.channel = nil
	}
	if g.conn != nil {
		if connErr := g.conn.Close(); connErr != nil {
			log.Warnf("Failed to close connection: %v", connErr)
			if err == nil {
				err = connErr
			}
		}
		g.conn = nil
	}
	return err
}

func (g *AMQPGateway) connectLocked() error {
	conn, err := amqp.Dial(g.amqpURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(g.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	g.conn = conn
	g.channel = ch
	return nil
}

func (g *AMQPGateway) closeLocked() {
	if g.channel != nil {
		_ = g.channel.Close()
		g.channel = nil
	}
	if g.conn != nil {
		_ = g.conn.Close()
		g.conn = nil
	}
}

func isConnClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "channel/connection is not open")
}
