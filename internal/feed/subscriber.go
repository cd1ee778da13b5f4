package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Subscriber consumes the live alert feed.
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
	log    *zap.Logger
}

// NewSubscriber connects to Redis and subscribes to the alert channel.
// The subscription is confirmed before returning.
func NewSubscriber(addr string, log *zap.Logger) (*Subscriber, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pubsub := client.Subscribe(ctx, alertChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("feed: subscribe to %s at %s: %w", alertChannel, addr, err)
	}

	log.Info("Subscribed to alert feed",
		zap.String("addr", addr),
		zap.String("channel", alertChannel),
	)
	return &Subscriber{client: client, pubsub: pubsub, log: log}, nil
}

// Next blocks until the next alert arrives or ctx ends.
func (s *Subscriber) Next(ctx context.Context) (AlertMessage, error) {
	msg, err := s.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return AlertMessage{}, fmt.Errorf("feed: receive: %w", err)
	}

	var alert AlertMessage
	if err := json.Unmarshal([]byte(msg.Payload), &alert); err != nil {
		return AlertMessage{}, fmt.Errorf("feed: decode message: %w", err)
	}
	return alert, nil
}

// Close tears down the subscription and the connection.
func (s *Subscriber) Close() error {
	s.pubsub.Close()
	return s.client.Close()
}
