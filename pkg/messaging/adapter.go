package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// BrokerAdapter exposes a Broker as an EventBus.
type BrokerAdapter struct {
	broker Broker
	// HandlerTimeout bounds each handler call; zero means no bound.
	HandlerTimeout time.Duration
}

func NewBrokerAdapter(broker Broker, handlerTimeout time.Duration) *BrokerAdapter {
	return &BrokerAdapter{broker: broker, HandlerTimeout: handlerTimeout}
}

// Publish sends payload as-is; it must already be JSON.
func (a *BrokerAdapter) Publish(ctx context.Context, topic string, payload []byte) error {
	return a.broker.Publish(ctx, topic, json.RawMessage(payload))
}

func (a *BrokerAdapter) Close() error {
	return a.broker.Close()
}

// Subscribe runs handler for every message on topic until ctx is done.
// Handler errors are logged and do not stop the subscription.
func (a *BrokerAdapter) Subscribe(ctx context.Context, topic string, handler Handler) error {
	msgChan, err := a.broker.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgChan {
			if err := a.handle(ctx, handler, msg); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("Message handler failed")
			}
		}
	}()

	return nil
}

func (a *BrokerAdapter) handle(ctx context.Context, handler Handler, msg []byte) error {
	if a.HandlerTimeout <= 0 {
		return handler(ctx, msg)
	}
	hctx, cancel := context.WithTimeout(ctx, a.HandlerTimeout)
	defer cancel()
	return handler(hctx, msg)
}

var _ EventBus = (*BrokerAdapter)(nil)
