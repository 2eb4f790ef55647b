// Package stream carries flow events from the aggregator to the upload queue
// over an in-process watermill pub/sub.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/vincentbai/classtrace/internal/flow"
	"github.com/vincentbai/classtrace/internal/logging"
)

// Topic is the flow event topic.
const Topic = "classtrace.flow"

// Sink receives decoded flow events.
type Sink interface {
	RecordFlowEvent(flow.Event)
}

// Bus publishes flow events and forwards them to a sink. It satisfies
// flow.Emitter.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger

	wg sync.WaitGroup
}

var _ flow.Emitter = (*Bus)(nil)

// NewBus creates a bus. Publishing blocks until the forwarder acks, so events
// reach the sink in emission order.
func NewBus(buffer int64) *Bus {
	logger := logging.Component("stream")
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            buffer,
			BlockPublishUntilSubscriberAck: true,
		}, logging.NewWatermillAdapter(logger)),
		logger: logger,
	}
}

// Emit publishes ev. Failures are logged; flow events are best effort.
func (b *Bus) Emit(ev flow.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("Failed to encode flow event")
		return
	}
	msg := message.NewMessage(ev.ID, data)
	msg.Metadata.Set("type", string(ev.Type))
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		b.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("Failed to publish flow event")
	}
}

// Forward subscribes sink to the topic. Delivery runs until ctx is done or
// the bus is closed.
func (b *Bus) Forward(ctx context.Context, sink Sink) error {
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Topic, err)
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			var ev flow.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.logger.Error().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable flow event")
				msg.Ack()
				continue
			}
			sink.RecordFlowEvent(ev)
			msg.Ack()
		}
	}()
	return nil
}

// Close shuts the pub/sub down and waits for forwarders to drain.
func (b *Bus) Close() error {
	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}
