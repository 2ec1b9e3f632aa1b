package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

type EventSink interface {
	PublishEvent(event *Event) error
}

// WatermillSink serializes events to JSON and publishes them on a watermill
// topic. Messages carry a sequence number in their metadata.
type WatermillSink struct {
	publisher      message.Publisher
	topic          string
	sequenceNumber uint64
	mu             sync.Mutex
}

var _ EventSink = (*WatermillSink)(nil)

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", w.sequenceNumber))
	w.sequenceNumber++

	if err := w.publisher.Publish(w.topic, msg); err != nil {
		return err
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(event.Type)).Msg("published event")
	return nil
}

// CollectingSink keeps events in memory.
type CollectingSink struct {
	mu     sync.Mutex
	events []*Event
}

var _ EventSink = (*CollectingSink)(nil)

func (c *CollectingSink) PublishEvent(event *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *CollectingSink) Events() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event{}, c.events...)
}

func (c *CollectingSink) Types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]EventType, 0, len(c.events))
	for _, e := range c.events {
		ret = append(ret, e.Type)
	}
	return ret
}
