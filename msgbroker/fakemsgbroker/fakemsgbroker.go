package fakemsgbroker

import (
	"context"
	"fmt"
	"sync"

	mbroker "github.com/textileio/lane-core/msgbroker"
)

// FakeMsgBroker keeps published messages in memory and delivers them
// synchronously to registered handlers.
type FakeMsgBroker struct {
	lock          sync.Mutex
	topicMessages map[string][][]byte
	handlers      map[string][]mbroker.TopicHandler
	handlerErrors int
}

// New returns a new FakeMsgBroker.
func New() *FakeMsgBroker {
	return &FakeMsgBroker{
		topicMessages: map[string][][]byte{},
		handlers:      map[string][]mbroker.TopicHandler{},
	}
}

// RegisterTopicHandler implements msgbroker.MsgBroker.
func (b *FakeMsgBroker) RegisterTopicHandler(
	topicName mbroker.TopicName,
	handler mbroker.TopicHandler,
	opts ...mbroker.Option) error {
	if _, err := mbroker.ApplyRegisterHandlerOptions(opts...); err != nil {
		return fmt.Errorf("applying options: %s", err)
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	b.handlers[string(topicName)] = append(b.handlers[string(topicName)], handler)
	return nil
}

// PublishMsg implements msgbroker.MsgBroker.
func (b *FakeMsgBroker) PublishMsg(ctx context.Context, topicName mbroker.TopicName, data []byte) error {
	b.lock.Lock()
	b.topicMessages[string(topicName)] = append(b.topicMessages[string(topicName)], data)
	handlers := append([]mbroker.TopicHandler(nil), b.handlers[string(topicName)]...)
	b.lock.Unlock()

	for _, h := range handlers {
		if err := h(ctx, data); err != nil {
			b.lock.Lock()
			b.handlerErrors++
			b.lock.Unlock()
		}
	}
	return nil
}

// Helpers for tests

// TotalPublished returns the number of messages published in all topics.
func (b *FakeMsgBroker) TotalPublished() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	var count int
	for _, msgs := range b.topicMessages {
		count += len(msgs)
	}

	return count
}

// TotalPublishedTopic returns the number of messages published in a topic.
func (b *FakeMsgBroker) TotalPublishedTopic(name mbroker.TopicName) int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return len(b.topicMessages[string(name)])
}

// GetMsg returns the idx-th message published in a topic.
func (b *FakeMsgBroker) GetMsg(name mbroker.TopicName, idx int) ([]byte, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	topic := b.topicMessages[string(name)]
	if idx >= len(topic) {
		return nil, fmt.Errorf("topic queue has length %d smaller than idx access %d", len(topic), idx)
	}

	return topic[idx], nil
}

// HandlerErrors returns how many handler calls failed.
func (b *FakeMsgBroker) HandlerErrors() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.handlerErrors
}
