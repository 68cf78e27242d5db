// Package kafka is a MsgBroker backed by Kafka topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	golog "github.com/ipfs/go-log/v2"
	"github.com/segmentio/kafka-go"
	"github.com/textileio/lane-core/msgbroker"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

var log = golog.Logger("msgbroker/kafka")

// MsgBroker is an implementation of msgbroker.MsgBroker for Kafka.
type MsgBroker struct {
	brokers     []string
	topicPrefix string
	groupID     string

	writer *kafka.Writer

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lk      sync.Mutex
	readers []*kafka.Reader

	metrics *msgbroker.Metrics
}

var _ msgbroker.MsgBroker = (*MsgBroker)(nil)

// New returns a new *MsgBroker. groupID is the default consumer group of registered handlers.
func New(brokers []string, topicPrefix, groupID string) (*MsgBroker, error) {
	if len(brokers) == 0 {
		return nil, errors.New("brokers list is empty")
	}
	if groupID == "" {
		return nil, errors.New("group id is empty")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MsgBroker{
		brokers:     brokers,
		topicPrefix: topicPrefix,
		groupID:     groupID,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		ctx:     ctx,
		cancel:  cancel,
		metrics: msgbroker.NewMetrics(metric.Must(global.Meter("kafka")), "kafka"),
	}, nil
}

// RegisterTopicHandler starts a consumer group reader on the topic.
// Offsets are committed only after handler succeeds.
func (k *MsgBroker) RegisterTopicHandler(
	topic msgbroker.TopicName,
	handler msgbroker.TopicHandler,
	opts ...msgbroker.Option) error {
	config, err := msgbroker.ApplyRegisterHandlerOptions(opts...)
	if err != nil {
		return fmt.Errorf("applying options: %s", err)
	}
	groupID := k.groupID
	if config.GroupID != "" {
		groupID = config.GroupID
	}
	topicName := k.topicPrefix + string(topic)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.brokers,
		Topic:          topicName,
		GroupID:        groupID,
		SessionTimeout: config.AckDeadline,
	})
	k.lk.Lock()
	k.readers = append(k.readers, reader)
	k.lk.Unlock()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		for {
			m, err := reader.FetchMessage(k.ctx)
			if err != nil {
				if k.ctx.Err() == nil {
					log.Errorf("fetching message from %s: %s", topicName, err)
				}
				return
			}
			start := time.Now()
			err = k.handle(handler, m, config.AckDeadline)
			k.metrics.OnHandle(k.ctx, topicName, start, err)
			if err != nil {
				log.Errorf("handling message %d from %s: %s", m.Offset, topicName, err)
				continue
			}
			if err := reader.CommitMessages(k.ctx, m); err != nil {
				log.Errorf("committing message %d from %s: %s", m.Offset, topicName, err)
			}
		}
	}()

	log.Debugf("registered handler for %s:%s", groupID, topicName)
	return nil
}

func (k *MsgBroker) handle(handler msgbroker.TopicHandler, m kafka.Message, deadline time.Duration) error {
	ctx, cancel := context.WithTimeout(k.ctx, deadline)
	defer cancel()
	return handler(ctx, m.Value)
}

// PublishMsg publishes a message to the desired topic.
func (k *MsgBroker) PublishMsg(ctx context.Context, topic msgbroker.TopicName, data []byte) error {
	topicName := k.topicPrefix + string(topic)
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topicName,
		Value: data,
		Time:  time.Now(),
	})
	k.metrics.OnPublish(ctx, topicName, err)
	if err != nil {
		return fmt.Errorf("writing message to kafka: %s", err)
	}
	return nil
}

// Close stops the readers and flushes the writer.
func (k *MsgBroker) Close() error {
	k.cancel()
	k.wg.Wait()

	k.lk.Lock()
	defer k.lk.Unlock()
	var errs []error
	for _, r := range k.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := k.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing kafka clients: %v", errs)
	}
	return nil
}
