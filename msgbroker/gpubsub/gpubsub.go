package gpubsub

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	golog "github.com/ipfs/go-log/v2"
	"github.com/textileio/lane-core/msgbroker"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"google.golang.org/api/option"
)

var log = golog.Logger("msgbroker/gpubsub")

// PubsubMsgBroker is an implementation of MsgBroker for Google PubSub.
type PubsubMsgBroker struct {
	subsName    string
	topicPrefix string

	client          *pubsub.Client
	clientCtx       context.Context
	clientCtxCancel context.CancelFunc

	topicCacheLock sync.Mutex
	topicCache     map[string]*pubsub.Topic

	receivingHandlersWg sync.WaitGroup
	metrics             *msgbroker.Metrics
}

var _ msgbroker.MsgBroker = (*PubsubMsgBroker)(nil)

// New returns a new *PubsubMsgBroker.
// If PUBSUB_EMULATOR_HOST is set, projectID and apiKey can be empty.
// apiKey is the content of a service account json file.
func New(projectID, apiKey, topicPrefix, subsName string) (*PubsubMsgBroker, error) {
	var opts []option.ClientOption
	if os.Getenv("PUBSUB_EMULATOR_HOST") == "" {
		if apiKey == "" {
			return nil, fmt.Errorf("api key is empty")
		}
		if projectID == "" {
			return nil, fmt.Errorf("project-id is empty")
		}
		opts = append(opts, option.WithCredentialsJSON([]byte(apiKey)))
	} else if projectID == "" {
		projectID = "local"
	}
	if subsName == "" {
		return nil, fmt.Errorf("subscription name is empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating pubsub client: %s", err)
	}

	p := &PubsubMsgBroker{
		subsName:    subsName,
		topicPrefix: topicPrefix,

		client:          client,
		clientCtx:       ctx,
		clientCtxCancel: cancel,

		topicCache: map[string]*pubsub.Topic{},
	}
	p.metrics = msgbroker.NewMetrics(metric.Must(global.Meter("gpubsub")), "gpubsub")

	return p, nil
}

// RegisterTopicHandler registers a handler to a topic. The subscription is named after
// the subscriber name and the topic, unless a group id option is provided.
func (p *PubsubMsgBroker) RegisterTopicHandler(
	tName msgbroker.TopicName,
	handler msgbroker.TopicHandler,
	opts ...msgbroker.Option) error {
	config, err := msgbroker.ApplyRegisterHandlerOptions(opts...)
	if err != nil {
		return fmt.Errorf("applying options: %s", err)
	}

	topicName := p.topicPrefix + string(tName)
	topic, err := p.getTopic(topicName)
	if err != nil {
		return fmt.Errorf("get topic: %s", err)
	}

	subName := p.topicPrefix + p.subsName + "-" + string(tName)
	if config.GroupID != "" {
		subName = p.topicPrefix + config.GroupID
	}
	sub := p.client.Subscription(subName)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("checking subscription exists: %s", err)
	}
	if !exists {
		log.Warnf("creating subscription %s for topic %s", subName, topicName)
		sub, err = p.client.CreateSubscription(ctx, subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: config.AckDeadline,
		})
		if err != nil {
			return fmt.Errorf("creating subscription: %s", err)
		}
	}

	p.receivingHandlersWg.Add(1)
	go func() {
		defer p.receivingHandlersWg.Done()
		err := sub.Receive(p.clientCtx, func(ctx context.Context, m *pubsub.Message) {
			start := time.Now()
			err := handler(ctx, m.Data)
			p.metrics.OnHandle(ctx, topicName, start, err)
			if err != nil {
				log.Errorf("handling message %s from %s: %s", m.ID, topicName, err)
				m.Nack()
				return
			}
			m.Ack()
		})
		if err != nil {
			log.Errorf("receive handler subscription %s, topic %s: %s", subName, topicName, err)
		}
	}()

	log.Debugf("registered handler for %s:%s", subName, topicName)
	return nil
}

// PublishMsg publishes a message to the desired topic.
func (p *PubsubMsgBroker) PublishMsg(ctx context.Context, tName msgbroker.TopicName, data []byte) error {
	topicName := p.topicPrefix + string(tName)
	topic, err := p.getTopic(topicName)
	if err != nil {
		return fmt.Errorf("get topic: %s", err)
	}
	pr := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = pr.Get(ctx)
	p.metrics.OnPublish(ctx, topicName, err)
	if err != nil {
		return fmt.Errorf("publishing to pubsub: %s", err)
	}

	return nil
}

func (p *PubsubMsgBroker) getTopic(name string) (*pubsub.Topic, error) {
	p.topicCacheLock.Lock()
	defer p.topicCacheLock.Unlock()
	topic, ok := p.topicCache[name]
	if ok {
		return topic, nil
	}

	topic = p.client.Topic(name)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	exist, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic exists: %s", err)
	}
	if !exist {
		log.Warnf("creating topic %s", name)

		topic, err = p.client.CreateTopic(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("creating topic %s: %s", name, err)
		}
	}
	p.topicCache[name] = topic

	return topic, nil
}

// Close closes the client and waits for receiving handlers to return.
func (p *PubsubMsgBroker) Close() error {
	p.clientCtxCancel()
	p.receivingHandlersWg.Wait()

	p.topicCacheLock.Lock()
	for _, t := range p.topicCache {
		t.Stop()
	}
	p.topicCacheLock.Unlock()

	if err := p.client.Close(); err != nil {
		return fmt.Errorf("closing pubsub client: %s", err)
	}
	return nil
}
