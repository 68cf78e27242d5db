package auctioneer

import (
	"context"
	"sync"
	"time"

	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/msgbroker"
)

const (
	defaultSubscriberBuffer = 64
	publishTimeout          = 10 * time.Second
)

// feedItem is either a live event or a vendor notification.
type feedItem struct {
	event        *core.LiveEvent
	notification *core.Notification
}

// Feed fans committed changes out to subscribers and the message broker.
// Producers never block: a full input queue or a full subscriber drops the item.
type Feed struct {
	in        chan feedItem
	mb        msgbroker.MsgBroker
	onDropped func(reason string)

	lk     sync.Mutex
	subs   map[int]chan core.LiveEvent
	nextID int

	closeCh chan struct{}
	doneCh  chan struct{}
}

func newFeed(buffer int, mb msgbroker.MsgBroker, onDropped func(string)) *Feed {
	f := &Feed{
		in:        make(chan feedItem, buffer),
		mb:        mb,
		onDropped: onDropped,
		subs:      make(map[int]chan core.LiveEvent),
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *Feed) publish(e core.LiveEvent) {
	select {
	case f.in <- feedItem{event: &e}:
	default:
		f.onDropped("feed")
		log.Warnf("live event feed is full, dropping %s event", e.Type)
	}
}

func (f *Feed) notify(n core.Notification) {
	if f.mb == nil {
		return
	}
	select {
	case f.in <- feedItem{notification: &n}:
	default:
		f.onDropped("feed")
		log.Warnf("live event feed is full, dropping %s notification for %s", n.Kind, n.VendorID)
	}
}

func (f *Feed) subscribe(buffer int) (<-chan core.LiveEvent, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan core.LiveEvent, buffer)
	f.lk.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.lk.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.lk.Lock()
			defer f.lk.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
}

func (f *Feed) run() {
	defer close(f.doneCh)
	for {
		select {
		case <-f.closeCh:
			return
		case it := <-f.in:
			if it.event != nil {
				f.dispatch(*it.event)
			}
			f.forward(it)
		}
	}
}

func (f *Feed) dispatch(e core.LiveEvent) {
	f.lk.Lock()
	defer f.lk.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- e:
		default:
			f.onDropped("subscriber")
			log.Warnf("subscriber %d is slow, dropping %s event", id, e.Type)
		}
	}
}

func (f *Feed) forward(it feedItem) {
	if f.mb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	var err error
	if it.event != nil {
		err = msgbroker.PublishMsgLiveEvent(ctx, f.mb, *it.event)
	} else {
		err = msgbroker.PublishMsgNotification(ctx, f.mb, *it.notification)
	}
	if err != nil {
		log.Errorf("publishing to message broker: %v", err)
	}
}

func (f *Feed) close() {
	close(f.closeCh)
	<-f.doneCh
	f.lk.Lock()
	defer f.lk.Unlock()
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
