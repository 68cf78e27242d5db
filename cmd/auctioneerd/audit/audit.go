// Package audit is the append-only audit log of the auctioneer.
package audit

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/gob"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	golog "github.com/ipfs/go-log/v2"
	"github.com/oklog/ulid/v2"
)

const (
	// defaultListLimit is the default list page size.
	defaultListLimit = 50
	// maxListLimit is the max list page size.
	maxListLimit = 1000
)

var (
	log = golog.Logger("auctioneer/audit")

	// ErrNotFound indicates the requested entry was not found.
	ErrNotFound = errors.New("audit entry not found")

	// dsPrefix is the prefix for entries.
	// Structure: /audit/<entry_id> -> Entry
	dsPrefix = ds.NewKey("/audit")

	// dsEntityPrefix indexes entries by the entity they are about.
	// Structure: /entity/<entity_type>/<entity_id>/<entry_id> -> nil
	dsEntityPrefix = ds.NewKey("/entity")
)

// Entry is an immutable audit record.
type Entry struct {
	ID          string            `json:"id"`
	EntityType  string            `json:"entity_type"`
	EntityID    string            `json:"entity_id"`
	EventType   string            `json:"event_type"`
	TriggeredBy string            `json:"triggered_by"`
	Payload     map[string]string `json:"payload,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Query is used to query the log.
type Query struct {
	EntityType string
	EntityID   string
	Offset     string
	Order      Order
	Limit      int
}

func (q Query) setDefaults() Query {
	if q.Limit == -1 {
		q.Limit = maxListLimit
	} else if q.Limit <= 0 {
		q.Limit = defaultListLimit
	} else if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	return q
}

// Order specifies the order of list results.
// Default is ascending by time created.
type Order int

const (
	// OrderAscending lists oldest entries first.
	OrderAscending Order = iota
	// OrderDescending lists newest entries first.
	OrderDescending
)

// Log stores entries in a datastore, keyed by ULIDs derived from the entry time.
type Log struct {
	store ds.Batching

	entropy *ulid.MonotonicEntropy
	lk      sync.Mutex
}

// New returns a Log backed by store.
func New(store ds.Batching) *Log {
	return &Log{store: store}
}

// NewID returns new monotonically increasing entry ids.
func (l *Log) NewID(t time.Time) (string, error) {
	l.lk.Lock() // entropy is not safe for concurrent use

	if l.entropy == nil {
		l.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	id, err := ulid.New(ulid.Timestamp(t.UTC()), l.entropy)
	if errors.Is(err, ulid.ErrMonotonicOverflow) {
		l.entropy = nil
		l.lk.Unlock()
		return l.NewID(t)
	} else if err != nil {
		l.lk.Unlock()
		return "", fmt.Errorf("generating id: %v", err)
	}
	l.lk.Unlock()
	return strings.ToLower(id.String()), nil
}

// Append stores e and returns it with its id set.
// Entity type and id are required.
func (l *Log) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.EntityType == "" || e.EntityID == "" {
		return Entry{}, fmt.Errorf("entity type and id are required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	id, err := l.NewID(e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	e.ID = id

	val, err := encode(e)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding entry: %v", err)
	}
	b, err := l.store.Batch(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("creating batch: %v", err)
	}
	if err := b.Put(ctx, dsPrefix.ChildString(e.ID), val); err != nil {
		return Entry{}, fmt.Errorf("putting entry: %v", err)
	}
	if err := b.Put(ctx, entityKey(e.EntityType, e.EntityID).ChildString(e.ID), nil); err != nil {
		return Entry{}, fmt.Errorf("putting entity index: %v", err)
	}
	if err := b.Commit(ctx); err != nil {
		return Entry{}, fmt.Errorf("committing batch: %v", err)
	}
	log.Debugf("%s %s/%s by %s", e.EventType, e.EntityType, e.EntityID, e.TriggeredBy)
	return e, nil
}

// Get returns an entry by id.
func (l *Log) Get(ctx context.Context, id string) (Entry, error) {
	val, err := l.store.Get(ctx, dsPrefix.ChildString(id))
	if errors.Is(err, ds.ErrNotFound) {
		return Entry{}, ErrNotFound
	} else if err != nil {
		return Entry{}, fmt.Errorf("getting key: %v", err)
	}
	e, err := decode(val)
	if err != nil {
		return Entry{}, fmt.Errorf("decoding value: %v", err)
	}
	return e, nil
}

// List lists entries by applying a Query. Filtering by entity needs both type and id.
func (l *Log) List(ctx context.Context, query Query) ([]Entry, error) {
	query = query.setDefaults()

	var order dsq.Order = dsq.OrderByKey{}
	if query.Order == OrderDescending {
		order = dsq.OrderByKeyDescending{}
	}
	byEntity := query.EntityType != "" && query.EntityID != ""
	prefix := dsPrefix
	if byEntity {
		prefix = entityKey(query.EntityType, query.EntityID)
	}

	results, err := l.store.Query(ctx, dsq.Query{
		Prefix:   prefix.String(),
		Orders:   []dsq.Order{order},
		KeysOnly: byEntity,
	})
	if err != nil {
		return nil, fmt.Errorf("querying entries: %v", err)
	}
	defer func() {
		if err := results.Close(); err != nil {
			log.Errorf("closing results: %v", err)
		}
	}()

	var list []Entry
	for res := range results.Next() {
		if res.Error != nil {
			return nil, fmt.Errorf("getting next result: %v", res.Error)
		}
		id := path.Base(res.Key)
		if query.Offset != "" && !pastOffset(id, query.Offset, query.Order) {
			continue
		}
		var e Entry
		if byEntity {
			e, err = l.Get(ctx, id)
		} else {
			e, err = decode(res.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("loading entry %s: %v", id, err)
		}
		list = append(list, e)
		if len(list) == query.Limit {
			break
		}
	}
	return list, nil
}

func pastOffset(id, offset string, order Order) bool {
	if order == OrderDescending {
		return id < offset
	}
	return id > offset
}

func entityKey(entityType, entityID string) ds.Key {
	return dsEntityPrefix.ChildString(entityType).ChildString(entityID)
}

func encode(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(v []byte) (e Entry, err error) {
	dec := gob.NewDecoder(bytes.NewReader(v))
	if err := dec.Decode(&e); err != nil {
		return e, err
	}
	return e, nil
}
