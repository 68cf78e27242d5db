package audit

import (
	"context"
	"testing"
	"time"

	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	golog "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/textileio/lane-core/logging"
)

func init() {
	if err := logging.SetLogLevels(map[string]golog.LogLevel{
		"auctioneer/audit": golog.LevelDebug,
	}); err != nil {
		panic(err)
	}
}

func newLog(t *testing.T) *Log {
	return New(dssync.MutexWrap(ds.NewMapDatastore()))
}

func TestAppendAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLog(t)

	e, err := l.Append(ctx, Entry{
		EntityType:  "lane",
		EntityID:    "l1",
		EventType:   "bid_placed",
		TriggeredBy: "v1",
		Payload:     map[string]string{"amount": "99000"},
		CreatedAt:   time.Unix(1000, 0),
	})
	require.NoError(t, err)
	require.NotEmpty(t, e.ID)

	got, err := l.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "bid_placed", got.EventType)
	assert.Equal(t, "99000", got.Payload["amount"])
	assert.True(t, got.CreatedAt.Equal(e.CreatedAt))

	_, err = l.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = l.Append(ctx, Entry{EventType: "x"})
	require.Error(t, err)
}

func TestListOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLog(t)

	base := time.Unix(1000, 0)
	var ids []string
	for i := 0; i < 5; i++ {
		entity := "l1"
		if i%2 == 1 {
			entity = "l2"
		}
		// Same timestamp for two entries: the monotonic entropy keeps them ordered.
		e, err := l.Append(ctx, Entry{
			EntityType: "lane",
			EntityID:   entity,
			EventType:  "tick",
			CreatedAt:  base.Add(time.Duration(i/2) * time.Second),
		})
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	all, err := l.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, e := range all {
		assert.Equal(t, ids[i], e.ID)
	}

	desc, err := l.List(ctx, Query{Order: OrderDescending, Limit: 2})
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, ids[4], desc[0].ID)
	assert.Equal(t, ids[3], desc[1].ID)

	page, err := l.List(ctx, Query{Offset: ids[1], Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	l1, err := l.List(ctx, Query{EntityType: "lane", EntityID: "l1"})
	require.NoError(t, err)
	require.Len(t, l1, 3)
	for _, e := range l1 {
		assert.Equal(t, "l1", e.EntityID)
	}
	assert.Equal(t, ids[0], l1[0].ID)
	assert.Equal(t, ids[4], l1[2].ID)
}
