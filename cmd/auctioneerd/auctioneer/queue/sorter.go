package queue

import (
	"container/heap"

	"github.com/textileio/lane-core/auctioneer"
)

// Cmp is the interface for a comparator.
type Cmp interface {
	// Cmp returns arbitrary number with the following semantics:
	// negative: i is considered to be less than j
	// zero: i is considered to be equal to j
	// positive: i is considered to be greater than j
	Cmp(i auctioneer.Bid, j auctioneer.Bid) int
}

// CmpFn is a helper which turns a function to a Cmp interface.
func CmpFn(f func(i auctioneer.Bid, j auctioneer.Bid) int) Cmp {
	return fnCmp{f: f}
}

type fnCmp struct {
	f func(auctioneer.Bid, auctioneer.Bid) int
}

func (c fnCmp) Cmp(i auctioneer.Bid, j auctioneer.Bid) int {
	return c.f(i, j)
}

type ordered struct {
	cmps []Cmp
}

// Ordered executes each comparator in order, i.e., if the first comparator
// judges the two bids to be equal, continues to the next comparator, and so
// on. It considers two bids to be equal if all comparators are exhausted.
func Ordered(cmps ...Cmp) Cmp {
	return ordered{cmps}
}

func (c ordered) Cmp(i auctioneer.Bid, j auctioneer.Bid) int {
	for _, c := range c.cmps {
		if result := c.Cmp(i, j); result != 0 {
			return result
		}
	}
	return 0
}

// LowerAmount prefers the cheaper bid.
func LowerAmount() Cmp {
	return CmpFn(func(i auctioneer.Bid, j auctioneer.Bid) int {
		return i.Amount.Cmp(j.Amount)
	})
}

// EarlierBid prefers the bid received first.
func EarlierBid() Cmp {
	return CmpFn(func(i auctioneer.Bid, j auctioneer.Bid) int {
		switch {
		case i.ReceivedAt.Before(j.ReceivedAt):
			return -1
		case i.ReceivedAt.After(j.ReceivedAt):
			return 1
		}
		return 0
	})
}

// BestFirst orders bids by amount and breaks ties by arrival.
func BestFirst() Cmp {
	return Ordered(LowerAmount(), EarlierBid())
}

// BidsSorter constructs a sorter for the given bids.
func BidsSorter(bids []auctioneer.Bid) Sorter {
	return Sorter{bids: bids}
}

// Sorter sorts bids based on the comparator given.
type Sorter struct {
	bids []auctioneer.Bid
}

// Iterate returns an iterator over a copy of the bids in comparator order.
func (s Sorter) Iterate(cmp Cmp) *Iterator {
	h := make([]auctioneer.Bid, len(s.bids))
	copy(h, s.bids)
	bh := &bidHeap{h: h, cmp: cmp}
	heap.Init(bh)
	return &Iterator{bh: bh}
}

// Iterator pops bids one at a time.
type Iterator struct {
	bh *bidHeap
}

// Next returns the next bid, or false if all bids are exhausted.
func (it *Iterator) Next() (auctioneer.Bid, bool) {
	if it.bh.Len() == 0 {
		return auctioneer.Bid{}, false
	}
	return heap.Pop(it.bh).(auctioneer.Bid), true
}

// MustNext is like Next but panics when the bids are exhausted.
func (it *Iterator) MustNext() auctioneer.Bid {
	b, ok := it.Next()
	if !ok {
		panic("no more bids")
	}
	return b
}

// bidHeap is used to efficiently rank bids.
type bidHeap struct {
	h   []auctioneer.Bid
	cmp Cmp
}

func (bh bidHeap) Len() int {
	return len(bh.h)
}

func (bh bidHeap) Less(i, j int) bool {
	return bh.cmp.Cmp(bh.h[i], bh.h[j]) < 0
}

func (bh bidHeap) Swap(i, j int) {
	bh.h[i], bh.h[j] = bh.h[j], bh.h[i]
}

func (bh *bidHeap) Push(x interface{}) {
	bh.h = append(bh.h, x.(auctioneer.Bid))
}

func (bh *bidHeap) Pop() (x interface{}) {
	x, bh.h = bh.h[len(bh.h)-1], bh.h[:len(bh.h)-1]
	return x
}
