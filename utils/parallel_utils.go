package utils

import "fmt"

// MailBox carries rounds of messages between NP ranks running as goroutines. In a round
// every rank posts and then delivers; once all ranks have delivered, each collects what
// was sent to it. Collecting releases the senders' outboxes, so ranks must meet again
// before the next round posts.
type MailBox[T any] struct {
	NP     int
	inbox  []chan *DynBuffer[T]
	outbox [][]*DynBuffer[T] // [from][to]
	recv   []*DynBuffer[T]
}

func NewMailBox[T any](NP int) *MailBox[T] {
	mb := &MailBox[T]{
		NP:     NP,
		inbox:  make([]chan *DynBuffer[T], NP),
		outbox: make([][]*DynBuffer[T], NP),
		recv:   make([]*DynBuffer[T], NP),
	}
	for n := 0; n < NP; n++ {
		mb.inbox[n] = make(chan *DynBuffer[T], NP) // one box from every rank at most
		mb.outbox[n] = make([]*DynBuffer[T], NP)
		mb.recv[n] = NewDynBuffer[T](0)
	}
	return mb
}

func (mb *MailBox[T]) check(rank int) {
	if rank < 0 || rank >= mb.NP {
		panic(fmt.Sprintf("rank %d outside mailbox of %d ranks", rank, mb.NP))
	}
}

func (mb *MailBox[T]) Post(from, to int, msg T) {
	mb.check(from)
	mb.check(to)
	box := mb.outbox[from][to]
	if box == nil {
		box = NewDynBuffer[T](1)
		mb.outbox[from][to] = box
	}
	box.Add(msg)
}

// Deliver hands the non-empty outboxes of from to their receivers.
func (mb *MailBox[T]) Deliver(from int) {
	for to, box := range mb.outbox[from] {
		if box != nil && box.Len() > 0 {
			mb.inbox[to] <- box
		}
	}
}

// Collect drains the inbox of me. The result is only valid until the next Collect by me.
func (mb *MailBox[T]) Collect(me int) []T {
	r := mb.recv[me]
	r.Reset()
	for {
		select {
		case box := <-mb.inbox[me]:
			r.AddSlice(box.Cells())
			box.Reset()
		default:
			return r.Cells()
		}
	}
}

// PartitionMap splits [0, MaxIndex) into ParallelDegree contiguous buckets whose sizes
// differ by one at most, the larger buckets first.
type PartitionMap struct {
	MaxIndex       int
	ParallelDegree int
	size, rem      int
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	if ParallelDegree < 1 {
		ParallelDegree = 1
	}
	return &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		size:           maxIndex / ParallelDegree,
		rem:            maxIndex % ParallelDegree,
	}
}

// GetBucket returns the bucket holding k with its range, bucketNum is -1 outside [0, MaxIndex).
func (pm *PartitionMap) GetBucket(k int) (bucketNum, kMin, kMax int) {
	if k < 0 || k >= pm.MaxIndex {
		return -1, 0, 0
	}
	if big := pm.rem * (pm.size + 1); k < big {
		bucketNum = k / (pm.size + 1)
	} else {
		bucketNum = pm.rem + (k-big)/pm.size
	}
	kMin, kMax = pm.GetBucketRange(bucketNum)
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin = bucketNum*pm.size + min(bucketNum, pm.rem)
	kMax = kMin + pm.size
	if bucketNum < pm.rem {
		kMax++
	}
	return
}

// GetBucketDimension is the size of a bucket, or MaxIndex for bucket -1.
func (pm *PartitionMap) GetBucketDimension(bucketNum int) int {
	if bucketNum == -1 {
		return pm.MaxIndex
	}
	kMin, kMax := pm.GetBucketRange(bucketNum)
	return kMax - kMin
}
