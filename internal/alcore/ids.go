package alcore

import "sync/atomic"

// idAllocator issues process-wide, monotonically increasing, non-negative
// 32-bit ids. A single allocator is shared across every device created by
// one Manager, mirroring the original backend's process-wide file-id counter.
type idAllocator struct {
	n atomic.Int32
}

func (a *idAllocator) allocate() int32 {
	return a.n.Add(1) - 1
}

// seqCounter hands out a strictly increasing logical timestamp used to order
// "listener added" and "sound started" events for visibility comparisons. It
// intentionally has nothing to do with wall-clock time.
type seqCounter struct {
	n atomic.Int64
}

func (c *seqCounter) next() int64 {
	return c.n.Add(1) - 1
}
