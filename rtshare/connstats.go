package rtshare

import (
	"fmt"
	"sync/atomic"
)

// ConnStats tracks both the currently-open and lifetime-total count of
// tunnels for a driver. It has no locking needs beyond atomics: there
// is no shared mutable state between concurrent tunnels, only these
// counters are touched from more than one goroutine.
type ConnStats struct {
	total int32
	open  int32
}

// New adds one to the lifetime total count and returns the new total.
func (c *ConnStats) New() int32 {
	return atomic.AddInt32(&c.total, 1)
}

// Open adds one to the currently-open count.
func (c *ConnStats) Open() {
	atomic.AddInt32(&c.open, 1)
}

// Close subtracts one from the currently-open count.
func (c *ConnStats) Close() {
	atomic.AddInt32(&c.open, -1)
}

func (c *ConnStats) String() string {
	return fmt.Sprintf("[%d/%d]", atomic.LoadInt32(&c.open), atomic.LoadInt32(&c.total))
}
