package rtshare

import (
	"io"

	"github.com/jpillora/sizestr"
)

// minBufSize is the internal copy buffer size, large enough to
// amortise small reads.
const minBufSize = 32 * 1024

// Splice copies bytes read from s1 into s2 and, concurrently, bytes
// read from s2 into s1, returning when either direction terminates
// normally or fails. Both streams are closed for read and write
// before Splice returns, which unblocks and fails whichever direction
// is still copying. The error returned is that of whichever direction
// failed first; a clean EOF on either side yields a nil error even if
// bytes were still in flight on the other (zero bytes transferred is
// a valid success).
//
// Callers that track ConnStats should bracket Splice with Open/Close
// themselves rather than have Splice know about stats.
func Splice(logger Logger, s1, s2 io.ReadWriteCloser) error {
	type result struct {
		n   int64
		err error
	}
	done := make(chan result, 2)

	go func() {
		n, err := io.CopyBuffer(s2, s1, make([]byte, minBufSize))
		done <- result{n, err}
	}()
	go func() {
		n, err := io.CopyBuffer(s1, s2, make([]byte, minBufSize))
		done <- result{n, err}
	}()

	first := <-done
	s1.Close()
	s2.Close()
	second := <-done // drain the loser so its goroutine doesn't leak

	if logger != nil {
		logger.DLogf("splice done: sent %s received %s", sizestr.ToString(first.n), sizestr.ToString(second.n))
	}

	// io.Copy never returns io.EOF; it folds a clean end-of-stream
	// into a nil error. The first result arrives before either stream
	// is closed above, so it is that direction's own status; the
	// loser's error, caused by our own Close(), is never returned.
	return first.err
}
