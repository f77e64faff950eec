// Package relay implements the bidirectional byte-copy primitive that
// couples two full-duplex streams, the Go shape of the
// tokio::select!-over-two-copies in original_source/src/util.rs
// (link_stream).
package relay

import (
	"io"
	"sync"
)

// Stream is what a relay side needs: a reader, a writer, and a way to
// force an in-flight Read/Write to unblock when the other side finishes
// first.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Link races an a->b copy against a b->a copy. It returns as soon as
// either direction completes — a clean EOF is reported as a nil error,
// matching spec.md §4.6. The losing direction is force-unblocked by
// closing both streams (io.Copy has no context-awareness of its own, so
// closing the underlying connection is what actually interrupts a
// pending Read), and Link waits for it to exit before returning so no
// goroutine is leaked. The result reflects only the first completion;
// whatever the second direction reports afterward — typically a "closed
// connection" artifact of our own Close call — is discarded.
func Link(a, b Stream) error {
	results := make(chan error, 2)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			a.Close()
			b.Close()
		})
	}

	copyDirection := func(dst io.Writer, src io.Reader) {
		_, err := io.Copy(dst, src)
		stop()
		results <- err
	}

	go copyDirection(b, a)
	go copyDirection(a, b)

	first := <-results
	<-results // drain the direction we just unblocked
	return first
}
