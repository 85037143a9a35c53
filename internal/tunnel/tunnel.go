// Package tunnel implements the bidirectional byte relay a CONNECT
// request sets up between the client and the origin. The reference
// proxy multiplexes both file descriptors in one thread with select();
// the idiomatic Go rendering instead runs one goroutine per direction,
// each doing a buffered copy, which is the standard shape for a Go TCP
// pipe once goroutines (rather than an event loop) are available.
package tunnel

import (
	"io"
	"net"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/logging"
)

// bufferSize matches the reference proxy's 1024-byte read size.
const bufferSize = 1024

// Forward relays bytes between client and upstream in both directions
// until either side closes or errors, then closes both connections and
// logs exactly once that the tunnel has ended.
func Forward(id string, client, upstream net.Conn, logger *logging.Logger) {
	done := make(chan struct{}, 2)

	pipe := func(dst, src net.Conn) {
		buf := make([]byte, bufferSize)
		io.CopyBuffer(dst, src, buf)
		done <- struct{}{}
	}

	go pipe(upstream, client)
	go pipe(client, upstream)

	<-done
	client.Close()
	upstream.Close()
	<-done

	logger.TunnelClosed(id)
}
