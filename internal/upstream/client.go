// Package upstream implements the proxy's outbound TCP client: dialing
// an origin, sending a request verbatim, and reading back its response
// with the same framing shortcuts the reference proxy uses — a
// Content-Length-aware read loop that treats a socket timeout as "the
// response is done", and a chunked-transfer passthrough that streams
// straight to the original client connection instead of buffering.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/httpmsg"
)

// bufferSize is the read chunk size used both for the main receive loop
// and for chunked passthrough, mirroring the reference client's fixed
// 1024-byte BUFFER_SIZE.
const bufferSize = 1024

// readTimeout bounds how long Receive waits for more bytes before
// concluding the response is complete. The reference client relies on a
// blocking-socket EAGAIN/EWOULDBLOCK from a configured SO_RCVTIMEO;
// net.Conn's deadline-based Read achieves the same "timeout means
// done" semantics in Go.
const readTimeout = 2 * time.Second

// Client is a single-use TCP connection to one origin.
type Client struct {
	conn net.Dialer
	c    net.Conn
}

// New returns an unconnected Client.
func New() *Client {
	return &Client{}
}

// Connect dials host:port over TCP.
func (cl *Client) Connect(ctx context.Context, host, port string) error {
	c, err := cl.conn.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return fmt.Errorf("upstream: connect to %s:%s: %w", host, port, err)
	}
	cl.c = c
	return nil
}

// Send writes data to the origin in full.
func (cl *Client) Send(data string) error {
	if _, err := io.Copy(cl.c, strings.NewReader(data)); err != nil {
		return fmt.Errorf("upstream: send: %w", err)
	}
	return nil
}

// Receive reads the origin's response. If the response declares a
// Content-Length, Receive reads until that many body bytes have arrived
// after the blank line ending the headers; if
// no Content-Length is present, the first read is taken as the whole
// response (matching the reference client's "content_length == 0 means
// stop" branch). A read timeout, or the origin closing the connection,
// both end the loop and return whatever has been read so far.
//
// If the response carries Transfer-Encoding (chunked), Receive instead
// streams the already-read bytes and everything that follows verbatim
// to clientConn and returns an empty string — the proxy forwards
// chunked bodies opaquely rather than attempting to parse or cache
// them, exactly as the reference client's handle_chunked_response does.
// With a nil clientConn a chunked response is not forwarded anywhere and
// Receive still returns an empty string.
func (cl *Client) Receive(ctx context.Context, clientConn net.Conn) (string, error) {
	buf := make([]byte, bufferSize)
	var response []byte
	contentLength := -1

	for {
		cl.c.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := cl.c.Read(buf)
		if n > 0 {
			response = append(response, buf[:n]...)

			if contentLength < 0 {
				headers := httpmsg.ParseHeaders(string(response))
				if v := headers["Content-Length"]; v != "" {
					if n := parseInt(v); n >= 0 {
						contentLength = n
					}
				}
			}
			if contentLength >= 0 {
				if i := strings.Index(string(response), "\r\n\r\n"); i != -1 && len(response)-(i+4) >= contentLength {
					break
				}
			}
			if contentLength < 0 {
				// No Content-Length seen in the headers read so far;
				// the reference client stops at the first read in this
				// case rather than waiting indefinitely.
				break
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			if err == io.EOF {
				break
			}
			return string(response), fmt.Errorf("upstream: receive: %w", err)
		}
		if n == 0 {
			break
		}
	}

	headers := httpmsg.ParseHeaders(string(response))
	if headers["Transfer-Encoding"] != "" {
		if clientConn == nil {
			return "", nil
		}
		if err := cl.streamChunked(response, clientConn); err != nil {
			return "", err
		}
		return "", nil
	}

	return string(response), nil
}

func (cl *Client) streamChunked(alreadyRead []byte, clientConn net.Conn) error {
	if _, err := clientConn.Write(alreadyRead); err != nil {
		return fmt.Errorf("upstream: forward chunked prefix to client: %w", err)
	}
	buf := make([]byte, bufferSize)
	for {
		cl.c.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := cl.c.Read(buf)
		if n > 0 {
			if _, werr := clientConn.Write(buf[:n]); werr != nil {
				return fmt.Errorf("upstream: forward chunked body to client: %w", werr)
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil
			}
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("upstream: chunked read: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

// Close closes the underlying connection.
func (cl *Client) Close() error {
	if cl.c == nil {
		return nil
	}
	return cl.c.Close()
}

func parseInt(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
