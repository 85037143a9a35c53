package engine

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache"
)

// startOrigin runs a TCP server that replies with response to every
// connection it accepts, counting how many connections it served.
func startOrigin(t *testing.T, response string) (host, port string, hits *int64) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	hits = new(int64)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			atomic.AddInt64(hits, 1)
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				c.Read(buf)
				c.Write([]byte(response))
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", fmt.Sprintf("%d", addr.Port), hits
}

// roundTrip feeds request into a fresh engine connection and returns
// whatever the engine writes back before closing.
func roundTrip(t *testing.T, e *Engine, request string) string {
	t.Helper()
	clientSide, engineSide := net.Pipe()

	done := make(chan struct{})
	go func() {
		e.HandleConnection(context.Background(), engineSide)
		close(done)
	}()

	go func() { clientSide.Write([]byte(request)) }()

	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 8192)
	n, _ := clientSide.Read(buf)
	clientSide.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleConnection did not return")
	}
	return string(buf[:n])
}

func getRequest(host, port string) string {
	return fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s:%s\r\n\r\n", host, port)
}

// startOriginSeq is startOrigin generalized to serve a different response
// to each successive connection, so a test can tell apart a cached reply
// from a freshly fetched one. Connections past len(responses) repeat the
// last response.
func startOriginSeq(t *testing.T, responses ...string) (host, port string, hits *int64) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	hits = new(int64)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			idx := int(atomic.AddInt64(hits, 1)) - 1
			if idx >= len(responses) {
				idx = len(responses) - 1
			}
			go func(c net.Conn, resp string) {
				defer c.Close()
				buf := make([]byte, 4096)
				c.Read(buf)
				c.Write([]byte(resp))
			}(conn, responses[idx])
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", fmt.Sprintf("%d", addr.Port), hits
}

// closedOriginAddr returns a host:port that is guaranteed to refuse any
// connection, for exercising upstream-failure paths.
func closedOriginAddr(t *testing.T) (host, port string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()
	return "127.0.0.1", fmt.Sprintf("%d", addr.Port)
}

func TestHandleGETMissThenHit(t *testing.T) {
	response := "HTTP/1.1 200 OK\r\nCache-Control: max-age=60\r\nContent-Length: 2\r\n\r\nok"
	host, port, hits := startOrigin(t, response)

	e := New(cache.New())
	req := getRequest(host, port)

	first := roundTrip(t, e, req)
	if !strings.Contains(first, "200 OK") {
		t.Fatalf("first response = %q, want 200 OK", first)
	}
	if got := atomic.LoadInt64(hits); got != 1 {
		t.Fatalf("origin hits after miss = %d, want 1", got)
	}

	second := roundTrip(t, e, req)
	if !strings.Contains(second, "200 OK") {
		t.Fatalf("second response = %q, want 200 OK", second)
	}
	if got := atomic.LoadInt64(hits); got != 1 {
		t.Fatalf("origin hits after cached hit = %d, want still 1", got)
	}
}

func TestHandleGETNeverCachesNoStore(t *testing.T) {
	response := "HTTP/1.1 200 OK\r\nCache-Control: no-store\r\nContent-Length: 2\r\n\r\nok"
	host, port, hits := startOrigin(t, response)

	e := New(cache.New())
	req := getRequest(host, port)

	roundTrip(t, e, req)
	roundTrip(t, e, req)

	if got := atomic.LoadInt64(hits); got != 2 {
		t.Fatalf("origin hits = %d, want 2 (no-store must never be served from cache)", got)
	}
}

func TestHandlePOSTWithoutContentLengthIsRejected(t *testing.T) {
	e := New(cache.New())
	req := "POST /submit HTTP/1.1\r\nHost: example.com:80\r\n\r\nbody"

	got := roundTrip(t, e, req)
	if !strings.Contains(got, "411") {
		t.Fatalf("response = %q, want 411 Length Required", got)
	}
}

func TestHandlePOSTWithContentLengthIsForwarded(t *testing.T) {
	response := "HTTP/1.1 201 Created\r\nContent-Length: 0\r\n\r\n"
	host, port, hits := startOrigin(t, response)

	e := New(cache.New())
	req := fmt.Sprintf("POST /submit HTTP/1.1\r\nHost: %s:%s\r\nContent-Length: 4\r\n\r\nbody", host, port)

	got := roundTrip(t, e, req)
	if !strings.Contains(got, "201 Created") {
		t.Fatalf("response = %q, want 201 Created", got)
	}
	if atomic.LoadInt64(hits) != 1 {
		t.Fatalf("origin hits = %d, want 1", atomic.LoadInt64(hits))
	}
}

func TestHandleCONNECTEstablishesTunnel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		n, _ := conn.Read(buf)
		conn.Write(buf[:n])
	}()

	addr := ln.Addr().(*net.TCPAddr)
	e := New(cache.New())

	clientSide, engineSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		e.HandleConnection(context.Background(), engineSide)
		close(done)
	}()

	req := fmt.Sprintf("CONNECT %s:%d HTTP/1.1\r\nHost: %s:%d\r\n\r\n", addr.IP, addr.Port, addr.IP, addr.Port)
	go func() { clientSide.Write([]byte(req)) }()

	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := clientSide.Read(buf)
	if err != nil {
		t.Fatalf("read established response: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "200 Connection Established") {
		t.Fatalf("got %q, want Connection Established", buf[:n])
	}

	clientSide.Write([]byte("ping"))
	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err = clientSide.Read(buf)
	if err != nil {
		t.Fatalf("read tunnelled echo: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("tunnel echo = %q, want ping", buf[:n])
	}

	clientSide.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleConnection did not return after tunnel closed")
	}
}

func TestHandleGETRevalidateRefetchesAndServesNewResponse(t *testing.T) {
	first := "HTTP/1.1 200 OK\r\nCache-Control: must-revalidate\r\nContent-Length: 3\r\n\r\nold"
	second := "HTTP/1.1 200 OK\r\nCache-Control: must-revalidate\r\nContent-Length: 3\r\n\r\nnew"
	host, port, hits := startOriginSeq(t, first, second)

	e := New(cache.New())
	req := getRequest(host, port)

	got1 := roundTrip(t, e, req)
	if !strings.Contains(got1, "old") {
		t.Fatalf("first response = %q, want body %q", got1, "old")
	}

	got2 := roundTrip(t, e, req)
	if !strings.Contains(got2, "new") {
		t.Fatalf("second response = %q, want body %q (must-revalidate must re-fetch)", got2, "new")
	}
	if got := atomic.LoadInt64(hits); got != 2 {
		t.Fatalf("origin hits = %d, want 2 (must-revalidate must re-fetch on every hit)", got)
	}
}

func TestHandleGETRevalidateUpstreamErrorServesStale(t *testing.T) {
	cached := "HTTP/1.1 200 OK\r\nCache-Control: must-revalidate\r\nContent-Length: 5\r\n\r\nstale"

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write([]byte(cached))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	host, port := "127.0.0.1", fmt.Sprintf("%d", addr.Port)

	e := New(cache.New())
	req := getRequest(host, port)

	got1 := roundTrip(t, e, req)
	if !strings.Contains(got1, "stale") {
		t.Fatalf("first response = %q, want body %q", got1, "stale")
	}

	ln.Close() // origin is now unreachable for the revalidation attempt

	got2 := roundTrip(t, e, req)
	if !strings.Contains(got2, "stale") {
		t.Fatalf("second response = %q, want the stale cached body served when revalidation fails", got2)
	}
}

func TestHandleGETRefreshExpiredEntryRefetches(t *testing.T) {
	first := "HTTP/1.1 200 OK\r\nCache-Control: max-age=0\r\nContent-Length: 3\r\n\r\nold"
	second := "HTTP/1.1 200 OK\r\nCache-Control: max-age=60\r\nContent-Length: 3\r\n\r\nnew"
	host, port, hits := startOriginSeq(t, first, second)

	e := New(cache.New())
	req := getRequest(host, port)

	got1 := roundTrip(t, e, req)
	if !strings.Contains(got1, "old") {
		t.Fatalf("first response = %q, want body %q", got1, "old")
	}

	time.Sleep(10 * time.Millisecond) // let the max-age=0 entry pass its expiry

	got2 := roundTrip(t, e, req)
	if !strings.Contains(got2, "new") {
		t.Fatalf("second response = %q, want body %q (expired entry should be refreshed)", got2, "new")
	}
	if got := atomic.LoadInt64(hits); got != 2 {
		t.Fatalf("origin hits = %d, want 2 (expired entry must be refetched)", got)
	}
}

func TestHandleGETMissUpstreamErrorReturns503(t *testing.T) {
	host, port := closedOriginAddr(t)

	e := New(cache.New())
	req := getRequest(host, port)

	got := roundTrip(t, e, req)
	if !strings.Contains(got, "503") {
		t.Fatalf("response = %q, want 503 Service Unavailable", got)
	}
}
