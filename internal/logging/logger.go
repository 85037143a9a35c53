// Package logging provides the proxy's append-only, id-tagged log sink.
// It wraps log/slog the way the reference httpcache package does
// (SetLogger/GetLogger guarded by sync.Once) but renders the exact line
// shapes the reference proxy emits, since those lines are an external
// interface other tooling greps against.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	logger     *Logger
	loggerOnce sync.Once
)

// Logger writes one line per call to an append-only file, guarded by a
// mutex so concurrent workers never interleave partial lines. It also
// exposes a *slog.Logger view for packages that prefer structured
// logging (metrics, resilience) over the line-oriented request log.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	slog *slog.Logger
}

// Open creates (or opens for appending) the log file at path, creating
// its parent directory if necessary. Failure to open the file is
// treated as fatal by the caller (cmd/proxy), mirroring the reference
// Logger constructor throwing on open failure.
func Open(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	l := &Logger{file: f}
	l.slog = slog.New(slog.NewTextHandler(f, nil))
	return l, nil
}

// SetDefault installs l as the package-level default logger returned by
// Default, exactly once.
func SetDefault(l *Logger) {
	loggerOnce.Do(func() {
		logger = l
	})
}

// Default returns the installed default logger, or a logger writing to
// stderr if none was installed — this keeps library code usable in
// tests without a configured sink.
func Default() *Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = &Logger{file: os.Stderr, slog: slog.New(slog.NewTextHandler(os.Stderr, nil))}
		}
	})
	return logger
}

// Slog returns the structured *slog.Logger view, for packages (metrics,
// resilience) that log key/value pairs rather than the fixed request
// log line shapes below.
func (l *Logger) Slog() *slog.Logger { return l.slog }

func (l *Logger) log(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.file, line)
}

// currentTime renders the reference format ("%a %b %d %H:%M:%S %Y", UTC).
func currentTime() string {
	return time.Now().UTC().Format("Mon Jan 02 15:04:05 2006")
}

// Request logs the inbound request line tagged with id, the client's
// address, and the time it arrived.
func (l *Logger) Request(id, requestLine, clientAddr string) {
	l.log(fmt.Sprintf("%s: %q from %s @ %s", id, requestLine, clientAddr, currentTime()))
}

// NotInCache logs a cache miss for id.
func (l *Logger) NotInCache(id string) {
	l.log(id + ": not in cache")
}

// CacheStatus logs a cache hit for id along with a human-readable
// description of the entry's freshness state.
func (l *Logger) CacheStatus(id, detail string) {
	l.log(fmt.Sprintf("%s: in cache, %s", id, detail))
}

// ForwardRequest logs that id's request line is being forwarded to host.
func (l *Logger) ForwardRequest(id, requestLine, host string) {
	l.log(fmt.Sprintf("%s: Requesting %q from %s", id, requestLine, host))
}

// NoStore logs that id's response is not cacheable due to no-store.
func (l *Logger) NoStore(id string) {
	l.log(id + `: not cacheable, "no-store" founded.`)
}

// ReceivedResponse logs the upstream response line id received from host.
func (l *Logger) ReceivedResponse(id, host, responseLine string) {
	l.log(fmt.Sprintf("%s: Received %q from %s", id, responseLine, host))
}

// CacheResult logs the freshness outcome of caching a new entry for id.
func (l *Logger) CacheResult(id, detail string) {
	l.log(fmt.Sprintf("%s: cached, %s", id, detail))
}

// Responding logs the response line id is sending to its client.
func (l *Logger) Responding(id, responseLine string) {
	l.log(fmt.Sprintf("%s: Responding %q", id, responseLine))
}

// TunnelClosed logs that id's CONNECT tunnel has ended.
func (l *Logger) TunnelClosed(id string) {
	l.log(id + ": Tunnel closed")
}

// Note logs an informational message with no associated request id.
func (l *Logger) Note(message string) {
	l.log("[INFO] " + message)
}

// NoteWithID logs an informational message tagged with id.
func (l *Logger) NoteWithID(id, message string) {
	l.log(id + ": [INFO] " + message)
}

// Warning logs a warning-level message.
func (l *Logger) Warning(message string) {
	l.log("[WARN] " + message)
}

// Error logs an error-level message.
func (l *Logger) Error(message string) {
	l.log("[ERROR] " + message)
}

// Close closes the underlying file, if it owns one.
func (l *Logger) Close() error {
	if l.file == os.Stderr || l.file == os.Stdout {
		return nil
	}
	return l.file.Close()
}
