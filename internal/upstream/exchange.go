package upstream

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/metrics"
)

// Exchanger performs connect+send+receive round trips against one
// authority, optionally wrapped in a ResiliencePolicy and observed
// through a metrics.Collector. A circuit breaker carries its own
// per-instance state, so for that state to mean anything ("this
// authority is failing") callers must reuse the same Exchanger across
// requests to the same authority rather than constructing one per
// request — see ExchangerPool.
type Exchanger struct {
	policy  *ResiliencePolicy
	metrics metrics.Collector
}

// NewExchanger builds an Exchanger. policy may be nil to disable
// resilience; m may be nil to disable metrics.
func NewExchanger(policy *ResiliencePolicy, m metrics.Collector) *Exchanger {
	if m == nil {
		m = metrics.Default
	}
	return &Exchanger{policy: policy, metrics: m}
}

// Exchange connects to host:port, sends request, and returns the
// response. If the response uses chunked transfer encoding, it is
// streamed directly to clientConn and Exchange returns "" with a nil
// error, signaling the caller that the response has already been
// forwarded.
func (e *Exchanger) Exchange(ctx context.Context, host, port, request string, clientConn net.Conn) (string, error) {
	start := time.Now()
	response, err := Execute(e.policy, func() (string, error) {
		c := New()
		if derr := c.Connect(ctx, host, port); derr != nil {
			return "", derr
		}
		defer c.Close()
		if serr := c.Send(request); serr != nil {
			return "", serr
		}
		return c.Receive(ctx, clientConn)
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if ctxErr := ctx.Err(); ctxErr != nil {
			outcome = "timeout"
		}
	}
	e.metrics.RecordUpstreamExchange(outcome, time.Since(start))
	return response, err
}

// ExchangerPool lazily builds one Exchanger per authority (host:port),
// so a circuit breaker tripped by one origin's failures never affects
// exchanges against a different origin. newPolicy is called once per
// newly seen authority to build that authority's own ResiliencePolicy;
// it may be nil to disable resilience pool-wide, and may return nil
// per call for the same reason. Safe for concurrent use.
type ExchangerPool struct {
	mu         sync.Mutex
	exchangers map[string]*Exchanger
	newPolicy  func() *ResiliencePolicy
	metrics    metrics.Collector
}

// NewExchangerPool builds an empty pool. m may be nil to disable
// metrics.
func NewExchangerPool(newPolicy func() *ResiliencePolicy, m metrics.Collector) *ExchangerPool {
	if m == nil {
		m = metrics.Default
	}
	return &ExchangerPool{
		exchangers: make(map[string]*Exchanger),
		newPolicy:  newPolicy,
		metrics:    m,
	}
}

// Get returns the Exchanger for host:port, building and caching one on
// first use.
func (p *ExchangerPool) Get(host, port string) *Exchanger {
	key := host + ":" + port

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.exchangers[key]; ok {
		return e
	}

	var policy *ResiliencePolicy
	if p.newPolicy != nil {
		policy = p.newPolicy()
	}
	e := NewExchanger(policy, p.metrics)
	p.exchangers[key] = e
	return e
}
