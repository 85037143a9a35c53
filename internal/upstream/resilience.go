package upstream

import (
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// ResiliencePolicy bundles an optional retry policy and circuit breaker
// around upstream exchanges. Both are nil (disabled) by default; the
// proxy only pays for failsafe-go's bookkeeping when a caller opts in.
type ResiliencePolicy struct {
	Retry   retrypolicy.RetryPolicy[string]
	Breaker circuitbreaker.CircuitBreaker[string]
}

// DefaultRetryPolicyBuilder returns a retry policy builder pre-configured
// for upstream TCP exchanges: retry any error (connect failure, receive
// error) up to 3 times with exponential backoff.
func DefaultRetryPolicyBuilder() retrypolicy.Builder[string] {
	return retrypolicy.NewBuilder[string]().
		HandleIf(func(_ string, err error) bool { return err != nil }).
		WithMaxRetries(3).
		WithBackoff(100*time.Millisecond, 2*time.Second)
}

// DefaultCircuitBreakerBuilder returns a circuit breaker builder
// pre-configured to open after 5 consecutive upstream failures and
// probe again after 30 seconds.
func DefaultCircuitBreakerBuilder() circuitbreaker.Builder[string] {
	return circuitbreaker.NewBuilder[string]().
		HandleIf(func(_ string, err error) bool { return err != nil }).
		WithFailureThreshold(5).
		WithSuccessThreshold(2).
		WithDelay(30 * time.Second)
}

// Execute runs fn, wrapping it with policy's retry and circuit breaker
// when configured. With no policy (the default), fn runs directly with
// no added latency or bookkeeping.
func Execute(policy *ResiliencePolicy, fn func() (string, error)) (string, error) {
	if policy == nil {
		return fn()
	}

	var policies []failsafe.Policy[string]
	if policy.Retry != nil {
		policies = append(policies, policy.Retry)
	}
	if policy.Breaker != nil {
		policies = append(policies, policy.Breaker)
	}
	if len(policies) == 0 {
		return fn()
	}
	return failsafe.With(policies...).Get(fn)
}
