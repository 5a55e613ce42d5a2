package riakpb

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// NewCircuitBreakerConfig returns a factory creating one circuit breaker per
// node. A breaker trips once at least 3 requests were seen in the interval
// and 60% of them failed.
//
// Refusals from the server (error frames) and sibling conflicts are
// answers, not node failures, so they do not count against the breaker.
// State changes are logged on logger when it is not nil.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration, logger *zap.Logger) func(string) *gobreaker.CircuitBreaker[*Response] {
	return func(serverAddr string) *gobreaker.CircuitBreaker[*Response] {
		settings := gobreaker.Settings{
			Name:        serverAddr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: isBreakerSuccess,
		}
		if logger != nil {
			settings.OnStateChange = func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("server", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		}
		return gobreaker.NewCircuitBreaker[*Response](settings)
	}
}

func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return true
	}
	var sibling *SiblingError
	if errors.As(err, &sibling) {
		return true
	}
	return !isNodeFailure(err)
}
