package auth

import (
	"log/slog"
	"net/http"

	"github.com/sipico/magic-links/internal/metrics"
)

// Chain runs strategies in order.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewChain creates a Chain over strategies.
func NewChain(logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// Strategies returns the strategies in evaluation order.
func (c *Chain) Strategies() []Strategy {
	return append([]Strategy(nil), c.strategies...)
}

// Authenticate tries each applicable strategy and returns the first success
// together with the strategy name. Errors are logged and the next strategy is
// tried. Without a success the last error outcome is returned, or a decline.
func (c *Chain) Authenticate(r *http.Request) (Outcome, string) {
	var lastErr *Outcome
	var lastErrName string

	for _, s := range c.strategies {
		if !s.Applicable(r) {
			continue
		}

		out := s.Authenticate(r)
		metrics.RecordAuthDecision(s.Name(), out.Result.String(), out.Reason)

		switch out.Result {
		case ResultSuccess:
			return out, s.Name()
		case ResultError:
			c.logger.Error("authentication strategy failed",
				"strategy", s.Name(),
				"error", out.Err)
			o := out
			lastErr, lastErrName = &o, s.Name()
		default:
			c.logger.Debug("authentication declined",
				"strategy", s.Name(),
				"reason", out.Reason)
		}
	}

	if lastErr != nil {
		return *lastErr, lastErrName
	}
	return Decline(ReasonNoCookie), ""
}
