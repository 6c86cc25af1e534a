package transport

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// LimitConfig bounds the outbound send rate of one handle.
type LimitConfig struct {
	// Rate is the sustained messages per second. Zero disables limiting.
	Rate float64 `yaml:"send_rate"`

	// Burst is the number of messages allowed at once.
	Burst int `yaml:"send_burst"`
}

// DefaultLimitConfig returns 5 msg/s with a burst of 10.
func DefaultLimitConfig() LimitConfig {
	return LimitConfig{Rate: 5, Burst: 10}
}

type limitedHandle struct {
	Handle
	limiter *rate.Limiter
}

// Limit wraps h so that Send waits for the limiter. A non-positive rate
// returns h unchanged.
func Limit(h Handle, cfg LimitConfig) Handle {
	if cfg.Rate <= 0 {
		return h
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &limitedHandle{Handle: h, limiter: rate.NewLimiter(rate.Limit(cfg.Rate), burst)}
}

func (l *limitedHandle) Send(ctx context.Context, address string, content Content) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send rate limit: %w", err)
	}
	return l.Handle.Send(ctx, address, content)
}
