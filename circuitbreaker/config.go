package circuitbreaker

import "time"

type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int64
	// SuccessThreshold is the number of consecutive half-open successes that
	// closes it again. It also caps concurrent trial calls.
	SuccessThreshold int64
	// OpenTimeout is how long the circuit stays open before a trial call.
	OpenTimeout time.Duration
}

type Option func(*Config)

// WithFailureThreshold sets the opening threshold. Non-positive values are ignored.
func WithFailureThreshold(n int64) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the closing threshold. Non-positive values are ignored.
func WithSuccessThreshold(n int64) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithOpenTimeout sets the open period. Non-positive values are ignored.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.OpenTimeout = d
		}
	}
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      5 * time.Second,
	}
}
