package explorer

import "time"

type Option func(*explorerOptions)

type explorerOptions struct {
	withTracker  bool
	pollInterval time.Duration
}

func defaultOptions() *explorerOptions {
	return &explorerOptions{
		withTracker:  false,
		pollInterval: 10 * time.Second,
	}
}

// WithTracker enables the WebSocket block tracker. When disabled, only REST
// methods are available.
// Default: disabled
func WithTracker(enabled bool) Option {
	return func(opts *explorerOptions) {
		opts.withTracker = enabled
	}
}

// WithPollInterval sets the polling interval used when the WebSocket
// connection fails.
// Default: 10 seconds
func WithPollInterval(interval time.Duration) Option {
	return func(opts *explorerOptions) {
		opts.pollInterval = interval
	}
}
