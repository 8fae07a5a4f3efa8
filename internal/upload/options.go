package upload

import "log/slog"

// managerOptions holds configuration for a Manager.
type managerOptions struct {
	logger *slog.Logger
	policy *Policy
}

// Option is a functional option for configuring the Manager.
type Option func(*managerOptions)

// WithLogger configures the manager with a logger.
// If logger is nil, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *managerOptions) {
		opts.logger = orDiscard(logger)
	}
}

// WithPolicy replaces the default accept policy.
func WithPolicy(policy *Policy) Option {
	return func(opts *managerOptions) {
		if policy != nil {
			opts.policy = policy
		}
	}
}

func defaultOptions() *managerOptions {
	return &managerOptions{
		logger: orDiscard(nil),
		policy: DefaultPolicy(),
	}
}

func applyOptions(opts *managerOptions, options []Option) {
	for _, option := range options {
		option(opts)
	}
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
