package msgbroker

import "time"

// DefaultRegisterHandlerConfig is the default configuration of registered handlers.
var DefaultRegisterHandlerConfig = RegisterHandlerConfig{
	AckDeadline: time.Second * 10,
}

// RegisterHandlerConfig configures a topic subscription.
type RegisterHandlerConfig struct {
	AckDeadline time.Duration
	// GroupID overrides the consumer group/subscription name of the broker.
	GroupID string
}

// Option modifies a RegisterHandlerConfig.
type Option func(*RegisterHandlerConfig) error

// WithACKDeadline configures the deadline for the message broker subscription.
func WithACKDeadline(deadline time.Duration) Option {
	return func(c *RegisterHandlerConfig) error {
		c.AckDeadline = deadline
		return nil
	}
}

// WithGroupID subscribes with a specific consumer group.
func WithGroupID(id string) Option {
	return func(c *RegisterHandlerConfig) error {
		c.GroupID = id
		return nil
	}
}

// ApplyRegisterHandlerOptions applies opts over the default configuration.
func ApplyRegisterHandlerOptions(opts ...Option) (RegisterHandlerConfig, error) {
	config := DefaultRegisterHandlerConfig
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return RegisterHandlerConfig{}, err
		}
	}

	return config, nil
}
