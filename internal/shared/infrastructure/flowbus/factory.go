package flowbus

import (
	"fmt"
	"log/slog"
)

// Kind selects the transport behind a Bus.
type Kind string

const (
	KindInProcess Kind = "inprocess"
	KindRabbitMQ  Kind = "rabbitmq"
	KindNATS      Kind = "nats"
)

// Config selects and configures a transport.
type Config struct {
	Kind        Kind
	RabbitMQURL string
	NATSURL     string
	Logger      *slog.Logger
}

// New creates the Bus selected by cfg.Kind. An empty kind is in-process.
func New(cfg Config) (Bus, error) {
	switch cfg.Kind {
	case "", KindInProcess:
		return NewInProcessBus(cfg.Logger), nil
	case KindRabbitMQ:
		if cfg.RabbitMQURL == "" {
			return nil, fmt.Errorf("RabbitMQ URL is required for the %s channel", cfg.Kind)
		}
		return NewRabbitMQBus(RabbitMQConfig{URL: cfg.RabbitMQURL, Logger: cfg.Logger})
	case KindNATS:
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("NATS URL is required for the %s channel", cfg.Kind)
		}
		return NewNATSBus(NATSConfig{URL: cfg.NATSURL, Logger: cfg.Logger})
	default:
		return nil, fmt.Errorf("unsupported channel kind: %s", cfg.Kind)
	}
}
