package probe

import (
	"Go2NetProfile/internal/config"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Handlers receive decoded events. Either may be nil.
type Handlers struct {
	OnRun      func(RunEvent)
	OnSecurity func(SecurityEvent)
}

// Subscriber is responsible for subscribing to the run event subjects.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	logger  *zap.Logger
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.ProbeConfig, logger *zap.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("go2netprofile-subscriber"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger = logger.Named("probe")
	logger.Info("connected to NATS server", zap.String("url", cfg.NATSURL))
	return &Subscriber{nc: nc, subject: cfg.Subject, logger: logger}, nil
}

// Start subscribes to every event subject below the base subject.
func (s *Subscriber) Start(h Handlers) error {
	sub, err := s.nc.Subscribe(s.subject+".>", func(msg *nats.Msg) {
		s.dispatch(msg.Subject, msg.Data, h)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	s.sub = sub
	s.logger.Info("subscribed, waiting for events", zap.String("subject", s.subject+".>"))
	return nil
}

func (s *Subscriber) dispatch(subject string, data []byte, h Handlers) {
	switch {
	case strings.HasSuffix(subject, RunSuffix):
		e, err := DecodeRunEvent(data)
		if err != nil {
			s.logger.Warn("dropping run event", zap.Error(err))
			return
		}
		if h.OnRun != nil {
			h.OnRun(e)
		}
	case strings.HasSuffix(subject, SecuritySuffix):
		e, err := DecodeSecurityEvent(data)
		if err != nil {
			s.logger.Warn("dropping security event", zap.Error(err))
			return
		}
		if h.OnSecurity != nil {
			h.OnSecurity(e)
		}
	default:
		s.logger.Debug("ignoring event", zap.String("subject", subject))
	}
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS connection closed")
	}
}
