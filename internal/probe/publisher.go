package probe

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/model"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher announces finished runs on NATS. It implements model.Publisher.
type Publisher struct {
	nc           *nats.Conn
	subject      string
	securityTags []string
	logger       *zap.Logger
}

// NewPublisher connects to NATS. securityTags selects which tags produce a
// per-user security event.
func NewPublisher(cfg config.ProbeConfig, securityTags []string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("go2netprofile-publisher"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger = logger.Named("probe")
	logger.Info("connected to NATS server", zap.String("url", cfg.NATSURL))
	return &Publisher{nc: nc, subject: cfg.Subject, securityTags: securityTags, logger: logger}, nil
}

// PublishSnapshot publishes one run event followed by the security events.
func (p *Publisher) PublishSnapshot(s *model.Snapshot) error {
	run, events := BuildEvents(s, p.securityTags)

	data, err := EncodeRunEvent(run)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(p.subject+RunSuffix, data); err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}

	var errs []error
	for _, e := range events {
		data, err := EncodeSecurityEvent(e)
		if err == nil {
			err = p.nc.Publish(p.subject+SecuritySuffix, data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to publish security event for %q: %w", e.User, err))
		}
	}
	if err := p.nc.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush NATS connection: %w", err))
	}

	p.logger.Info("published run events", zap.String("run_id", run.RunID), zap.Int("security_events", len(events)))
	return errors.Join(errs...)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.logger.Info("NATS connection drained and closed")
	}
}
