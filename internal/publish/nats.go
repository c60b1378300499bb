// Package publish emits joined trip records to NATS for downstream consumers.
package publish

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"busmon.openmbta.org/internal/models"
)

const subjectPrefix = "busmon"

// NATSPublisher publishes each trip record as JSON on
// busmon.<route>.<direction>.<trip>, tokens sanitized for the NATS subject
// grammar.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("busmon"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

// Close drains the connection so in-flight publishes land before shutdown.
// Drain closes the connection once the buffers flush; the hard Close is the
// fallback when draining cannot start.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("nats drain failed, closing immediately",
			slog.String("error", err.Error()))
		p.nc.Close()
	}
}

// PublishSnapshot publishes every record of a completed poll. Individual
// publish failures are logged and do not stop the rest of the snapshot.
func (p *NATSPublisher) PublishSnapshot(records map[models.TripKey]models.TripRecord) {
	for key, rec := range records {
		if err := p.publish(key, rec); err != nil {
			p.logger.Warn("nats publish failed",
				slog.String("subject", subjectFor(key)),
				slog.String("error", err.Error()))
		}
	}
}

func (p *NATSPublisher) publish(key models.TripKey, rec models.TripRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.nc.Publish(subjectFor(key), b)
}

func subjectFor(key models.TripKey) string {
	return strings.Join([]string{
		subjectPrefix,
		subjectToken(key.RouteID),
		subjectToken(key.DirectionID),
		subjectToken(key.TripTag),
	}, ".")
}

// subjectToken rewrites a feed tag into a legal NATS subject token. Tokens
// cannot contain spaces, '.', '>', or '*'.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
