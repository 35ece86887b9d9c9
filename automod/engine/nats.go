package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const DefaultNatsSubject = "groupguard.actions"

// Publishes action notices as JSON to a NATS subject, for downstream consumers (dashboards, audit logs, other
// bots).
type NatsNotifier struct {
	Conn    *nats.Conn
	Subject string
}

var _ Notifier = (*NatsNotifier)(nil)

func NewNatsNotifier(natsURL, subject string) (*NatsNotifier, error) {
	if subject == "" {
		subject = DefaultNatsSubject
	}
	nc, err := nats.Connect(natsURL,
		nats.Name("groupguard"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NatsNotifier{
		Conn:    nc,
		Subject: subject,
	}, nil
}

func (n *NatsNotifier) SendAction(ctx context.Context, an *ActionNotice) error {
	data, err := json.Marshal(an)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(n.Subject)
	msg.Data = data
	msg.Header.Set("Groupguard-Action", string(an.Action))
	if err := n.Conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func (n *NatsNotifier) Close() error {
	return n.Conn.Drain()
}
