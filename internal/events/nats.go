package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tidwall/gjson"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
)

// NATSSink publishes events on <prefix>.<type> and listens for eviction
// requests on <prefix>.control.evict.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
	logger *Logger.Logger
	subs   []*nats.Subscription
}

func ConnectNATS(url, prefix string, logger *Logger.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("xarvis-gateway"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("nats disconnected: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Infof("connected to NATS at %s", url)
	return &NATSSink{conn: conn, prefix: prefix, logger: logger}, nil
}

// Subject returns the subject events of typ are published on.
func (n *NATSSink) Subject(typ Type) string {
	return n.prefix + "." + string(typ)
}

// Publish implements Sink.
func (n *NATSSink) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.Subject(ev.Type), data)
}

// OnEvictRequest calls evict with the session_id of every message on the
// control subject.
func (n *NATSSink) OnEvictRequest(evict func(sessionID string)) error {
	subject := n.prefix + ".control.evict"
	sub, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		sid := gjson.GetBytes(msg.Data, "session_id").String()
		if sid == "" {
			n.logger.Warnf("ignoring evict request without session_id on %s", subject)
			return
		}
		evict(sid)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	n.subs = append(n.subs, sub)
	return nil
}

func (n *NATSSink) Close() {
	for _, s := range n.subs {
		_ = s.Unsubscribe()
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
