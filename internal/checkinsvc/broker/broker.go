package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avvvet/gym-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Broker carries check-in events over NATS. It implements service.Notifier.
type Broker struct {
	Conn *nats.Conn

	// OnTicketStatus receives ticket status updates consumed from the bus.
	OnTicketStatus func(comm.TicketStatus)
}

func NewBroker(conn *nats.Conn, onTicketStatus func(comm.TicketStatus)) *Broker {
	return &Broker{
		Conn:           conn,
		OnTicketStatus: onTicketStatus,
	}
}

// NotifyMember publishes a visit notice on the member notification topic.
func (b *Broker) NotifyMember(ctx context.Context, kind string, notice comm.VisitNotice) error {
	return b.publish(ctx, comm.MemberNotifyTopic, kind, notice)
}

// PublishTicketStatus announces a ticket state change to every instance
// serving member displays.
func (b *Broker) PublishTicketStatus(ctx context.Context, status comm.TicketStatus) error {
	return b.publish(ctx, comm.TicketStatusTopic, comm.TicketStatusType, status)
}

func (b *Broker) publish(ctx context.Context, topic, kind string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(kind, payload)
	if err != nil {
		return err
	}

	if err := b.Conn.Publish(topic, data); err != nil {
		return fmt.Errorf("publish %s to %s: %w", kind, topic, err)
	}
	return nil
}

// Subscribe consumes ticket status updates for this instance's websocket hub.
func (b *Broker) Subscribe() (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(comm.TicketStatusTopic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) handleMessages(msg *nats.Msg) {
	message := &comm.WSMessage{}
	if err := json.Unmarshal(msg.Data, message); err != nil {
		log.Errorf("malformed message on %s: %v", msg.Subject, err)
		return
	}

	switch message.Type {
	case comm.TicketStatusType:
		var status comm.TicketStatus
		if err := json.Unmarshal(message.Data, &status); err != nil {
			log.Errorf("malformed ticket status: %v", err)
			return
		}
		if b.OnTicketStatus != nil {
			b.OnTicketStatus(status)
		}
	default:
		log.Warnf("unknown message type on %s: %s", msg.Subject, message.Type)
	}
}

func encode(kind string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}

	msg := &comm.WSMessage{
		Type: kind,
		Data: data,
	}

	out, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", kind, err)
	}
	return out, nil
}
