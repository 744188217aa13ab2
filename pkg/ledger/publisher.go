package ledger

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes ledger events onto a JetStream subject. Grounded
// on the teacher's cmd/benchmark_nats (PublishAsync against a JetStream
// context obtained from nats.Connect), simplified here to a synchronous
// Publish since the ledger is fire-and-forget at the call site already —
// there is no need for the teacher's ack-future bookkeeping.
type NATSPublisher struct {
	JS      nats.JetStreamContext
	Subject string
}

// NewNATSPublisher connects to url and ensures the stream backing subject
// exists, creating it if necessary.
func NewNATSPublisher(url, streamName, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	if _, err := js.StreamInfo(streamName); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{Name: streamName, Subjects: []string{subject}}); err != nil {
			return nil, err
		}
	}
	return &NATSPublisher{JS: js, Subject: subject}, nil
}

// Publish assigns the event an ID the first time it is seen (so every
// JetStream redelivery of the resulting message carries the same ID, the
// dedup key the worker keys off of) and publishes it as JSON.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.JS.Publish(p.Subject, data, nats.Context(ctx))
	return err
}
