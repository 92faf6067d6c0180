package events

import "context"

// Event types
const (
	EventOfferStatusChanged = "offer_status_changed"
	EventOfferOutOfSync     = "offer_out_of_sync"
)

// StreamOffers is the pubsub channel offer lifecycle events go through.
const StreamOffers = "events:offer"

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
