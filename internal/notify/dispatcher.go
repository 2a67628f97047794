package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
	"go.uber.org/multierr"
)

// Dispatcher delivers fired conditions to the outside world (email, push,
// message bus). It is an external collaborator of the evaluator.
type Dispatcher interface {
	Dispatch(ctx context.Context, ownerKey string, transition Transition) error
}

// AlertEnvelope is the stable payload published for every transition.
type AlertEnvelope struct {
	Version    int        `json:"version"`
	EventID    string     `json:"eventId"`
	OccurredAt time.Time  `json:"occurredAt"`
	OwnerKey   string     `json:"ownerKey"`
	Data       Transition `json:"data"`
}

const alertEnvelopeVersion = 1

// LogDispatcher records transitions in the structured log only.
type LogDispatcher struct {
	logg *logger.Logger
}

func NewLogDispatcher(logg *logger.Logger) *LogDispatcher {
	return &LogDispatcher{logg: logg}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, ownerKey string, transition Transition) error {
	if d == nil || d.logg == nil {
		return nil
	}
	ctx = d.logg.WithFields(ctx, map[string]any{
		"owner_key":     ownerKey,
		"product_id":    transition.ProductID,
		"kind":          string(transition.Kind),
		"current_price": transition.CurrentPrice.String(),
	})
	d.logg.Info(ctx, "wishlist notification fired")
	return nil
}

type publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attributes map[string]string) (string, error)
}

// PubSubDispatcher publishes an AlertEnvelope per transition to a topic.
type PubSubDispatcher struct {
	pub   publisher
	topic string
	now   func() time.Time
}

func NewPubSubDispatcher(pub publisher, topic string) (*PubSubDispatcher, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &PubSubDispatcher{pub: pub, topic: topic, now: time.Now}, nil
}

func (d *PubSubDispatcher) Dispatch(ctx context.Context, ownerKey string, transition Transition) error {
	envelope := AlertEnvelope{
		Version:    alertEnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: d.now().UTC(),
		OwnerKey:   ownerKey,
		Data:       transition,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal alert envelope: %w", err)
	}
	attrs := map[string]string{
		"event_id":   envelope.EventID,
		"kind":       string(transition.Kind),
		"owner_key":  ownerKey,
		"product_id": fmt.Sprintf("%d", transition.ProductID),
	}
	if _, err := d.pub.Publish(ctx, d.topic, payload, attrs); err != nil {
		return fmt.Errorf("publish %s alert: %w", transition.Kind, err)
	}
	return nil
}

// MultiDispatcher fans a transition out to every dispatcher and combines failures.
type MultiDispatcher []Dispatcher

func (m MultiDispatcher) Dispatch(ctx context.Context, ownerKey string, transition Transition) error {
	var errs error
	for _, d := range m {
		if d == nil {
			continue
		}
		errs = multierr.Append(errs, d.Dispatch(ctx, ownerKey, transition))
	}
	return errs
}
