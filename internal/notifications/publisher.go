// Package notifications bridges webhook-side activation events onto the
// marketplace notification topic.
package notifications

import (
	"context"
	"encoding/json"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
	"github.com/lukaskovac/motormarkt-backend/pkg/logger"
)

type messagePublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// CompanyActivation is the notification envelope consumed by the email and
// in-app notification workers.
type CompanyActivation struct {
	CompanyID      string    `json:"company_id"`
	SubscriptionID string    `json:"subscription_id"`
	ActivatedAt    time.Time `json:"activated_at"`
}

// Publisher emits company activation notifications over Pub/Sub.
type Publisher struct {
	publisher messagePublisher
	logg      *logger.Logger
	now       func() time.Time
}

func NewPublisher(publisher messagePublisher, logg *logger.Logger) (*Publisher, error) {
	if publisher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pubsub publisher required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Publisher{publisher: publisher, logg: logg, now: time.Now}, nil
}

// CompanyActivated publishes the activation event and waits for the server
// ack so callers can decide whether to log the loss.
func (p *Publisher) CompanyActivated(ctx context.Context, companyID, subscriptionID string) error {
	msg, err := activationMessage(CompanyActivation{
		CompanyID:      companyID,
		SubscriptionID: subscriptionID,
		ActivatedAt:    p.now().UTC(),
	})
	if err != nil {
		return err
	}

	result := p.publisher.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish company activation")
	}

	p.logg.Info(p.logg.WithField(ctx, "company_id", companyID), "company activation published")
	return nil
}

func activationMessage(payload CompanyActivation) (*pubsub.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode activation payload")
	}
	return &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": "company.subscription.activated",
			"company_id": payload.CompanyID,
		},
	}, nil
}
