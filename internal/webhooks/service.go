package webhooks

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/lukaskovac/motormarkt-backend/internal/webhooks/classifier"
	"github.com/lukaskovac/motormarkt-backend/internal/webhooks/ledger"
	"github.com/lukaskovac/motormarkt-backend/pkg/enums"
	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
	"github.com/lukaskovac/motormarkt-backend/pkg/logger"
	"github.com/lukaskovac/motormarkt-backend/pkg/metrics"
)

// Processor applies the business effect of one classified event.
type Processor interface {
	Process(ctx context.Context, event *stripe.Event) error
}

type ledgerService interface {
	Begin(ctx context.Context, eventID, eventType string, domain enums.WebhookDomain, rule string) (*ledger.Claim, error)
	Complete(ctx context.Context, claim *ledger.Claim, outcome ledger.Outcome) error
}

// Ack is the body returned to the payment provider on a handled event.
type Ack struct {
	EventID          string `json:"event_id"`
	Domain           string `json:"domain"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Duplicate        bool   `json:"duplicate"`
}

type ServiceParams struct {
	Ledger            ledgerService
	Listing           Processor
	Subscription      Processor
	Logger            *logger.Logger
	Metrics           *metrics.WebhookMetrics
	ProcessingTimeout time.Duration
}

// Service routes validated provider events through classification, the
// idempotency ledger and the matching domain processor.
type Service struct {
	ledger            ledgerService
	processors        map[enums.WebhookDomain]Processor
	logg              *logger.Logger
	metrics           *metrics.WebhookMetrics
	processingTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.Listing == nil || params.Subscription == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "domain processors required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.ProcessingTimeout <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "processing timeout must be positive")
	}
	return &Service{
		ledger: params.Ledger,
		processors: map[enums.WebhookDomain]Processor{
			enums.WebhookDomainListing:      params.Listing,
			enums.WebhookDomainSubscription: params.Subscription,
		},
		logg:              params.Logger,
		metrics:           params.Metrics,
		processingTimeout: params.ProcessingTimeout,
	}, nil
}

// HandleEvent processes one signature-verified event end to end. Duplicate
// deliveries return a duplicate Ack instead of an error so the provider
// stops redelivering.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (*Ack, error) {
	decision, err := classifier.Classify(event)
	if err != nil {
		s.metrics.IncProcessed("unknown", "rejected")
		return nil, err
	}

	ctx = s.logg.WithEventID(ctx, event.ID)
	ctx = s.logg.WithDomain(ctx, decision.Domain.String())

	if decision.Weak() {
		s.metrics.IncWeakRule(decision.Rule)
		weakCtx := s.logg.WithField(ctx, "matched_rule", decision.Rule)
		s.logg.Warn(weakCtx, "event routed by weak classification rule")
	}

	claim, err := s.ledger.Begin(ctx, event.ID, string(event.Type), decision.Domain, decision.Rule)
	if err != nil {
		var already *ledger.AlreadyProcessedError
		if errors.As(err, &already) {
			statusCtx := s.logg.WithField(ctx, "prior_status", already.Status.String())
			s.logg.Info(statusCtx, "duplicate webhook delivery acknowledged")
			s.metrics.IncProcessed(decision.Domain.String(), "duplicate")
			return &Ack{
				EventID:   event.ID,
				Domain:    decision.Domain.String(),
				Duplicate: true,
			}, nil
		}
		return nil, err
	}

	processor := s.processors[decision.Domain]

	procCtx, cancel := context.WithTimeout(ctx, s.processingTimeout)
	defer cancel()

	processErr := processor.Process(procCtx, event)
	elapsed := time.Since(claim.StartedAt)

	if processErr != nil {
		if errors.Is(processErr, context.DeadlineExceeded) {
			processErr = pkgerrors.Wrap(pkgerrors.CodeDependency, processErr, "processing deadline exceeded")
		}

		// The ledger write must survive the request context being canceled.
		completeCtx := context.WithoutCancel(ctx)
		outcome := ledger.Outcome{
			Status:      enums.ProcessingStatusFailed,
			ErrorDetail: processErr.Error(),
		}
		if err := s.ledger.Complete(completeCtx, claim, outcome); err != nil {
			s.logg.Error(completeCtx, "record failed outcome", err)
		}

		s.metrics.IncProcessed(decision.Domain.String(), "failed")
		s.metrics.ObserveDuration(decision.Domain.String(), elapsed)
		s.logg.Error(ctx, "webhook event processing failed", processErr)
		return nil, processErr
	}

	if err := s.ledger.Complete(ctx, claim, ledger.Outcome{Status: enums.ProcessingStatusSucceeded}); err != nil {
		// The business effect is applied but the terminal row is missing.
		// Surface the store failure; the processors absorb any replay.
		s.logg.Error(ctx, "record succeeded outcome", err)
		return nil, err
	}

	s.metrics.IncProcessed(decision.Domain.String(), "succeeded")
	s.metrics.ObserveDuration(decision.Domain.String(), elapsed)
	s.logg.Info(ctx, "webhook event processed")

	return &Ack{
		EventID:          event.ID,
		Domain:           decision.Domain.String(),
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}
