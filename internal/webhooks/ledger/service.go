package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/lukaskovac/motormarkt-backend/pkg/db/models"
	"github.com/lukaskovac/motormarkt-backend/pkg/enums"
	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
	"github.com/lukaskovac/motormarkt-backend/pkg/logger"
)

// AlreadyProcessedError signals that the event does not need (or is not
// allowed) another processing pass. Status is the ledger state that blocked
// the claim.
type AlreadyProcessedError struct {
	EventID string
	Status  enums.ProcessingStatus
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("event %s already processed (status %s)", e.EventID, e.Status)
}

// Claim is a successful processing claim on one event.
type Claim struct {
	EventID   string
	Domain    enums.WebhookDomain
	Attempt   int
	StartedAt time.Time
}

// Outcome is the terminal result the dispatcher reports back.
type Outcome struct {
	Status      enums.ProcessingStatus
	ErrorDetail string
}

type repository interface {
	Insert(ctx context.Context, record *models.WebhookEvent) (bool, error)
	FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	Reclaim(ctx context.Context, eventID string, maxAttempts int, staleBefore, startedAt time.Time) (bool, error)
	Finish(ctx context.Context, eventID string, updates map[string]any) (bool, error)
}

type ServiceParams struct {
	Repo        repository
	Logger      *logger.Logger
	MaxAttempts int
	// StaleAfter is how long a processing claim may sit without a terminal
	// write before a redelivery may take it over. Must exceed the
	// per-event processing timeout.
	StaleAfter time.Duration
}

// Service owns the idempotency and audit ledger.
type Service struct {
	repo        repository
	logg        *logger.Logger
	maxAttempts int
	staleAfter  time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.MaxAttempts < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "max attempts must be positive")
	}
	if params.StaleAfter <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stale-claim window must be positive")
	}
	return &Service{
		repo:        params.Repo,
		logg:        params.Logger,
		maxAttempts: params.MaxAttempts,
		staleAfter:  params.StaleAfter,
		now:         time.Now,
	}, nil
}

// Begin claims the event for processing. A fresh event inserts directly at
// processing, so the insert itself is the claim. Redeliveries of failed
// events and of stalled claims re-claim up to the attempt ceiling;
// succeeded and freshly in-flight events surface AlreadyProcessedError.
func (s *Service) Begin(ctx context.Context, eventID, eventType string, domain enums.WebhookDomain, rule string) (*Claim, error) {
	startedAt := s.now().UTC()
	record := &models.WebhookEvent{
		EventID:     eventID,
		EventType:   eventType,
		Domain:      domain,
		MatchedRule: rule,
		Status:      enums.ProcessingStatusProcessing,
		Attempts:    1,
		StartedAt:   startedAt,
	}

	inserted, err := s.repo.Insert(ctx, record)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger record")
	}
	if inserted {
		return &Claim{EventID: eventID, Domain: domain, Attempt: 1, StartedAt: startedAt}, nil
	}

	prior, err := s.repo.FindByEventID(ctx, eventID)
	if err != nil {
		// The insert lost the unique-index race, so the row must exist; a
		// miss here means the store is misbehaving.
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ledger row vanished after conflict")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger record")
	}

	staleBefore := startedAt.Add(-s.staleAfter)

	switch prior.Status {
	case enums.ProcessingStatusFailed:
		if prior.Attempts >= s.maxAttempts {
			return nil, &AlreadyProcessedError{EventID: eventID, Status: prior.Status}
		}
		return s.reclaim(ctx, eventID, domain, prior, staleBefore, startedAt, "re-claimed failed webhook event")
	case enums.ProcessingStatusProcessing:
		// A processing row normally means another delivery is in flight.
		// A claim older than the stale window means that delivery died
		// before its terminal write; take the event over so it is not
		// acked away and lost.
		if prior.Attempts >= s.maxAttempts || !prior.StartedAt.Before(staleBefore) {
			return nil, &AlreadyProcessedError{EventID: eventID, Status: prior.Status}
		}
		return s.reclaim(ctx, eventID, domain, prior, staleBefore, startedAt, "re-claimed stalled webhook event")
	default:
		return nil, &AlreadyProcessedError{EventID: eventID, Status: prior.Status}
	}
}

func (s *Service) reclaim(ctx context.Context, eventID string, domain enums.WebhookDomain, prior *models.WebhookEvent, staleBefore, startedAt time.Time, msg string) (*Claim, error) {
	reclaimed, err := s.repo.Reclaim(ctx, eventID, s.maxAttempts, staleBefore, startedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reclaim ledger record")
	}
	if !reclaimed {
		// Another delivery won the re-claim between our read and update.
		return nil, &AlreadyProcessedError{EventID: eventID, Status: enums.ProcessingStatusProcessing}
	}
	attemptCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id": eventID,
		"attempt":  prior.Attempts + 1,
	})
	s.logg.Info(attemptCtx, msg)
	return &Claim{EventID: eventID, Domain: domain, Attempt: prior.Attempts + 1, StartedAt: startedAt}, nil
}

// Complete writes the terminal row for a claim.
func (s *Service) Complete(ctx context.Context, claim *Claim, outcome Outcome) error {
	if claim == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "claim required")
	}
	if !outcome.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeInternal, "outcome status must be terminal")
	}

	completedAt := s.now().UTC()
	elapsed := completedAt.Sub(claim.StartedAt).Milliseconds()

	updates := map[string]any{
		"status":             outcome.Status,
		"completed_at":       completedAt,
		"processing_time_ms": elapsed,
	}
	if outcome.ErrorDetail != "" {
		updates["error_detail"] = outcome.ErrorDetail
	} else {
		updates["error_detail"] = nil
	}

	written, err := s.repo.Finish(ctx, claim.EventID, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finish ledger record")
	}
	if !written {
		// The row already went terminal under another delivery; that
		// outcome stands and ours is dropped.
		skipCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id": claim.EventID,
			"status":   outcome.Status.String(),
		})
		s.logg.Warn(skipCtx, "ledger row no longer claimed, terminal write skipped")
	}
	return nil
}

// Status returns the current ledger state for an event id.
func (s *Service) Status(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	record, err := s.repo.FindByEventID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeLookup, "event not recorded").
				WithDetails(map[string]any{"event_id": eventID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger record")
	}
	return record, nil
}
