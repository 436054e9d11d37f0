package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/actiontracker/tracker-server-go/internal/config"
	"github.com/actiontracker/tracker-server-go/internal/database"
	apperrors "github.com/actiontracker/tracker-server-go/internal/errors"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/repository"
)

// ReviewRequest is a reviewer's decision on a session under review.
type ReviewRequest struct {
	Approved    *bool  `json:"approved" validate:"required"`
	Observation string `json:"observation" validate:"max=500"`
}

type ReviewService struct {
	db        database.TxRunner
	sessions  repository.SessionRepository
	binnacles repository.BinnacleRepository
}

func NewReviewService(db database.TxRunner, sessions repository.SessionRepository, binnacles repository.BinnacleRepository) *ReviewService {
	return &ReviewService{db: db, sessions: sessions, binnacles: binnacles}
}

// Review resolves an EN OBSERVACION session. Approval promotes the raw
// times to the valid ones; rejection leaves them as they were.
func (s *ReviewService) Review(ctx context.Context, externalID string, req ReviewRequest) (*model.Session, error) {
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	observation := strings.TrimSpace(plainText(req.Observation))
	if utf8.RuneCountInString(observation) > config.MaxObservationLength {
		return nil, apperrors.InvalidInput("observation", fmt.Sprintf("must be at most %d characters", config.MaxObservationLength))
	}

	var reviewed *model.Session
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.sessions.WithTx(tx).FindByExternalIDForUpdate(ctx, externalID)
		if err != nil {
			return fmt.Errorf("find session: %w", err)
		}
		if current == nil {
			return apperrors.NotFound("Session")
		}
		if current.Status != model.SessionStatusUnderReview {
			return apperrors.ValidationError(fmt.Sprintf("Session %s is not under review (status %s)", externalID, current.Status))
		}

		next := *current
		next.Observation = observation
		if *req.Approved {
			next.Status = model.SessionStatusApproved
			next.ValidStartDate = current.StartDate
			next.ValidEndDate = current.EndDate
			next.ValidDuration = current.Duration
			if next.ValidDuration == nil && current.StartDate != nil && current.EndDate != nil {
				vd := model.SecondsOf(current.EndDate.Sub(*current.StartDate))
				next.ValidDuration = &vd
			}
		} else {
			next.Status = model.SessionStatusReproved
		}

		saved, err := s.sessions.WithTx(tx).Update(ctx, &next)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		if _, err := s.binnacles.WithTx(tx).Append(ctx, model.SnapshotOf(saved, model.BinnacleReviewed)); err != nil {
			return fmt.Errorf("append binnacle: %w", err)
		}
		reviewed = saved
		return nil
	})
	if err != nil {
		return nil, classifyTxError(err)
	}

	log.Info().
		Str("externalId", externalID).
		Str("status", string(reviewed.Status)).
		Msg("session reviewed")

	return reviewed, nil
}
