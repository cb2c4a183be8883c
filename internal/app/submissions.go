package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rankready/internal/domain/model"
	"github.com/okian/rankready/internal/domain/workflow"
	"github.com/okian/rankready/pkg/logger"
)

// Submit opens a review submission for a stored report. The scores are
// snapshotted at submission time.
func (s *Service) Submit(ctx context.Context, institutionID string, year int, comment string) (model.Submission, error) {
	rec, err := s.store.LoadIndicators(ctx, institutionID, year)
	if err != nil {
		return model.Submission{}, err
	}
	status, err := workflow.Transition(model.StatusDraft, workflow.ActionSubmit)
	if err != nil {
		return model.Submission{}, err
	}

	now := time.Now().UTC()
	sub := model.Submission{
		ID:            uuid.NewString(),
		InstitutionID: institutionID,
		Year:          year,
		Status:        status,
		Scores:        s.score("submission", rec.Values),
		Comment:       comment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.PutSubmission(ctx, sub); err != nil {
		return model.Submission{}, fmt.Errorf("store submission: %w", err)
	}

	s.logger.Info(ctx, "submission created",
		logger.String("submission_id", sub.ID),
		logger.String("institution_id", institutionID),
		logger.Int("year", year),
	)
	return sub, nil
}

// Review applies a workflow action to a submission. Resubmitting a rejected
// submission takes a fresh score snapshot.
func (s *Service) Review(ctx context.Context, submissionID, action, comment string) (model.Submission, error) {
	a, err := workflow.ParseAction(action)
	if err != nil {
		return model.Submission{}, err
	}
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return model.Submission{}, err
	}
	next, err := workflow.Transition(sub.Status, a)
	if err != nil {
		return model.Submission{}, err
	}

	if a == workflow.ActionSubmit {
		rec, err := s.store.LoadIndicators(ctx, sub.InstitutionID, sub.Year)
		if err != nil {
			return model.Submission{}, err
		}
		sub.Scores = s.score("submission", rec.Values)
	}
	sub.Status = next
	sub.Comment = comment
	sub.UpdatedAt = time.Now().UTC()
	if err := s.store.PutSubmission(ctx, sub); err != nil {
		return model.Submission{}, fmt.Errorf("store submission: %w", err)
	}

	s.logger.Info(ctx, "submission reviewed",
		logger.String("submission_id", sub.ID),
		logger.String("action", string(a)),
		logger.String("status", string(next)),
	)
	return sub, nil
}

// Submission returns a submission by id.
func (s *Service) Submission(ctx context.Context, submissionID string) (model.Submission, error) {
	return s.store.GetSubmission(ctx, submissionID)
}
