// Package review implements the reviewer-facing lifecycle of pending
// scholarship records: listing the queue and the approve/reject
// transitions. Approval validation happens here; the atomic two-row
// write happens in the store.
package review

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scholarpath/scout-cli/internal/model"
	"github.com/scholarpath/scout-cli/internal/store"
)

// ErrValidation indicates a record is missing required fields and
// cannot be approved. The record is left untouched.
var ErrValidation = eris.New("review: record not approvable")

// Service exposes reviewer operations over the pending queue.
type Service struct {
	store store.Store
}

// NewService creates a review Service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Queue lists pending records for the reviewer, needs_review first.
func (s *Service) Queue(ctx context.Context, filter store.PendingFilter) ([]model.PendingScholarship, error) {
	return s.store.ListPending(ctx, filter)
}

// Get returns a single pending record.
func (s *Service) Get(ctx context.Context, id string) (*model.PendingScholarship, error) {
	return s.store.GetPending(ctx, id)
}

// Approve promotes a pending record into the catalog. The record must
// have extracted data with a name, a deadline, and an application URL
// (falling back to the source URL); otherwise the operation fails with
// ErrValidation and nothing changes. On success the catalog insert and
// the pending-row stamp commit atomically.
func (s *Service) Approve(ctx context.Context, pendingID, reviewerID string, notes *string) (int64, error) {
	p, err := s.store.GetPending(ctx, pendingID)
	if err != nil {
		return 0, err
	}

	if err := validateApprovable(p); err != nil {
		return 0, err
	}

	sch := model.FromExtracted(p.Extracted, p.SourceURL)
	id, err := s.store.Approve(ctx, pendingID, sch, reviewerID, notes)
	if err != nil {
		return 0, err
	}

	zap.L().Info("scholarship approved",
		zap.String("pending_id", pendingID),
		zap.Int64("scholarship_id", id),
		zap.String("reviewed_by", reviewerID),
	)
	return id, nil
}

// Reject marks a pending record rejected. No catalog row is created.
func (s *Service) Reject(ctx context.Context, pendingID, reviewerID string, notes *string) error {
	if err := s.store.Reject(ctx, pendingID, reviewerID, notes); err != nil {
		return err
	}
	zap.L().Info("scholarship rejected",
		zap.String("pending_id", pendingID),
		zap.String("reviewed_by", reviewerID),
	)
	return nil
}

func validateApprovable(p *model.PendingScholarship) error {
	if p.Extracted == nil {
		return eris.Wrapf(ErrValidation, "pending %s has no extracted data", p.ID)
	}
	if strings.TrimSpace(p.Extracted.Name) == "" {
		return eris.Wrapf(ErrValidation, "pending %s missing name", p.ID)
	}
	if p.Extracted.Deadline == nil || strings.TrimSpace(*p.Extracted.Deadline) == "" {
		return eris.Wrapf(ErrValidation, "pending %s missing deadline", p.ID)
	}
	if strings.TrimSpace(p.Extracted.ApplicationURL) == "" && strings.TrimSpace(p.SourceURL) == "" {
		return eris.Wrapf(ErrValidation, "pending %s missing application url", p.ID)
	}
	return nil
}
