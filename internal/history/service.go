package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call history.
//
// It MUST be append-only. No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
}

var ErrInvalidRecord = errors.New("history: invalid record")

// Service appends terminal call outcomes.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, rec Record) error {
	if s.repo == nil {
		return errors.New("history: repository not configured")
	}
	if rec.UUID == "" {
		return ErrInvalidRecord
	}
	if rec.Outcome == "" {
		return ErrInvalidRecord
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, rec)
}

func (s *Service) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s.repo == nil {
		return nil, errors.New("history: repository not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.Recent(ctx, limit)
}
