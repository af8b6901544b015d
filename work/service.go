package work

import (
	"context"
	"errors"
	"unicode/utf8"
)

const (
	maxTitleLen    = 200
	maxCategoryLen = 100
)

var (
	// ErrBadTitle signals a title outside the 1-200 character bound.
	ErrBadTitle = errors.New("work: title must be 1-200 characters")
	// ErrBadCategory signals a category outside the 1-100 character bound.
	ErrBadCategory = errors.New("work: category must be 1-100 characters")
	// ErrTrivialFingerprint signals an empty fingerprint handle.
	ErrTrivialFingerprint = errors.New("work: trivial fingerprint")
)

// Pauser gates mutating entry points behind the platform pause flag.
type Pauser interface {
	Ensure(ctx context.Context) error
}

// Service handles work registry business logic.
type Service struct {
	repo   Repository
	pauser Pauser
}

func NewService(repo Repository, pauser Pauser) *Service {
	return &Service{repo: repo, pauser: pauser}
}

// Register adds a work to the registry.
func (s *Service) Register(ctx context.Context, params CreateParams) (Work, error) {
	if err := s.pauser.Ensure(ctx); err != nil {
		return Work{}, err
	}
	if n := utf8.RuneCountInString(params.Title); n < 1 || n > maxTitleLen {
		return Work{}, ErrBadTitle
	}
	if n := utf8.RuneCountInString(params.Category); n < 1 || n > maxCategoryLen {
		return Work{}, ErrBadCategory
	}
	if params.Fingerprint.Trivial() {
		return Work{}, ErrTrivialFingerprint
	}
	return s.repo.Create(ctx, params)
}

// GetByID returns one work record.
func (s *Service) GetByID(ctx context.Context, id int64) (Work, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByOwner returns all works registered by one account.
func (s *Service) ListByOwner(ctx context.Context, ownerAccount string) ([]Work, error) {
	return s.repo.ListByOwner(ctx, ownerAccount)
}
