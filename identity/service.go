package identity

import (
	"context"

	"claimledger/fingerprint"
)

// Pauser gates mutating entry points behind the platform pause flag.
type Pauser interface {
	Ensure(ctx context.Context) error
}

// Service handles identity registration business logic.
type Service struct {
	repo   Repository
	pauser Pauser
}

func NewService(repo Repository, pauser Pauser) *Service {
	return &Service{repo: repo, pauser: pauser}
}

// Register binds an opaque identity handle to the account, once.
func (s *Service) Register(ctx context.Context, accountID string, handle fingerprint.Handle) (Record, error) {
	if err := s.pauser.Ensure(ctx); err != nil {
		return Record{}, err
	}
	if handle.Trivial() {
		return Record{}, fingerprint.ErrTrivialHandle
	}
	return s.repo.Create(ctx, accountID, handle)
}

// Get returns the identity record for an account.
func (s *Service) Get(ctx context.Context, accountID string) (Record, error) {
	return s.repo.Get(ctx, accountID)
}
