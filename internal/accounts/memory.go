package accounts

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps accounts in process memory. The list is lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	accounts []Account
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) UpsertIfAbsent(_ context.Context, acct Account) (bool, error) {
	if err := validate(acct); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(acct.Email) >= 0 {
		return false, nil
	}
	s.accounts = append(s.accounts, copyAccount(acct))
	return true, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Account, len(s.accounts))
	for i, acct := range s.accounts {
		out[i] = copyAccount(acct)
	}
	return out, nil
}

func (s *MemoryStore) Remove(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(email)
	if i < 0 {
		return false, nil
	}
	s.accounts = slices.Delete(s.accounts, i, i+1)
	return true, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) indexOf(email string) int {
	return slices.IndexFunc(s.accounts, func(a Account) bool { return a.Email == email })
}

func copyAccount(acct Account) Account {
	return Account{
		Email:    acct.Email,
		Token:    cloneToken(acct.Token),
		Messages: slices.Clone(acct.Messages),
	}
}

var _ Store = (*MemoryStore)(nil)
