// Package memory is an in-process remote mirror implementing the same
// revision-token protocol as the GitHub adapter. Used in tests and for
// tokenless local runs.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/sewardrichard/cost2class/internal/core"
	"github.com/sewardrichard/cost2class/internal/remote"
)

type Store struct {
	mu      sync.Mutex
	state   core.BudgetState
	sha     string
	rev     int
	hasDoc  bool
	FailGet bool // force fetch failures
	FailPut bool // force write failures
}

var _ remote.DocumentStore = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Seed installs a document directly, bypassing the token check.
func (s *Store) Seed(state core.BudgetState) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	s.rev++
	s.sha = "rev-" + strconv.Itoa(s.rev)
	s.hasDoc = true
	return s.sha
}

func (s *Store) Fetch(_ context.Context) (remote.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGet {
		return remote.Document{}, remote.ErrUnavailable
	}
	if !s.hasDoc {
		return remote.Document{}, remote.ErrNoDocument
	}
	return remote.Document{State: s.state.Clone(), SHA: s.sha}, nil
}

func (s *Store) Put(_ context.Context, state core.BudgetState, sha string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPut {
		return "", remote.ErrUnavailable
	}
	if s.hasDoc && sha != s.sha {
		return "", remote.ErrConflict
	}
	s.state = state.Clone()
	s.rev++
	s.sha = "rev-" + strconv.Itoa(s.rev)
	s.hasDoc = true
	return s.sha, nil
}
