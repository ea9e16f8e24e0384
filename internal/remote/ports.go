// Package remote defines the ports for the remote document mirror.
package remote

import (
	"context"
	"errors"

	"github.com/sewardrichard/cost2class/internal/core"
)

var (
	// ErrUnavailable covers network errors, malformed responses and any
	// non-success status on fetch. Callers treat it as "no remote data".
	ErrUnavailable = errors.New("remote store unavailable")

	// ErrConflict is returned when a write is rejected for a stale
	// revision token. There is no retry or merge.
	ErrConflict = errors.New("remote revision conflict")

	// ErrNoDocument means the remote exists but holds no budget document
	// yet. The first push creates it.
	ErrNoDocument = errors.New("remote document not found")

	// ErrNotConfigured means no remote mirror is set up at all.
	ErrNotConfigured = errors.New("remote sync not configured")
)

// Document is a fetched remote budget document plus its revision token.
type Document struct {
	State core.BudgetState
	SHA   string
}

// Ports for the remote mirror.
type (
	// Fetcher reads the current remote document.
	Fetcher interface {
		Fetch(ctx context.Context) (Document, error)
	}

	// Writer replaces the remote document. sha is the last known revision
	// token; empty means "create". On success the new token is returned.
	Writer interface {
		Put(ctx context.Context, state core.BudgetState, sha string) (string, error)
	}

	// DocumentStore is the full remote mirror contract.
	DocumentStore interface {
		Fetcher
		Writer
	}
)
