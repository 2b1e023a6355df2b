// Package history keeps the data directory under git so every mutation
// leaves an auditable commit. It is optional: services treat a nil
// *Service as history disabled.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Service commits changes in the data directory. Safe for concurrent use.
type Service struct {
	mu    sync.Mutex
	repo  *git.Repository
	name  string
	email string
}

// New opens the git repository at dir, initializing one if needed. The
// name and email are used as commit author.
func New(dir, name, email string) (*Service, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history repository: %w", err)
	}
	return &Service{repo: repo, name: name, email: email}, nil
}

// Commit stages every change in the data directory and commits it with
// the given message. A clean worktree is not an error.
func (s *Service) Commit(ctx context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("failed to read worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: s.name, Email: s.email, When: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Log returns the most recent commit messages, newest first, up to limit.
func (s *Service) Log(ctx context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.repo.Log(&git.LogOptions{})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// Fresh repository without a single commit yet.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var out []string
	for len(out) < limit {
		c, err := iter.Next()
		if err != nil {
			break
		}
		out = append(out, c.Message)
	}
	return out, nil
}
