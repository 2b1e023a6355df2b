package handlers

import (
	"context"
	"fmt"

	apierrors "github.com/datadesk/datadesk/internal/errors"
)

const defaultHistoryLimit = 50

type HistoryRequest struct {
	Limit int `query:"limit"`
}

func (r *HistoryRequest) Validate() error {
	if r.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}

// HistoryResponse lists recent change-history commit messages, newest
// first.
type HistoryResponse struct {
	Entries []string `json:"entries"`
}

// GetHistory returns the most recent change-history entries.
func (s *Services) GetHistory(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	if s.History == nil {
		return nil, apierrors.NotFound("change history")
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	entries, err := s.History.Log(ctx, limit)
	if err != nil {
		return nil, apierrors.InternalWithError("failed to read history", err)
	}
	if entries == nil {
		entries = []string{}
	}
	return &HistoryResponse{Entries: entries}, nil
}
