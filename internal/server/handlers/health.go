package handlers

import "context"

type HealthRequest struct{}

func (r *HealthRequest) Validate() error { return nil }

// HealthResponse reports process liveness and the running version.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Version is stamped by the main package at startup.
var Version = "dev"

// Health reports liveness.
func (s *Services) Health(ctx context.Context, req *HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{Status: "ok", Version: Version}, nil
}
