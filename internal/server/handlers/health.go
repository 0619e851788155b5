package handlers

import (
	"context"

	"github.com/wordcrafter/drive-server/internal/server/dto"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	Cfg *Config
}

// Health handles health check requests.
func (h *HealthHandler) Health(ctx context.Context, req *dto.HealthRequest) (*dto.HealthResponse, error) {
	return &dto.HealthResponse{
		Status:  "ok",
		Version: h.Cfg.Version,
	}, nil
}
