package services

import (
	"context"

	"gorm.io/gorm"

	"lmsinquiry/internal/database"
)

// HealthService implements the health service
type HealthService struct {
	name string
	db   *gorm.DB
}

// NewHealthService creates a new health service
func NewHealthService(name string, db *gorm.DB) *HealthService {
	return &HealthService{name: name, db: db}
}

// Check reports service health. A failed database ping degrades the status
// but is not an error.
func (s *HealthService) Check(ctx context.Context) (*HealthResult, error) {
	result := &HealthResult{
		Status:   "healthy",
		Service:  s.name,
		Database: "ok",
	}
	if s.db == nil {
		result.Database = "unconfigured"
		return result, nil
	}
	if err := database.PingContext(ctx, s.db); err != nil {
		result.Status = "degraded"
		result.Database = "unreachable"
	}
	return result, nil
}
